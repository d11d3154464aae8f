// Package httpapi exposes the room store as a JSON HTTP API.
//
// Every mutating room endpoint responds with the fresh room snapshot, so
// clients can poll and act on a single document. Errors use one envelope:
// {"error":{"code","message","retryAfterMs"}}, with retryAfterMs present
// only on retryable codes.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tuneclash/tuneclash/internal/app/room"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	defaultRequestLimit  = 600
	defaultRequestWindow = time.Minute
	defaultMaxBodyBytes  = 1 << 20
)

// UserResolver vets a bearer token and returns the linked user id.
// Implementations decide what a token means; the API only threads the
// resulting id into user-scoped operations.
type UserResolver interface {
	ResolveUser(ctx context.Context, token string) (string, error)
}

// LibraryWriter ingests a user's liked tracks. Implemented by the sqlite
// library store; kept as an interface so tests can run without a database.
type LibraryWriter interface {
	UpsertLikedTracks(ctx context.Context, userID string, nowMs int64, tracks []track.Track) (int, error)
	CountUserTracks(ctx context.Context, userID string) (map[track.Provider]int, error)
}

// Config tunes the HTTP boundary. Zero values fall back to defaults.
type Config struct {
	// RequestLimit and RequestWindow bound per-IP request rates.
	RequestLimit  int
	RequestWindow time.Duration

	// MaxBodyBytes caps request body reads.
	MaxBodyBytes int64
}

func (c Config) withDefaults() Config {
	if c.RequestLimit <= 0 {
		c.RequestLimit = defaultRequestLimit
	}
	if c.RequestWindow <= 0 {
		c.RequestWindow = defaultRequestWindow
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = defaultMaxBodyBytes
	}
	return c
}

// Server binds the room store to HTTP handlers.
type Server struct {
	store    *room.Store
	library  LibraryWriter
	users    UserResolver
	cfg      Config
	validate *validator.Validate
}

// New creates a Server. library and users may be nil: without a library
// writer the ingestion endpoint is not mounted, without a user resolver
// all requests run anonymously.
func New(store *room.Store, library LibraryWriter, users UserResolver, cfg Config) *Server {
	return &Server{
		store:    store,
		library:  library,
		users:    users,
		cfg:      cfg.withDefaults(),
		validate: validator.New(),
	}
}

// Router builds the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httprate.Limit(
		s.cfg.RequestLimit,
		s.cfg.RequestWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			}})
		}),
	))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/rooms", s.handlePublicRooms)
		api.Post("/rooms", s.handleCreateRoom)
		api.Route("/rooms/{code}", func(rr chi.Router) {
			rr.Get("/", s.handleRoomState)
			rr.Get("/results", s.handleResults)
			rr.Get("/suggestions", s.handleSuggestions)
			rr.Post("/join", s.handleJoin)
			rr.Post("/source", s.handleSource)
			rr.Post("/ready", s.handleReady)
			rr.Post("/kick", s.handleKick)
			rr.Post("/leave", s.handleLeave)
			rr.Post("/replay", s.handleReplay)
			rr.Post("/start", s.handleStart)
			rr.Post("/skip", s.handleSkip)
			rr.Post("/answer", s.handleAnswer)
			rr.Post("/draft", s.handleDraft)
			rr.Post("/chat", s.handleChat)
			rr.Post("/library", s.handleLibrary)
		})
		if s.library != nil {
			api.Put("/library/tracks", s.handleLibraryIngest)
		}
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.store.Len(),
	})
}

// decode reads and validates a JSON request body. An empty body decodes as
// the zero value; required fields still fail validation then.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeInvalidPayload(w, err)
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeInvalidPayload(w, err)
		return false
	}
	return true
}

// bearerUser resolves the optional Authorization bearer token to a user id.
// No header or no resolver means anonymous. The bool is false only when a
// token was presented and rejected; the handler has already responded then.
func (s *Server) bearerUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" || s.users == nil {
		return "", true
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "UNAUTHORIZED",
			Message: "malformed authorization header",
		}})
		return "", false
	}
	userID, err := s.users.ResolveUser(r.Context(), token)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "UNAUTHORIZED",
			Message: "token rejected",
		}})
		return "", false
	}
	return userID, true
}

func roomCode(r *http.Request) string {
	return chi.URLParam(r, "code")
}
