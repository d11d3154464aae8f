package httpapi

import (
	"net/http"
	"time"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// ingestRequest is a liked-library sync batch pushed by a client that holds
// the user's provider credentials. The server never talks to the provider
// itself here; it only stores what the client resolved.
type ingestRequest struct {
	Tracks []ingestTrack `json:"tracks" validate:"required,min=1,max=2000,dive"`
}

type ingestTrack struct {
	Provider    string `json:"provider" validate:"required"`
	ID          string `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Artist      string `json:"artist"`
	PreviewURL  string `json:"previewUrl"`
	SourceURL   string `json:"sourceUrl"`
	DurationSec int    `json:"durationSec" validate:"min=0"`
}

type ingestResponse struct {
	Stored int            `json:"stored"`
	Counts map[string]int `json:"counts"`
}

func (s *Server) handleLibraryIngest(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.bearerUser(w, r)
	if !ok {
		return
	}
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: errorDetail{
			Code:    "UNAUTHORIZED",
			Message: "library sync requires a bearer user",
		}})
		return
	}

	var req ingestRequest
	if !s.decode(w, r, &req) {
		return
	}

	tracks := make([]track.Track, 0, len(req.Tracks))
	for _, t := range req.Tracks {
		// Unknown providers pass through; the store counts them as skipped.
		provider, _ := track.ProviderFromString(t.Provider)
		tracks = append(tracks, track.Track{
			Provider:    provider,
			ID:          t.ID,
			Title:       t.Title,
			Artist:      t.Artist,
			PreviewURL:  t.PreviewURL,
			SourceURL:   t.SourceURL,
			DurationSec: t.DurationSec,
		})
	}

	stored, err := s.library.UpsertLikedTracks(r.Context(), userID, time.Now().UnixMilli(), tracks)
	if err != nil {
		writeFault(w, err)
		return
	}

	counts, err := s.library.CountUserTracks(r.Context(), userID)
	if err != nil {
		writeFault(w, err)
		return
	}
	out := ingestResponse{Stored: stored, Counts: make(map[string]int, len(counts))}
	for provider, n := range counts {
		out.Counts[string(provider)] = n
	}
	writeJSON(w, http.StatusOK, out)
}
