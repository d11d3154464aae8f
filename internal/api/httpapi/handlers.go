package httpapi

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/tuneclash/tuneclash/internal/app/room"
	"github.com/tuneclash/tuneclash/internal/infra/metrics"
)

var errMissingLibraryChange = errors.New("either links or provider with includeInPool is required")

type createRoomRequest struct {
	Public        bool   `json:"public"`
	CategoryQuery string `json:"categoryQuery" validate:"max=200"`
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var req createRoomRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.CreateRoom(req.Public, req.CategoryQuery)
	if err != nil {
		writeFault(w, err)
		return
	}
	metrics.IncRoomCreated(req.Public)
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) handlePublicRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": s.store.PublicRooms()})
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.RoomState(roomCode(r))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	res, err := s.store.RoomResults(roomCode(r))
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	playerID := strings.TrimSpace(r.URL.Query().Get("playerId"))
	suggestions, err := s.store.RoomAnswerSuggestions(r.Context(), roomCode(r), playerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type joinRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=64"`
}

// joinResponse carries the per-room player credential next to the snapshot.
// The playerId is the caller's handle for every subsequent room operation.
type joinResponse struct {
	PlayerID string         `json:"playerId"`
	Room     *room.Snapshot `json:"room"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decode(w, r, &req) {
		return
	}
	userID, ok := s.bearerUser(w, r)
	if !ok {
		return
	}

	var (
		snap     *room.Snapshot
		playerID string
		err      error
	)
	if userID != "" {
		snap, playerID, err = s.store.JoinRoomAsUser(roomCode(r), userID, req.DisplayName)
	} else {
		snap, playerID, err = s.store.JoinRoom(roomCode(r), req.DisplayName)
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{PlayerID: playerID, Room: snap})
}

// sourceRequest selects the room's track source. Exactly one selection kind
// applies per call: a source mode switch, a public playlist pin, or a free
// text category query (empty resets to unset).
type sourceRequest struct {
	PlayerID      string `json:"playerId" validate:"required"`
	SourceMode    string `json:"sourceMode"`
	Provider      string `json:"provider"`
	PlaylistID    string `json:"playlistId"`
	CategoryQuery string `json:"categoryQuery" validate:"max=200"`
}

func (s *Server) handleSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		snap *room.Snapshot
		err  error
	)
	switch {
	case req.SourceMode != "":
		snap, err = s.store.SetRoomSourceMode(roomCode(r), req.PlayerID, req.SourceMode)
	case req.Provider != "" || req.PlaylistID != "":
		snap, err = s.store.SetRoomPublicPlaylist(roomCode(r), req.PlayerID, req.Provider, req.PlaylistID)
	default:
		snap, err = s.store.SetRoomSource(roomCode(r), req.PlayerID, req.CategoryQuery)
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type readyRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
	Ready    *bool  `json:"ready" validate:"required"`
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	var req readyRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.SetPlayerReady(roomCode(r), req.PlayerID, *req.Ready)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type kickRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
	TargetID string `json:"targetId" validate:"required"`
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	var req kickRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.KickPlayer(roomCode(r), req.PlayerID, req.TargetID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type playerRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.RemovePlayer(roomCode(r), req.PlayerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.ReplayRoom(roomCode(r), req.PlayerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.StartGame(r.Context(), roomCode(r), req.PlayerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	var req playerRequest
	if !s.decode(w, r, &req) {
		return
	}
	snap, err := s.store.SkipCurrentRound(roomCode(r), req.PlayerID)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type answerRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
	Value    string `json:"value" validate:"max=500"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.store.SubmitAnswer(roomCode(r), req.PlayerID, req.Value)
	if err != nil {
		writeFault(w, err)
		return
	}
	mode := res.Mode
	if mode == "" {
		mode = "none"
	}
	metrics.IncAnswerSubmitted(mode, res.Accepted)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDraft(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.store.SubmitDraftAnswer(roomCode(r), req.PlayerID, req.Value)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type chatRequest struct {
	PlayerID string `json:"playerId" validate:"required"`
	Text     string `json:"text" validate:"required,max=400"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.store.PostChatMessage(roomCode(r), req.PlayerID, req.Text)
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

// libraryRequest updates the caller's library contribution. When Links is
// set the request applies refreshed link statuses; otherwise it toggles one
// provider's inclusion in the players-liked pool.
type libraryRequest struct {
	PlayerID      string                     `json:"playerId" validate:"required"`
	Provider      string                     `json:"provider"`
	IncludeInPool *bool                      `json:"includeInPool"`
	Links         map[string]room.LinkUpdate `json:"links"`
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	var req libraryRequest
	if !s.decode(w, r, &req) {
		return
	}

	var (
		snap *room.Snapshot
		err  error
	)
	switch {
	case len(req.Links) > 0:
		snap, err = s.store.SetPlayerLibraryLinks(roomCode(r), req.PlayerID, req.Links)
	case req.Provider != "" && req.IncludeInPool != nil:
		snap, err = s.store.SetPlayerLibraryContribution(roomCode(r), req.PlayerID, req.Provider, *req.IncludeInPool)
	default:
		writeInvalidPayload(w, errMissingLibraryChange)
		return
	}
	if err != nil {
		writeFault(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
