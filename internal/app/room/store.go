package room

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/player"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const displayNameMaxLen = 32

// emptyRoomTTL reaps rooms that were created but never joined.
const emptyRoomTTL = 2 * time.Minute

// Store is the process-wide room registry and the only entry point for
// operations on sessions. The index lock is short-lived; per-room work
// serialises on each session's own lock.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*session

	cfg  Config
	deps Deps
}

// NewStore creates a Store around the given collaborators. Zero-valued
// config fields fall back to production defaults.
func NewStore(cfg Config, deps Deps) *Store {
	return &Store{
		rooms: make(map[string]*session),
		cfg:   cfg.withDefaults(),
		deps:  deps,
	}
}

func (st *Store) nowMs() int64 {
	return st.cfg.Clock().UnixMilli()
}

// Len reports the number of live rooms.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.rooms)
}

func (st *Store) lookup(code string) (*session, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	st.mu.RLock()
	s, ok := st.rooms[code]
	st.mu.RUnlock()
	if !ok {
		return nil, fault.New(fault.CodeRoomNotFound)
	}
	return s, nil
}

// lockLive locks the session, failing when it was destroyed between lookup
// and lock.
func (st *Store) lockLive(s *session) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return fault.New(fault.CodeRoomNotFound)
	}
	return nil
}

// destroyRoom drops the session from the index and cancels its background
// work. Callers must not hold any lock. Safe to call twice.
func (st *Store) destroyRoom(s *session, reason string) {
	st.mu.Lock()
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		st.mu.Unlock()
		return
	}
	s.destroyed = true
	s.cancel()
	delete(st.rooms, s.code)
	s.mu.Unlock()
	st.mu.Unlock()
	zlog.Info().Msgf("room destroyed: room=%s reason=%s", s.code, reason)
}

func sanitizeDisplayName(name string) string {
	name = strings.TrimSpace(name)
	if r := []rune(name); len(r) > displayNameMaxLen {
		name = string(r[:displayNameMaxLen])
	}
	return name
}

func (s *session) requireHost(playerID string) error {
	h := s.host()
	if h == nil {
		return fault.New(fault.CodeNoPlayers)
	}
	if h.ID != playerID {
		return fault.New(fault.CodeHostOnly)
	}
	return nil
}

// CreateRoom allocates a code and seeds an empty session. The creator joins
// like everyone else and becomes host as the earliest-joined player. A
// "deezer:playlist:<id>" category query pre-populates the playlist selection.
func (st *Store) CreateRoom(isPublic bool, categoryQuery string) (*Snapshot, error) {
	nowMs := st.nowMs()

	st.mu.Lock()
	var code string
	for {
		c, err := newRoomCode()
		if err != nil {
			st.mu.Unlock()
			return nil, err
		}
		if _, taken := st.rooms[c]; !taken {
			code = c
			break
		}
	}
	s := newSession(&st.cfg, &st.deps, code, nowMs, isPublic, categoryQuery)
	st.rooms[code] = s
	st.mu.Unlock()

	zlog.Info().Msgf("room created: room=%s public=%t query=%q", code, isPublic, s.categoryQuery)

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(nowMs), nil
}

// JoinRoom adds an anonymous player to a room.
func (st *Store) JoinRoom(code, displayName string) (*Snapshot, string, error) {
	return st.JoinRoomAsUser(code, "", displayName)
}

// JoinRoomAsUser adds a player bound to an account, or returns the seat a
// user with that account already holds. Joining is allowed in any state
// except results; every join resets the lobby's ready flags.
func (st *Store) JoinRoomAsUser(code, userID, displayName string) (*Snapshot, string, error) {
	displayName = sanitizeDisplayName(displayName)
	if displayName == "" {
		return nil, "", fault.Newf(fault.CodeInvalidPayload, "display name is required")
	}

	s, err := st.lookup(code)
	if err != nil {
		return nil, "", err
	}
	if err := st.lockLive(s); err != nil {
		return nil, "", err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if s.phase == PhaseResults {
		return nil, "", fault.New(fault.CodeRoomNotJoinable)
	}

	p := s.addPlayer(displayName, userID, nowMs)
	zlog.Info().Msgf("player joined: room=%s player=%s name=%q players=%d", s.code, p.ID, p.DisplayName, len(s.players))
	return s.snapshot(nowMs), p.ID, nil
}

// SetRoomSource sets the public-playlist category query and switches the
// room to public_playlist mode.
func (st *Store) SetRoomSource(code, playerID, categoryQuery string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(playerID); err != nil {
		return nil, err
	}
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "source can only change in the lobby")
	}

	s.sourceMode = SourcePublicPlaylist
	s.categoryQuery = strings.TrimSpace(categoryQuery)
	s.selection = detectSelection(categoryQuery)
	s.resetPools()
	s.resetReady()
	zlog.Debug().Msgf("room source set: room=%s query=%q", s.code, s.categoryQuery)
	return s.snapshot(nowMs), nil
}

// SetRoomSourceMode switches between public_playlist and players_liked.
// Entering players_liked arms a pool build for the current contributors.
func (st *Store) SetRoomSourceMode(code, playerID, mode string) (*Snapshot, error) {
	m, ok := SourceModeFromString(mode)
	if !ok {
		return nil, fault.Newf(fault.CodeInvalidMode, "unknown source mode %q", mode)
	}

	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(playerID); err != nil {
		return nil, err
	}
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "source can only change in the lobby")
	}
	if s.sourceMode == m {
		return s.snapshot(nowMs), nil
	}

	s.sourceMode = m
	s.selection = nil
	s.resetPools()
	s.resetReady()
	switch m {
	case SourcePlayersLiked:
		s.categoryQuery = "players:liked"
		s.triggerLikedBuild()
	case SourcePublicPlaylist:
		s.categoryQuery = ""
	}
	zlog.Info().Msgf("room source mode changed: room=%s mode=%s", s.code, m)
	return s.snapshot(nowMs), nil
}

// SetRoomPublicPlaylist pins an explicit provider playlist as the source.
func (st *Store) SetRoomPublicPlaylist(code, playerID, provider, playlistID string) (*Snapshot, error) {
	prov, ok := track.ProviderFromString(provider)
	if !ok {
		return nil, fault.Newf(fault.CodeInvalidProvider, "unknown provider %q", provider)
	}
	playlistID = strings.TrimSpace(playlistID)
	if playlistID == "" {
		return nil, fault.Newf(fault.CodeInvalidPayload, "playlist id is required")
	}

	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(playerID); err != nil {
		return nil, err
	}
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "source can only change in the lobby")
	}

	query := string(prov) + ":playlist:" + playlistID
	s.sourceMode = SourcePublicPlaylist
	s.categoryQuery = query
	s.selection = &PlaylistSelection{Provider: prov, PlaylistID: playlistID, Query: query}
	s.resetPools()
	s.resetReady()
	zlog.Info().Msgf("room playlist set: room=%s provider=%s playlist=%s", s.code, prov, playlistID)
	return s.snapshot(nowMs), nil
}

// SetPlayerLibraryContribution toggles one provider's inclusion in the
// players-liked pool for one player. In players_liked mode this invalidates
// the built pool and re-arms the build.
func (st *Store) SetPlayerLibraryContribution(code, playerID, provider string, include bool) (*Snapshot, error) {
	prov, ok := track.ProviderFromString(provider)
	if !ok {
		return nil, fault.Newf(fault.CodeInvalidProvider, "unknown provider %q", provider)
	}

	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	p := s.findPlayer(playerID)
	if p == nil {
		return nil, fault.New(fault.CodePlayerNotFound)
	}

	p.Library.IncludeInPool[prov] = include
	s.invalidateLikedPool()
	zlog.Debug().Msgf("library contribution set: room=%s player=%s provider=%s include=%t", s.code, p.ID, prov, include)
	return s.snapshot(nowMs), nil
}

// LinkUpdate refreshes one provider's link state for a player.
type LinkUpdate struct {
	Status          string `json:"status"`
	EstimatedTracks int    `json:"estimatedTracks"`
	IncludeInPool   *bool  `json:"includeInPool,omitempty"`
}

// SetPlayerLibraryLinks applies refreshed link statuses for one player, as
// reported by the account service.
func (st *Store) SetPlayerLibraryLinks(code, playerID string, links map[string]LinkUpdate) (*Snapshot, error) {
	parsed := make(map[track.Provider]LinkUpdate, len(links))
	for name, upd := range links {
		prov, ok := track.ProviderFromString(name)
		if !ok {
			return nil, fault.Newf(fault.CodeInvalidProvider, "unknown provider %q", name)
		}
		switch upd.Status {
		case string(player.LinkStatusLinked), string(player.LinkStatusNotLinked), string(player.LinkStatusExpired):
		default:
			return nil, fault.Newf(fault.CodeInvalidPayload, "unknown link status %q", upd.Status)
		}
		parsed[prov] = upd
	}

	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	p := s.findPlayer(playerID)
	if p == nil {
		return nil, fault.New(fault.CodePlayerNotFound)
	}

	for prov, upd := range parsed {
		p.ApplyLink(prov, player.LinkState{
			Status:          player.LinkStatus(upd.Status),
			EstimatedTracks: upd.EstimatedTracks,
		})
		if upd.IncludeInPool != nil {
			p.Library.IncludeInPool[prov] = *upd.IncludeInPool
		}
		if upd.EstimatedTracks > 0 {
			p.Library.SyncStatus = player.SyncStatusSynced
		}
	}
	s.invalidateLikedPool()
	zlog.Debug().Msgf("library links refreshed: room=%s player=%s providers=%d", s.code, p.ID, len(parsed))
	return s.snapshot(nowMs), nil
}

// invalidateLikedPool drops the built players-liked pool after a contributor
// change and re-arms the build while the room is still in the lobby. The
// caller holds s.mu.
func (s *session) invalidateLikedPool() {
	if s.sourceMode != SourcePlayersLiked {
		return
	}
	s.likedPool = nil
	s.build = buildMeta{}
	s.cfgGen++
	if s.phase == PhaseWaiting {
		s.triggerLikedBuild()
		if s.buildDone != nil {
			// A job is still running; the re-arm it consumes on finish
			// counts as in progress already.
			s.build.status = BuildBuilding
		}
	}
}

// SetPlayerReady flips a player's lobby ready flag.
func (st *Store) SetPlayerReady(code, playerID string, ready bool) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "ready is a lobby action")
	}
	p := s.findPlayer(playerID)
	if p == nil {
		return nil, fault.New(fault.CodePlayerNotFound)
	}
	p.IsReady = ready
	return s.snapshot(nowMs), nil
}

// KickPlayer removes another player from the lobby.
func (st *Store) KickPlayer(code, hostID, targetID string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(hostID); err != nil {
		return nil, err
	}
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "kick is a lobby action")
	}
	if hostID == targetID {
		return nil, fault.Newf(fault.CodeInvalidPayload, "host cannot kick themselves")
	}
	target := s.findPlayer(targetID)
	if target == nil {
		return nil, fault.New(fault.CodeTargetNotFound)
	}
	wasContributor := target.CanContribute()
	s.removePlayerByID(targetID)
	if wasContributor {
		s.invalidateLikedPool()
	}
	zlog.Info().Msgf("player kicked: room=%s player=%s by=%s", s.code, targetID, hostID)
	return s.snapshot(nowMs), nil
}

// RemovePlayer takes a player out of the room in any state. Removing the
// last player destroys the room, in which case the returned snapshot is nil.
func (st *Store) RemovePlayer(code, playerID string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}

	nowMs := st.nowMs()
	s.progress(nowMs)
	p := s.findPlayer(playerID)
	if p == nil {
		s.mu.Unlock()
		return nil, fault.New(fault.CodePlayerNotFound)
	}
	wasContributor := p.CanContribute()
	s.removePlayerByID(playerID)
	zlog.Info().Msgf("player left: room=%s player=%s remaining=%d", s.code, playerID, len(s.players))

	if len(s.players) == 0 {
		s.mu.Unlock()
		st.destroyRoom(s, "last player left")
		return nil, nil
	}

	// A contributor leaving the lobby voids the pool built from their
	// library. Once a game is running the pool is fixed.
	if wasContributor && s.phase == PhaseWaiting {
		s.invalidateLikedPool()
	}

	// The round may now be fully answered by the remaining players.
	if s.phase == PhasePlaying && s.answeredCount() == len(s.players) {
		s.closeRound(nowMs)
	}
	snap := s.snapshot(nowMs)
	s.mu.Unlock()
	return snap, nil
}

// ReplayRoom returns a finished room to the lobby, keeping the roster.
func (st *Store) ReplayRoom(code, playerID string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(playerID); err != nil {
		return nil, err
	}
	if s.phase != PhaseResults {
		return nil, fault.Newf(fault.CodeInvalidState, "replay requires finished results")
	}
	s.resetForReplay()
	zlog.Info().Msgf("room replayed: room=%s players=%d", s.code, len(s.players))
	return s.snapshot(nowMs), nil
}

// StartGame validates the start preconditions, acquires the track pool and
// moves the room into countdown. For public sources the session lock is
// released around the outbound fetch; the commit re-checks that the lobby
// did not change meanwhile.
func (st *Store) StartGame(ctx context.Context, code, playerID string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}

	nowMs := st.nowMs()
	s.progress(nowMs)

	if err := s.requireHost(playerID); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.phase != PhaseWaiting {
		s.mu.Unlock()
		return nil, fault.Newf(fault.CodeInvalidState, "game already started")
	}
	if s.startInFlight {
		s.mu.Unlock()
		return nil, fault.Newf(fault.CodeInvalidState, "start already in progress")
	}

	if s.sourceMode == SourcePlayersLiked {
		return st.startLiked(s)
	}
	return st.startPublic(ctx, s)
}

// startPublic runs the public-playlist start path. Entered with s.mu held;
// the lock is released around the pool fetch.
func (st *Store) startPublic(ctx context.Context, s *session) (*Snapshot, error) {
	query := s.sourceQuery()
	if query == "" {
		s.mu.Unlock()
		return nil, fault.New(fault.CodeSourceNotSet)
	}
	if st.deps.Tracks == nil {
		s.mu.Unlock()
		return nil, fault.Newf(fault.CodeNoTracksFound, "no track source configured")
	}

	rounds := s.totalRounds
	gen := s.cfgGen
	deezerPlaylist := s.selection != nil && s.selection.Provider == track.ProviderDeezer
	s.startInFlight = true
	s.mu.Unlock()

	builder := pool.Builder{
		Source:       st.deps.Tracks,
		FetchTimeout: st.cfg.PoolFetchTimeout,
		RetryDelay:   st.cfg.PoolRetryDelay,
		Shuffle:      st.cfg.Shuffle,
	}
	res, err := builder.Build(ctx, query, rounds)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.startInFlight = false

	if s.destroyed {
		return nil, fault.New(fault.CodeRoomNotFound)
	}
	nowMs := st.nowMs()
	s.progress(nowMs)

	if err != nil {
		// A short Deezer playlist usually means the upstream is still
		// resolving its tracks; tell the host to retry rather than fail.
		if deezerPlaylist && fault.Is(err, fault.CodeNoTracksFound) {
			return nil, fault.Retry(fault.CodePlaylistTracksResolving, syncRetryAfterMs)
		}
		return nil, err
	}
	if s.phase != PhaseWaiting || gen != s.cfgGen {
		return nil, fault.Newf(fault.CodeInvalidState, "room changed during pool build")
	}

	s.commitPool(res, nowMs)
	zlog.Info().Msgf("game started: room=%s rounds=%d answers=%d distractors=%d query=%q",
		s.code, s.totalRounds, len(res.Answers), len(res.Distractors), query)
	return s.snapshot(nowMs), nil
}

// startLiked runs the players-liked start path. Entered with s.mu held; the
// lock is released while waiting on the build job.
func (st *Store) startLiked(s *session) (*Snapshot, error) {
	if len(s.eligibleContributors()) < s.cfg.Liked.MinContributors {
		s.mu.Unlock()
		return nil, fault.New(fault.CodePlayersLibraryNotReady)
	}
	if s.build.status == BuildIdle {
		s.triggerLikedBuild()
	}

	waitDeadline := time.Now().Add(st.cfg.StartBuildWait)
	for s.build.status == BuildBuilding {
		done := s.buildDone
		s.mu.Unlock()
		if done == nil {
			return nil, fault.Retry(fault.CodePlayersLibrarySyncing, syncRetryAfterMs)
		}
		select {
		case <-done:
		case <-time.After(time.Until(waitDeadline)):
			return nil, fault.Retry(fault.CodePlayersLibrarySyncing, syncRetryAfterMs)
		}
		s.mu.Lock()
		if s.destroyed {
			s.mu.Unlock()
			return nil, fault.New(fault.CodeRoomNotFound)
		}
	}
	defer s.mu.Unlock()

	switch s.build.status {
	case BuildReady:
	case BuildFailed:
		code := s.build.errorCode
		if code == "" {
			code = fault.CodeNoTracksFound
		}
		if code.Retryable() {
			retryAfter := s.build.retryAfterMs
			if retryAfter <= 0 {
				retryAfter = syncRetryAfterMs
			}
			return nil, fault.Retry(code, retryAfter)
		}
		return nil, fault.New(code)
	default:
		// Contributors disappeared while waiting.
		return nil, fault.New(fault.CodePlayersLibraryNotReady)
	}

	if s.likedPool == nil || len(s.likedPool.Answers) < s.totalRounds {
		return nil, fault.New(fault.CodeNoTracksFound)
	}

	nowMs := st.nowMs()
	s.progress(nowMs)
	if s.phase != PhaseWaiting {
		return nil, fault.Newf(fault.CodeInvalidState, "game already started")
	}

	s.commitPool(s.likedPool, nowMs)
	zlog.Info().Msgf("game started: room=%s rounds=%d source=players_liked answers=%d",
		s.code, s.totalRounds, len(s.trackPool))
	return s.snapshot(nowMs), nil
}

// SkipCurrentRound closes the open round as if its deadline fired now.
func (st *Store) SkipCurrentRound(code, playerID string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	if err := s.requireHost(playerID); err != nil {
		return nil, err
	}
	if s.phase != PhasePlaying {
		return nil, fault.Newf(fault.CodeInvalidState, "no round is open")
	}
	s.closeRound(nowMs)
	zlog.Debug().Msgf("round skipped: room=%s round=%d by=%s", s.code, s.currentRound, playerID)
	return s.snapshot(nowMs), nil
}

// SubmitResult reports how a submission or draft landed.
type SubmitResult struct {
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
	Round    int    `json:"round"`
	Mode     string `json:"mode,omitempty"`
}

// SubmitAnswer records a player's answer for the open round. Submissions
// are always tolerated; Accepted reports whether this one counted. The first
// submission per player per round wins. A round fully answered closes early.
func (st *Store) SubmitAnswer(code, playerID, value string) (*SubmitResult, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)

	res := &SubmitResult{State: s.phase.String(), Round: s.currentRound}
	if s.phase != PhasePlaying {
		return res, nil
	}
	res.Mode = s.roundModes[s.currentRound-1].String()

	value = strings.TrimSpace(value)
	if value == "" || s.findPlayer(playerID) == nil {
		return res, nil
	}
	if _, dup := s.submitted[playerID]; dup {
		return res, nil
	}

	s.submitted[playerID] = submission{value: value, submittedAtMs: nowMs}
	res.Accepted = true

	if s.answeredCount() == len(s.players) {
		s.closeRound(nowMs)
		res.State = s.phase.String()
	}
	return res, nil
}

// SubmitDraftAnswer records a provisional text answer, last writer wins.
// Drafts are promoted to submissions when the round closes.
func (st *Store) SubmitDraftAnswer(code, playerID, value string) (*SubmitResult, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)

	res := &SubmitResult{State: s.phase.String(), Round: s.currentRound}
	if s.phase != PhasePlaying {
		return res, nil
	}
	res.Mode = s.roundModes[s.currentRound-1].String()

	if s.findPlayer(playerID) == nil {
		return res, nil
	}
	if _, dup := s.submitted[playerID]; dup {
		return res, nil
	}

	if r := []rune(value); len(r) > draftMaxLen {
		value = string(r[:draftMaxLen])
	}
	s.drafts[playerID] = value
	res.Accepted = true
	return res, nil
}

// PostChatMessage appends a trimmed, capped chat message to the room ring.
func (st *Store) PostChatMessage(code, playerID, text string) (*ChatMessage, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)

	p := s.findPlayer(playerID)
	if p == nil {
		return nil, fault.New(fault.CodePlayerNotFound)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fault.Newf(fault.CodeInvalidPayload, "message is empty")
	}
	if r := []rune(text); len(r) > chatMaxLen {
		text = string(r[:chatMaxLen])
	}

	msg := ChatMessage{
		ID:          newChatMessageID(nowMs),
		PlayerID:    p.ID,
		DisplayName: p.DisplayName,
		Text:        text,
		AtMs:        nowMs,
	}
	s.appendChat(msg)
	return &msg, nil
}

// RoomState renders the live snapshot of a room.
func (st *Store) RoomState(code string) (*Snapshot, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	return s.snapshot(nowMs), nil
}

// RoomResults renders the ranking: final once the room reached results,
// provisional before that.
func (st *Store) RoomResults(code string) (*Results, error) {
	s, err := st.lookup(code)
	if err != nil {
		return nil, err
	}
	if err := st.lockLive(s); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	nowMs := st.nowMs()
	s.progress(nowMs)
	return s.results(nowMs), nil
}

// PublicRoomSummary is one row of the public lobby listing.
type PublicRoomSummary struct {
	RoomCode      string `json:"roomCode"`
	State         string `json:"state"`
	PlayerCount   int    `json:"playerCount"`
	SourceMode    string `json:"sourceMode"`
	CategoryQuery string `json:"categoryQuery,omitempty"`
	CreatedAtMs   int64  `json:"createdAtMs"`
}

// PublicRooms lists joinable public lobbies, newest first.
func (st *Store) PublicRooms() []PublicRoomSummary {
	st.mu.RLock()
	sessions := make([]*session, 0, len(st.rooms))
	for _, s := range st.rooms {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	nowMs := st.nowMs()
	out := make([]PublicRoomSummary, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		if !s.destroyed && s.isPublic {
			s.progress(nowMs)
			if s.phase == PhaseWaiting {
				out = append(out, PublicRoomSummary{
					RoomCode:      s.code,
					State:         s.phase.String(),
					PlayerCount:   len(s.players),
					SourceMode:    s.sourceMode.String(),
					CategoryQuery: s.categoryQuery,
					CreatedAtMs:   s.createdAtMs,
				})
			}
		}
		s.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAtMs > out[j].CreatedAtMs })
	return out
}

// Sweep destroys rooms whose results window expired and lobbies that were
// created but never joined. Returns the number of rooms destroyed.
func (st *Store) Sweep() int {
	st.mu.RLock()
	sessions := make([]*session, 0, len(st.rooms))
	for _, s := range st.rooms {
		sessions = append(sessions, s)
	}
	st.mu.RUnlock()

	nowMs := st.nowMs()
	destroyed := 0
	for _, s := range sessions {
		s.mu.Lock()
		s.progress(nowMs)
		reason := ""
		switch {
		case s.destroyed:
		case len(s.players) == 0 && nowMs-s.createdAtMs >= emptyRoomTTL.Milliseconds():
			reason = "never joined"
		case s.phase == PhaseResults && nowMs-s.phaseStartMs >= st.cfg.ResultsTTL.Milliseconds():
			reason = "results expired"
		}
		s.mu.Unlock()
		if reason != "" {
			st.destroyRoom(s, reason)
			destroyed++
		}
	}
	return destroyed
}

// Close destroys every room and cancels their background work. The store
// must not be used afterwards.
func (st *Store) Close() {
	st.mu.Lock()
	sessions := make([]*session, 0, len(st.rooms))
	for _, s := range st.rooms {
		sessions = append(sessions, s)
	}
	st.rooms = make(map[string]*session)
	st.mu.Unlock()

	for _, s := range sessions {
		s.mu.Lock()
		if !s.destroyed {
			s.destroyed = true
			s.cancel()
		}
		s.mu.Unlock()
	}
	zlog.Info().Msgf("room store closed: rooms=%d", len(sessions))
}
