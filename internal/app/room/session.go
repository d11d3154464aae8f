package room

import (
	"context"
	"strconv"
	"strings"
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/answer"
	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/player"
	"github.com/tuneclash/tuneclash/internal/domain/scoring"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// PlaylistSelection pins a public playlist source parsed from a query string.
type PlaylistSelection struct {
	Provider   track.Provider
	PlaylistID string
	Query      string
}

// detectSelection parses the known source query prefixes. Free-form queries
// yield nil and are passed to the source untouched.
func detectSelection(query string) *PlaylistSelection {
	q := strings.TrimSpace(query)
	switch {
	case strings.HasPrefix(q, "deezer:playlist:"):
		if id := strings.TrimPrefix(q, "deezer:playlist:"); id != "" {
			return &PlaylistSelection{Provider: track.ProviderDeezer, PlaylistID: id, Query: q}
		}
	case strings.HasPrefix(q, "spotify:playlist:"):
		if id := strings.TrimPrefix(q, "spotify:playlist:"); id != "" {
			return &PlaylistSelection{Provider: track.ProviderSpotify, PlaylistID: id, Query: q}
		}
	case q == "spotify:popular":
		return &PlaylistSelection{Provider: track.ProviderSpotify, Query: q}
	case strings.HasPrefix(q, "animethemes:"):
		return &PlaylistSelection{Provider: track.ProviderAnimeThemes, Query: q}
	case strings.HasPrefix(q, "lastfm:"):
		return &PlaylistSelection{Provider: track.ProviderLastFM, Query: q}
	}
	return nil
}

type submission struct {
	value         string
	submittedAtMs int64
}

type buildMeta struct {
	status              BuildStatus
	contributorsCount   int
	mergedTracksCount   int
	playableTracksCount int
	lastBuiltAtMs       int64
	errorCode           fault.Code
	retryAfterMs        int64
}

// session is the per-room aggregate. All fields are guarded by mu; the
// Store is the only entry point. The lock is never held across calls to
// external sources.
type session struct {
	mu sync.Mutex

	cfg  *Config
	deps *Deps

	code        string
	createdAtMs int64
	isPublic    bool

	players   []*player.Player
	playerSeq int

	sourceMode    SourceMode
	categoryQuery string
	selection     *PlaylistSelection
	// cfgGen is bumped on every source config reset; in-flight work compares
	// it on commit to detect that its inputs are stale.
	cfgGen int

	trackPool      []track.Track
	distractorPool []track.Track
	likedPool      *pool.Result

	totalRounds  int
	roundModes   []Mode
	roundChoices map[int][]string

	phase        Phase
	currentRound int
	phaseStartMs int64
	deadlineMs   int64
	submitted    map[string]submission
	drafts       map[string]string

	reveal *Reveal

	build     buildMeta
	buildDone chan struct{}
	rebuild   bool

	chat []ChatMessage

	startInFlight bool
	destroyed     bool
	ctx           context.Context
	cancel        context.CancelFunc
}

func newSession(cfg *Config, deps *Deps, code string, nowMs int64, isPublic bool, categoryQuery string) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		cfg:           cfg,
		deps:          deps,
		code:          code,
		createdAtMs:   nowMs,
		isPublic:      isPublic,
		categoryQuery: strings.TrimSpace(categoryQuery),
		selection:     detectSelection(categoryQuery),
		totalRounds:   cfg.Timing.MaxRounds,
		phase:         PhaseWaiting,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// host returns the earliest-joined surviving player, or nil.
func (s *session) host() *player.Player {
	if len(s.players) == 0 {
		return nil
	}
	return s.players[0]
}

func (s *session) findPlayer(id string) *player.Player {
	for _, p := range s.players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// addPlayer appends a player and resets everyone's ready flag. A user who
// already has a seat rejoins it instead of taking a second one.
func (s *session) addPlayer(displayName, userID string, nowMs int64) *player.Player {
	if userID != "" {
		for _, p := range s.players {
			if p.UserID == userID {
				return p
			}
		}
	}
	s.playerSeq++
	p := player.New("p"+strconv.Itoa(s.playerSeq), displayName, userID, nowMs)
	s.players = append(s.players, p)
	s.resetReady()
	return p
}

func (s *session) removePlayerByID(id string) bool {
	for i, p := range s.players {
		if p.ID == id {
			s.players = append(s.players[:i], s.players[i+1:]...)
			return true
		}
	}
	return false
}

func (s *session) resetReady() {
	for _, p := range s.players {
		p.IsReady = false
	}
}

// answeredCount counts current players with a submission in the open round.
func (s *session) answeredCount() int {
	n := 0
	for _, p := range s.players {
		if _, ok := s.submitted[p.ID]; ok {
			n++
		}
	}
	return n
}

func (s *session) eligibleContributors() []*player.Player {
	var out []*player.Player
	for _, p := range s.players {
		if p.CanContribute() {
			out = append(out, p)
		}
	}
	return out
}

// sourceQuery returns the effective public-playlist query.
func (s *session) sourceQuery() string {
	if s.selection != nil {
		return s.selection.Query
	}
	return strings.TrimSpace(s.categoryQuery)
}

// canStart mirrors the cheap start preconditions for snapshots; the
// authoritative checks run inside StartGame.
func (s *session) canStart() bool {
	if s.phase != PhaseWaiting || len(s.players) == 0 {
		return false
	}
	switch s.sourceMode {
	case SourcePublicPlaylist:
		return s.sourceQuery() != ""
	case SourcePlayersLiked:
		return len(s.eligibleContributors()) >= s.cfg.Liked.MinContributors
	}
	return false
}

// resetPools drops every built pool and the build meta, invalidating any
// in-flight build commit.
func (s *session) resetPools() {
	s.trackPool = nil
	s.distractorPool = nil
	s.likedPool = nil
	s.roundModes = nil
	s.roundChoices = nil
	s.build = buildMeta{}
	s.cfgGen++
}

// resetForReplay returns the room to the lobby, keeping the roster and
// their library links.
func (s *session) resetForReplay() {
	for _, p := range s.players {
		p.ResetForReplay()
	}
	s.resetPools()
	s.categoryQuery = ""
	s.selection = nil
	s.reveal = nil
	s.chat = nil
	s.phase = PhaseWaiting
	s.currentRound = 0
	s.phaseStartMs = 0
	s.deadlineMs = 0
	s.submitted = nil
	s.drafts = nil
	if s.sourceMode == SourcePlayersLiked {
		s.triggerLikedBuild()
	}
}

// progress advances the state machine up to nowMs. Transitions anchor on
// each phase's own deadline rather than on nowMs, so a late call walks
// through every overdue phase and lands exactly where an on-time sequence
// of calls would have: progress(t1); progress(t2) == progress(t2).
func (s *session) progress(nowMs int64) {
	for {
		switch s.phase {
		case PhaseWaiting, PhaseResults:
			return
		}
		if nowMs < s.deadlineMs {
			return
		}
		switch s.phase {
		case PhaseCountdown:
			s.enterPlaying(1, s.deadlineMs)
		case PhasePlaying:
			s.closeRound(s.deadlineMs)
		case PhaseReveal:
			s.enterLeaderboard(s.deadlineMs)
		case PhaseLeaderboard:
			if s.currentRound+1 <= s.totalRounds {
				s.enterPlaying(s.currentRound+1, s.deadlineMs)
			} else {
				s.enterResults(s.deadlineMs)
			}
		}
	}
}

func (s *session) enterCountdown(atMs int64) {
	s.phase = PhaseCountdown
	s.currentRound = 0
	s.phaseStartMs = atMs
	s.deadlineMs = atMs + s.cfg.Timing.CountdownMs
	zlog.Info().Msgf("phase changed: room=%s phase=%s rounds=%d", s.code, s.phase, s.totalRounds)
}

func (s *session) enterPlaying(round int, atMs int64) {
	s.phase = PhasePlaying
	s.currentRound = round
	s.phaseStartMs = atMs
	s.deadlineMs = atMs + s.cfg.Timing.PlayingMs
	s.submitted = make(map[string]submission)
	s.drafts = make(map[string]string)
	zlog.Debug().Msgf("phase changed: room=%s phase=%s round=%d mode=%s", s.code, s.phase, round, s.roundModes[round-1])
}

func (s *session) enterLeaderboard(atMs int64) {
	s.phase = PhaseLeaderboard
	s.phaseStartMs = atMs
	s.deadlineMs = atMs + s.cfg.Timing.LeaderboardMs
}

func (s *session) enterResults(atMs int64) {
	s.phase = PhaseResults
	s.phaseStartMs = atMs
	s.deadlineMs = 0
	zlog.Info().Msgf("phase changed: room=%s phase=%s", s.code, s.phase)

	if s.deps.Recorder == nil {
		return
	}
	rec := MatchRecord{
		RoomCode:     s.code,
		FinishedAtMs: atMs,
		Rounds:       s.totalRounds,
		Rankings:     rankPlayers(s.players),
	}
	recorder := s.deps.Recorder
	ctx := s.ctx
	// Best effort: a persistence failure must not affect the results surface.
	go func() {
		if err := recorder.RecordMatch(ctx, rec); err != nil {
			zlog.Warn().Msgf("failed to record match: room=%s error=%v", rec.RoomCode, err)
		}
	}()
}

// closeRound settles the open round at atMs: promotes non-empty drafts to
// submissions, scores every player, publishes the reveal record and enters
// the reveal phase.
func (s *session) closeRound(atMs int64) {
	roundStartMs := s.phaseStartMs
	round := s.currentRound
	tr := s.trackPool[round-1]
	mode := s.roundModes[round-1]

	for _, p := range s.players {
		if _, ok := s.submitted[p.ID]; ok {
			continue
		}
		draft := strings.TrimSpace(s.drafts[p.ID])
		if draft == "" {
			continue
		}
		s.submitted[p.ID] = submission{value: draft, submittedAtMs: atMs}
	}

	variants := s.answerVariants(tr)
	playerAnswers := make([]PlayerAnswer, 0, len(s.players))
	for _, p := range s.players {
		sub, ok := s.submitted[p.ID]
		correct := false
		var responseMs int64
		if ok {
			correct = s.matchesAnswer(mode, sub.value, tr, variants)
			responseMs = sub.submittedAtMs - roundStartMs
			if responseMs < 0 {
				responseMs = 0
			}
		}
		res := scoring.Apply(s.cfg.Scoring, correct, responseMs, s.cfg.Timing.PlayingMs, p.Streak, s.cfg.Timing.BaseScore)
		p.RecordAnswer(res.Earned, res.NextStreak, responseMs, correct)
		playerAnswers = append(playerAnswers, PlayerAnswer{
			PlayerID:    p.ID,
			DisplayName: p.DisplayName,
			Answer:      sub.value,
			IsCorrect:   correct,
			ScoreEarned: res.Earned,
			ResponseMs:  responseMs,
		})
	}

	s.reveal = s.buildReveal(round, mode, tr, variants, playerAnswers)

	s.phase = PhaseReveal
	s.phaseStartMs = atMs
	s.deadlineMs = atMs + s.cfg.Timing.RevealMs
	zlog.Debug().Msgf("round closed: room=%s round=%d answers=%d", s.code, round, len(playerAnswers))
}

func (s *session) buildReveal(round int, mode Mode, tr track.Track, v answer.Variants, playerAnswers []PlayerAnswer) *Reveal {
	embed := embedURL(s.code, round, tr)
	return &Reveal{
		Round:          round,
		TrackID:        tr.ID,
		Title:          tr.Title,
		TitleRomaji:    v.TitleRomaji,
		Artist:         tr.Artist,
		ArtistRomaji:   v.ArtistRomaji,
		Provider:       string(tr.Provider),
		Mode:           mode.String(),
		AcceptedAnswer: tr.Label(),
		PreviewURL:     tr.PreviewURL,
		SourceURL:      tr.SourceURL,
		EmbedURL:       embed,
		Choices:        s.roundChoices[round],
		PlayerAnswers:  playerAnswers,
	}
}

func (s *session) answerVariants(tr track.Track) answer.Variants {
	return answer.Variants{
		Title:        tr.Title,
		Artist:       tr.Artist,
		TitleRomaji:  s.deps.romajiCached(tr.Title),
		ArtistRomaji: s.deps.romajiCached(tr.Artist),
	}
}

func (s *session) matchesAnswer(mode Mode, value string, tr track.Track, v answer.Variants) bool {
	if mode == ModeMCQ {
		return answer.MatchChoice(value, tr.Label())
	}
	return answer.MatchText(value, v)
}

// warmRomaji hints the romanisation cache at the freshly committed pool so
// later rounds can match romaji answers without blocking.
func (s *session) warmRomaji(tracks []track.Track) {
	for _, t := range tracks {
		s.deps.romajiSchedule(t.Title)
		s.deps.romajiSchedule(t.Artist)
	}
}

// commitPool installs the built pool and starts the countdown.
func (s *session) commitPool(res *pool.Result, nowMs int64) {
	s.trackPool = res.Answers
	s.distractorPool = res.Distractors
	s.buildRoundPlan()
	s.warmRomaji(s.trackPool)
	s.warmRomaji(s.distractorPool)
	s.enterCountdown(nowMs)
}

func (s *session) appendChat(m ChatMessage) {
	s.chat = append(s.chat, m)
	if len(s.chat) > chatCapacity {
		s.chat = s.chat[len(s.chat)-chatCapacity:]
	}
}
