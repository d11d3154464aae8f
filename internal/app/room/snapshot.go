package room

import (
	"regexp"
	"strconv"

	"github.com/tuneclash/tuneclash/internal/domain/player"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// Snapshot is the client-facing view of a room at one instant. It is built
// under the session lock and safe to serialise after release.
type Snapshot struct {
	RoomCode     string   `json:"roomCode"`
	State        string   `json:"state"`
	Round        int      `json:"round"`
	Mode         string   `json:"mode,omitempty"`
	Choices      []string `json:"choices,omitempty"`
	ServerNowMs  int64    `json:"serverNowMs"`
	PlayerCount  int      `json:"playerCount"`
	HostPlayerID string   `json:"hostPlayerId,omitempty"`

	Players    []PlayerView `json:"players"`
	ReadyCount int          `json:"readyCount"`
	AllReady   bool         `json:"allReady"`
	CanStart   bool         `json:"canStart"`

	IsResolvingTracks bool              `json:"isResolvingTracks"`
	PoolSize          int               `json:"poolSize"`
	CategoryQuery     string            `json:"categoryQuery"`
	SourceMode        string            `json:"sourceMode"`
	SourceConfig      *SourceConfigView `json:"sourceConfig,omitempty"`
	PoolBuild         *PoolBuildView    `json:"poolBuild,omitempty"`

	TotalRounds int   `json:"totalRounds"`
	DeadlineMs  int64 `json:"deadlineMs,omitempty"`

	PreviewURL string     `json:"previewUrl,omitempty"`
	Media      *MediaView `json:"media,omitempty"`
	Reveal     *Reveal    `json:"reveal,omitempty"`

	Leaderboard       []LeaderboardEntry `json:"leaderboard"`
	ChatMessages      []ChatMessage      `json:"chatMessages"`
	AnswerSuggestions []string           `json:"answerSuggestions,omitempty"`
}

// PlayerView is the per-player slice of a Snapshot.
type PlayerView struct {
	PlayerID                string      `json:"playerId"`
	DisplayName             string      `json:"displayName"`
	IsReady                 bool        `json:"isReady"`
	HasAnsweredCurrentRound bool        `json:"hasAnsweredCurrentRound"`
	IsHost                  bool        `json:"isHost"`
	CanContributeLibrary    bool        `json:"canContributeLibrary"`
	LibraryContribution     LibraryView `json:"libraryContribution"`
}

// LibraryView mirrors a player's per-provider library state.
type LibraryView struct {
	IncludeInPool       map[string]bool   `json:"includeInPool"`
	LinkedProviders     map[string]string `json:"linkedProviders"`
	EstimatedTrackCount map[string]int    `json:"estimatedTrackCount"`
	SyncStatus          string            `json:"syncStatus"`
	LastError           string            `json:"lastError,omitempty"`
}

// SourceConfigView describes the configured track source.
type SourceConfigView struct {
	SourceMode       string     `json:"sourceMode"`
	CategoryQuery    string     `json:"categoryQuery,omitempty"`
	PlaylistProvider string     `json:"playlistProvider,omitempty"`
	PlaylistID       string     `json:"playlistId,omitempty"`
	PlayersLiked     LikedRules `json:"playersLikedRules"`
}

// PoolBuildView reports the players-liked build progress.
type PoolBuildView struct {
	Status              string `json:"status"`
	ContributorsCount   int    `json:"contributorsCount"`
	MergedTracksCount   int    `json:"mergedTracksCount"`
	PlayableTracksCount int    `json:"playableTracksCount"`
	LastBuiltAtMs       int64  `json:"lastBuiltAtMs,omitempty"`
	ErrorCode           string `json:"errorCode,omitempty"`
	RetryAfterMs        int64  `json:"retryAfterMs,omitempty"`
}

// MediaView carries what the client needs to play the current round's track.
type MediaView struct {
	Provider  string `json:"provider"`
	TrackID   string `json:"trackId"`
	SourceURL string `json:"sourceUrl,omitempty"`
	EmbedURL  string `json:"embedUrl,omitempty"`
}

// Reveal is the published record of the last closed round.
type Reveal struct {
	Round          int            `json:"round"`
	TrackID        string         `json:"trackId"`
	Title          string         `json:"title"`
	TitleRomaji    string         `json:"titleRomaji,omitempty"`
	Artist         string         `json:"artist"`
	ArtistRomaji   string         `json:"artistRomaji,omitempty"`
	Provider       string         `json:"provider"`
	Mode           string         `json:"mode"`
	AcceptedAnswer string         `json:"acceptedAnswer"`
	PreviewURL     string         `json:"previewUrl,omitempty"`
	SourceURL      string         `json:"sourceUrl,omitempty"`
	EmbedURL       string         `json:"embedUrl,omitempty"`
	Choices        []string       `json:"choices,omitempty"`
	PlayerAnswers  []PlayerAnswer `json:"playerAnswers"`
}

// PlayerAnswer is one player's outcome within a Reveal.
type PlayerAnswer struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Answer      string `json:"answer,omitempty"`
	IsCorrect   bool   `json:"isCorrect"`
	ScoreEarned int    `json:"scoreEarned"`
	ResponseMs  int64  `json:"responseMs,omitempty"`
}

// LeaderboardEntry is one row of the standings.
type LeaderboardEntry struct {
	PlayerID                string `json:"playerId"`
	DisplayName             string `json:"displayName"`
	Score                   int    `json:"score"`
	LastRoundScore          int    `json:"lastRoundScore"`
	Streak                  int    `json:"streak"`
	MaxStreak               int    `json:"maxStreak"`
	IsHost                  bool   `json:"isHost"`
	HasAnsweredCurrentRound bool   `json:"hasAnsweredCurrentRound"`
}

// ChatMessage is one room chat entry.
type ChatMessage struct {
	ID          string `json:"id"`
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	Text        string `json:"text"`
	AtMs        int64  `json:"atMs"`
}

// snapshot renders the session under the lock. progress(nowMs) must have
// run first so the view never shows an expired deadline.
func (s *session) snapshot(nowMs int64) *Snapshot {
	snap := &Snapshot{
		RoomCode:          s.code,
		State:             s.phase.String(),
		Round:             s.currentRound,
		ServerNowMs:       nowMs,
		PlayerCount:       len(s.players),
		CanStart:          s.canStart(),
		IsResolvingTracks: s.startInFlight || s.build.status == BuildBuilding,
		PoolSize:          s.poolSize(),
		CategoryQuery:     s.categoryQuery,
		SourceMode:        s.sourceMode.String(),
		SourceConfig:      s.sourceConfigView(),
		TotalRounds:       s.totalRounds,
		DeadlineMs:        s.deadlineMs,
		Reveal:            s.reveal,
	}
	if h := s.host(); h != nil {
		snap.HostPlayerID = h.ID
	}

	snap.Players = make([]PlayerView, 0, len(s.players))
	for _, p := range s.players {
		if p.IsReady {
			snap.ReadyCount++
		}
		snap.Players = append(snap.Players, PlayerView{
			PlayerID:                p.ID,
			DisplayName:             p.DisplayName,
			IsReady:                 p.IsReady,
			HasAnsweredCurrentRound: s.hasAnswered(p.ID),
			IsHost:                  p.ID == snap.HostPlayerID,
			CanContributeLibrary:    p.CanContribute(),
			LibraryContribution:     libraryView(p),
		})
	}
	snap.AllReady = len(s.players) > 0 && snap.ReadyCount == len(s.players)

	if s.sourceMode == SourcePlayersLiked || s.build.status != BuildIdle {
		snap.PoolBuild = s.poolBuildView()
	}

	if s.phase == PhasePlaying {
		tr := s.trackPool[s.currentRound-1]
		snap.Mode = s.roundModes[s.currentRound-1].String()
		snap.Choices = s.roundChoices[s.currentRound]
		snap.PreviewURL = tr.PreviewURL
		snap.Media = s.mediaView(s.currentRound, tr)
	}

	snap.Leaderboard = s.leaderboard()
	snap.ChatMessages = s.chatTail()
	if s.phase != PhaseWaiting {
		snap.AnswerSuggestions = s.poolSuggestions()
	}
	return snap
}

func (s *session) hasAnswered(playerID string) bool {
	_, ok := s.submitted[playerID]
	return ok
}

// poolSize is the number of answer tracks available to play with.
func (s *session) poolSize() int {
	if len(s.trackPool) > 0 {
		return len(s.trackPool)
	}
	if s.likedPool != nil {
		return len(s.likedPool.Answers)
	}
	return 0
}

func (s *session) sourceConfigView() *SourceConfigView {
	view := &SourceConfigView{
		SourceMode:    s.sourceMode.String(),
		CategoryQuery: s.categoryQuery,
		PlayersLiked:  s.cfg.Liked,
	}
	if s.selection != nil {
		view.PlaylistProvider = string(s.selection.Provider)
		view.PlaylistID = s.selection.PlaylistID
	}
	return view
}

func (s *session) poolBuildView() *PoolBuildView {
	return &PoolBuildView{
		Status:              s.build.status.String(),
		ContributorsCount:   s.build.contributorsCount,
		MergedTracksCount:   s.build.mergedTracksCount,
		PlayableTracksCount: s.build.playableTracksCount,
		LastBuiltAtMs:       s.build.lastBuiltAtMs,
		ErrorCode:           string(s.build.errorCode),
		RetryAfterMs:        s.build.retryAfterMs,
	}
}

// leaderboard renders the top standings in ranking order.
func (s *session) leaderboard() []LeaderboardEntry {
	ranked := rankPlayers(s.players)
	if len(ranked) > leaderboardLimit {
		ranked = ranked[:leaderboardLimit]
	}
	hostID := ""
	if h := s.host(); h != nil {
		hostID = h.ID
	}
	out := make([]LeaderboardEntry, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, LeaderboardEntry{
			PlayerID:                r.PlayerID,
			DisplayName:             r.DisplayName,
			Score:                   r.Score,
			LastRoundScore:          r.LastRoundScore,
			Streak:                  r.Streak,
			MaxStreak:               r.MaxStreak,
			IsHost:                  r.PlayerID == hostID,
			HasAnsweredCurrentRound: s.hasAnswered(r.PlayerID),
		})
	}
	return out
}

// chatTail copies the newest chat messages up to the snapshot limit.
func (s *session) chatTail() []ChatMessage {
	msgs := s.chat
	if len(msgs) > chatSnapshotLimit {
		msgs = msgs[len(msgs)-chatSnapshotLimit:]
	}
	out := make([]ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func libraryView(p *player.Player) LibraryView {
	view := LibraryView{
		IncludeInPool:       make(map[string]bool, len(p.Library.IncludeInPool)),
		LinkedProviders:     make(map[string]string, len(p.Library.LinkedProviders)),
		EstimatedTrackCount: make(map[string]int, len(p.Library.EstimatedTrackCount)),
		SyncStatus:          string(p.Library.SyncStatus),
		LastError:           p.Library.LastError,
	}
	for provider, include := range p.Library.IncludeInPool {
		view.IncludeInPool[string(provider)] = include
	}
	for provider, status := range p.Library.LinkedProviders {
		view.LinkedProviders[string(provider)] = string(status)
	}
	for provider, count := range p.Library.EstimatedTrackCount {
		view.EstimatedTrackCount[string(provider)] = count
	}
	return view
}

func (s *session) mediaView(round int, tr track.Track) *MediaView {
	return &MediaView{
		Provider:  string(tr.Provider),
		TrackID:   tr.ID,
		SourceURL: tr.SourceURL,
		EmbedURL:  embedURL(s.code, round, tr),
	}
}

// youtubeIDPatterns pull a video id out of the URL shapes providers hand us.
var youtubeIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`youtu\.be/([A-Za-z0-9_-]{6,})`),
	regexp.MustCompile(`/embed/([A-Za-z0-9_-]{6,})`),
}

func youtubeVideoID(tr track.Track) (string, bool) {
	if tr.Provider == track.ProviderYouTube && tr.ID != "" {
		return tr.ID, true
	}
	for _, re := range youtubeIDPatterns {
		if m := re.FindStringSubmatch(tr.SourceURL); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// embedURL builds the playback URL for a round's track. YouTube embeds get a
// deterministic start offset so every client of the room lands on the same
// part of the song; AnimeThemes files are played directly.
func embedURL(code string, round int, tr track.Track) string {
	if tr.Provider == track.ProviderAnimeThemes {
		return tr.SourceURL
	}
	id, ok := youtubeVideoID(tr)
	if !ok {
		return tr.SourceURL
	}
	u := "https://www.youtube.com/embed/" + id
	if start := playbackStart(code, round, tr); start > 0 {
		u += "?start=" + strconv.Itoa(start)
	}
	return u
}

// minOffsetDuration is the shortest video that gets a non-zero start offset;
// shorter clips play from the beginning.
const minOffsetDuration = 45

// playbackStart picks the deterministic start second for a YouTube video,
// keyed on room, round and track so rejoining clients stay in sync. The
// offset avoids the first 18 and last 20 seconds.
func playbackStart(code string, round int, tr track.Track) int {
	if tr.DurationSec < minOffsetDuration {
		return 0
	}
	seed := code + ":" + strconv.Itoa(round) + ":" + tr.ID
	return deterministicInt(seed, 18, tr.DurationSec-20)
}
