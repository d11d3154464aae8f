package room

import (
	"math/rand"
	"time"

	"github.com/tuneclash/tuneclash/internal/domain/scoring"
)

// Timing holds the round schedule of a game.
type Timing struct {
	CountdownMs   int64 // Delay between start and the first round
	PlayingMs     int64 // Answer window per round
	RevealMs      int64 // Answer display after a round closes
	LeaderboardMs int64 // Standings display between rounds
	BaseScore     int   // Score of an instant correct answer at streak 0
	MaxRounds     int   // Rounds per game
}

// DefaultTiming returns the production round schedule.
func DefaultTiming() Timing {
	return Timing{
		CountdownMs:   3000,
		PlayingMs:     12000,
		RevealMs:      4000,
		LeaderboardMs: 3000,
		BaseScore:     1000,
		MaxRounds:     10,
	}
}

// LikedRules gates the players-liked source mode.
type LikedRules struct {
	MinContributors int `json:"minContributors"` // Eligible contributors required to start
	MinTotalTracks  int `json:"minTotalTracks"`  // Lower bound on the per-contributor fetch size
}

// DefaultLikedRules returns the production gate.
func DefaultLikedRules() LikedRules {
	return LikedRules{MinContributors: 1, MinTotalTracks: 24}
}

// Config tunes a Store. Zero values fall back to production defaults.
type Config struct {
	Timing  Timing
	Scoring scoring.Config
	Liked   LikedRules

	// SuggestionLimit caps pool-sourced answer suggestions per snapshot.
	SuggestionLimit int

	// StartBuildWait bounds how long a start call waits for an in-flight
	// players-liked build before returning PLAYERS_LIBRARY_SYNCING.
	StartBuildWait time.Duration

	// PoolFetchTimeout bounds one public source fetch; zero keeps the
	// builder default. PoolRetryDelay spaces pool build retry passes.
	PoolFetchTimeout time.Duration
	PoolRetryDelay   time.Duration

	// ResultsTTL is how long a finished room survives before Sweep
	// destroys it.
	ResultsTTL time.Duration

	// Clock supplies the current time. Injectable for tests.
	Clock func() time.Time

	// Shuffle randomises slices (pools, MCQ choices). Injectable for tests.
	Shuffle func(n int, swap func(i, j int))
}

const (
	chatCapacity      = 120
	chatSnapshotLimit = 80
	chatMaxLen        = 400
	draftMaxLen       = 120
	leaderboardLimit  = 10

	defaultSuggestionLimit = 1000
	bulkSuggestionRows     = 16000
	bulkSuggestionLimit    = 24000

	defaultStartBuildWait = 12 * time.Second
	defaultResultsTTL     = 15 * time.Minute

	likedBuildTimeout = 45 * time.Second
	likedFetchBuffer  = 20
	likedFetchWorkers = 4

	// syncRetryAfterMs is the advisory delay attached to retryable
	// pool-acquisition errors raised by the room itself.
	syncRetryAfterMs = 1500
)

// withDefaults fills unset fields with production values.
func (c Config) withDefaults() Config {
	if c.Timing == (Timing{}) {
		c.Timing = DefaultTiming()
	}
	if c.Scoring == (scoring.Config{}) {
		c.Scoring = scoring.DefaultConfig()
	}
	if c.Liked == (LikedRules{}) {
		c.Liked = DefaultLikedRules()
	}
	if c.SuggestionLimit <= 0 {
		c.SuggestionLimit = defaultSuggestionLimit
	}
	if c.StartBuildWait <= 0 {
		c.StartBuildWait = defaultStartBuildWait
	}
	if c.ResultsTTL <= 0 {
		c.ResultsTTL = defaultResultsTTL
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Shuffle == nil {
		c.Shuffle = rand.Shuffle
	}
	return c
}
