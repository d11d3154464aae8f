package room

import (
	"context"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// LikedTracksRequest describes one contributor's library fetch.
type LikedTracksRequest struct {
	UserID               string
	Providers            []track.Provider
	Size                 int
	AllowExternalResolve bool
}

// LibrarySource resolves players' liked tracks for the players-liked mode.
type LibrarySource interface {
	FetchUserLikedTracks(ctx context.Context, req LikedTracksRequest) ([]track.Track, error)
}

// Romanizer is a non-blocking romanisation cache. Cached returns a romaji
// form when one is already known; Schedule hints the cache to warm a string
// in the background. Neither call may block on network.
type Romanizer interface {
	Cached(s string) (string, bool)
	Schedule(s string)
}

// SuggestionSource supplies bulk answer suggestions from persistent library
// data. The seed pins the pseudo-random row order so repeated calls for the
// same room return the same set.
type SuggestionSource interface {
	BulkSuggestions(ctx context.Context, seed string, maxRows, maxSuggestions int) ([]string, error)
}

// MatchRecord is the final outcome of a game, persisted best-effort.
type MatchRecord struct {
	RoomCode     string
	FinishedAtMs int64
	Rounds       int
	Rankings     []RankingEntry
}

// MatchRecorder persists finished games. Failures must not affect the
// in-memory results surface.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, rec MatchRecord) error
}

// Deps are the external collaborators of a Store. Tracks is required;
// the rest degrade gracefully when nil.
type Deps struct {
	Tracks      pool.Source      // Public playlist fetches
	Library     LibrarySource    // Players-liked fetches
	Romanizer   Romanizer        // Non-blocking romaji lookups
	Suggestions SuggestionSource // Bulk answer suggestions
	Recorder    MatchRecorder    // Match history persistence
}

// romajiCached is a nil-safe Cached lookup.
func (d *Deps) romajiCached(s string) string {
	if d.Romanizer == nil || s == "" {
		return ""
	}
	r, ok := d.Romanizer.Cached(s)
	if !ok || r == s {
		return ""
	}
	return r
}

// romajiSchedule is a nil-safe Schedule hint.
func (d *Deps) romajiSchedule(s string) {
	if d.Romanizer == nil || s == "" {
		return
	}
	d.Romanizer.Schedule(s)
}
