// Package pool acquires candidate tracks from external sources and splits
// them into the answer and distractor pools a game runs on.
package pool

import (
	"context"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// Source is the interface for track pool sources.
// Different implementations serve different query prefixes
// (e.g., Deezer playlists, Spotify playlists, AnimeThemes searches).
type Source interface {
	// Fetch retrieves up to size candidate tracks for the source query.
	// It may return tagged errors such as SPOTIFY_RATE_LIMITED or
	// PLAYLIST_TRACKS_RESOLVING; callers classify on the fault code.
	Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error)
}
