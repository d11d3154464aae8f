package sources

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

type fakeResolver struct {
	mu         sync.Mutex
	calls      int
	inflight   int
	maxSeen    int
	delay      time.Duration
	err        error
	byTitle    map[string]track.Track
	misses     map[string]bool
	titlesSeen []string
}

func (f *fakeResolver) ResolveTrack(ctx context.Context, title, artist string) (track.Track, bool, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.maxSeen {
		f.maxSeen = f.inflight
	}
	f.titlesSeen = append(f.titlesSeen, title)
	delay := f.delay
	err := f.err
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inflight--
	hit, ok := f.byTitle[strings.ToLower(title)]
	miss := f.misses[strings.ToLower(title)]
	f.mu.Unlock()

	if err != nil {
		return track.Track{}, false, err
	}
	if miss || !ok {
		return track.Track{}, false, nil
	}
	return hit, true, nil
}

func (f *fakeResolver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func spotifyTrack(id, title, artist string) track.Track {
	return track.Track{
		Provider:    track.ProviderSpotify,
		ID:          id,
		Title:       title,
		Artist:      artist,
		PreviewURL:  "https://p.scdn.co/mp3-preview/" + id,
		DurationSec: 195,
	}
}

func TestResolvingSource_UpgradesUnplayableTracks(t *testing.T) {
	inner := &fakeSource{tracks: []track.Track{
		ytTrack("vid1", "Already Here", "The Locals"),
		spotifyTrack("sp1", "Alpha Song", "Neon Waves"),
		spotifyTrack("sp2", "Slow Burn", "Ember Parade"),
	}}
	resolver := &fakeResolver{byTitle: map[string]track.Track{
		"alpha song": {
			Provider:    track.ProviderYouTube,
			ID:          "vidZ",
			SourceURL:   "https://www.youtube.com/watch?v=vidZ",
			DurationSec: 204,
		},
		"slow burn": {
			Provider:  track.ProviderYouTube,
			ID:        "vidY",
			SourceURL: "https://www.youtube.com/watch?v=vidY",
			// No duration reported: the catalogue value stands.
		},
	}}

	source := NewResolvingSource(inner, resolver, 2)
	tracks, err := source.Fetch(context.Background(), "80s rock", 10)
	require.NoError(t, err)
	require.Len(t, tracks, 3)

	// The playable track is never sent to the resolver.
	assert.Equal(t, 2, resolver.callCount())
	assert.Equal(t, "https://www.youtube.com/watch?v=vid1", tracks[0].SourceURL)

	alpha := tracks[1]
	assert.Equal(t, track.ProviderSpotify, alpha.Provider)
	assert.Equal(t, "sp1", alpha.ID)
	assert.Equal(t, "Alpha Song", alpha.Title)
	assert.Equal(t, "Neon Waves", alpha.Artist)
	assert.Equal(t, "https://p.scdn.co/mp3-preview/sp1", alpha.PreviewURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=vidZ", alpha.SourceURL)
	assert.Equal(t, 204, alpha.DurationSec)
	assert.True(t, alpha.Playable())

	slow := tracks[2]
	assert.Equal(t, "https://www.youtube.com/watch?v=vidY", slow.SourceURL)
	assert.Equal(t, 195, slow.DurationSec)
}

func TestResolvingSource_MissAndErrorLeaveTrackUntouched(t *testing.T) {
	inner := &fakeSource{tracks: []track.Track{
		spotifyTrack("sp1", "Nowhere Fast", "The Unfound"),
	}}
	resolver := &fakeResolver{misses: map[string]bool{"nowhere fast": true}}

	source := NewResolvingSource(inner, resolver, 2)
	tracks, err := source.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.False(t, tracks[0].Playable())
	assert.Empty(t, tracks[0].SourceURL)

	// A resolver failure is tolerated the same way.
	resolver = &fakeResolver{err: errors.New("quota exceeded")}
	source = NewResolvingSource(inner, resolver, 2)
	tracks, err = source.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.False(t, tracks[0].Playable())
}

func TestResolvingSource_InnerErrorPassthrough(t *testing.T) {
	inner := &fakeSource{err: fault.Retry(fault.CodePlaylistTracksResolving, 1500)}
	resolver := &fakeResolver{}

	source := NewResolvingSource(inner, resolver, 2)
	_, err := source.Fetch(context.Background(), "deezer:playlist:9", 10)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.CodePlaylistTracksResolving))
	assert.Equal(t, 0, resolver.callCount())
}

func TestResolvingSource_BoundsConcurrency(t *testing.T) {
	var pending []track.Track
	for i := 0; i < 6; i++ {
		pending = append(pending, spotifyTrack("sp"+string(rune('a'+i)), "Track "+string(rune('A'+i)), "Artist"))
	}
	inner := &fakeSource{tracks: pending}
	resolver := &fakeResolver{delay: 20 * time.Millisecond}

	source := NewResolvingSource(inner, resolver, 2)
	_, err := source.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)

	assert.Equal(t, 6, resolver.callCount())
	assert.LessOrEqual(t, resolver.maxSeen, 2)
}

func TestResolvingSource_CancelledContext(t *testing.T) {
	inner := &fakeSource{tracks: []track.Track{
		spotifyTrack("sp1", "Alpha Song", "Neon Waves"),
	}}
	resolver := &fakeResolver{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := NewResolvingSource(inner, resolver, 2)
	_, err := source.Fetch(ctx, "q", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestResolvingSource_NothingPending(t *testing.T) {
	inner := &fakeSource{tracks: []track.Track{
		ytTrack("vid1", "A", "B"),
		ytTrack("vid2", "C", "D"),
	}}
	resolver := &fakeResolver{}

	source := NewResolvingSource(inner, resolver, 2)
	tracks, err := source.Fetch(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)
	assert.Equal(t, 0, resolver.callCount())
}
