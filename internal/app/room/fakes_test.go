package room

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

// fakeClock is a hand-advanced clock shared between the test and the store.
type fakeClock struct {
	mu sync.Mutex
	ms int64
}

func newFakeClock(startMs int64) *fakeClock {
	return &fakeClock{ms: startMs}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.UnixMilli(c.ms)
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.ms = ms
	c.mu.Unlock()
}

// noShuffle keeps slices in their natural order so pools, round plans and
// MCQ choices are deterministic.
func noShuffle(int, func(i, j int)) {}

// gameConfig is the standard fast test schedule: countdown 10ms, rounds of
// 100ms, reveal and leaderboard 10ms each, base score 1000.
func gameConfig(clock *fakeClock, rounds int) Config {
	return Config{
		Timing: Timing{
			CountdownMs:   10,
			PlayingMs:     100,
			RevealMs:      10,
			LeaderboardMs: 10,
			BaseScore:     1000,
			MaxRounds:     rounds,
		},
		StartBuildWait: 50 * time.Millisecond,
		PoolRetryDelay: time.Millisecond,
		ResultsTTL:     time.Second,
		Clock:          clock.Now,
		Shuffle:        noShuffle,
	}
}

// setupRoom creates a store, a private room and the given players, in join
// order. The first name becomes the host.
func setupRoom(t *testing.T, cfg Config, deps Deps, names ...string) (*Store, string, []string) {
	t.Helper()
	st := NewStore(cfg, deps)
	t.Cleanup(st.Close)

	snap, err := st.CreateRoom(false, "")
	require.NoError(t, err)

	ids := make([]string, 0, len(names))
	for _, name := range names {
		_, id, err := st.JoinRoom(snap.RoomCode, name)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return st, snap.RoomCode, ids
}

// ytTrack builds a playable YouTube-backed track.
func ytTrack(id, title, artist string, durationSec int) track.Track {
	return track.Track{
		Provider:    track.ProviderYouTube,
		ID:          id,
		Title:       title,
		Artist:      artist,
		SourceURL:   "https://www.youtube.com/watch?v=" + id,
		DurationSec: durationSec,
	}
}

// twoTracks is the minimal two-round pool. Too small for MCQ rounds, so
// every round plays as text.
func twoTracks() []track.Track {
	return []track.Track{
		ytTrack("vidA", "Alpha Song", "Neon Waves", 180),
		ytTrack("vidB", "Beta Lights", "City Echo", 200),
	}
}

// englishTracks is a five-track pool whose labels are mutually coherent, so
// MCQ rounds can always seat four choices.
func englishTracks() []track.Track {
	return []track.Track{
		ytTrack("vidA", "Alpha Song", "Neon Waves", 180),
		ytTrack("vidB", "The Long Night", "Harbor Lights", 200),
		ytTrack("vidC", "Never Look Down", "The Static Line", 210),
		ytTrack("vidD", "All For You", "Golden Hour Club", 190),
		ytTrack("vidE", "Gonna Be Alright", "The Paper Lanterns", 205),
	}
}

func libraryTracks(n int) []track.Track {
	out := make([]track.Track, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ytTrack(
			fmt.Sprintf("lib%03d", i),
			fmt.Sprintf("Liked Song %d", i),
			fmt.Sprintf("Library Artist %d", i),
			120+i,
		))
	}
	return out
}

// scriptedSource is a deterministic pool.Source: it returns its scripted
// tracks (capped at the requested size) or its scripted error, and counts
// fetches.
type scriptedSource struct {
	mu     sync.Mutex
	tracks []track.Track
	err    error
	calls  int
}

func (s *scriptedSource) Fetch(_ context.Context, _ string, size int) ([]track.Track, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	out := s.tracks
	if size < len(out) {
		out = out[:size]
	}
	return append([]track.Track(nil), out...), nil
}

func (s *scriptedSource) fetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// gatedLibrary is a LibrarySource whose fetches block until release is
// called, mimicking a slow upstream sync. It records the last request.
type gatedLibrary struct {
	mu      sync.Mutex
	gate    chan struct{}
	tracks  []track.Track
	err     error
	calls   int
	lastReq LikedTracksRequest
}

func newGatedLibrary(tracks []track.Track) *gatedLibrary {
	return &gatedLibrary{gate: make(chan struct{}), tracks: tracks}
}

func (l *gatedLibrary) FetchUserLikedTracks(ctx context.Context, req LikedTracksRequest) ([]track.Track, error) {
	l.mu.Lock()
	l.calls++
	l.lastReq = req
	gate := l.gate
	err := l.err
	tracks := append([]track.Track(nil), l.tracks...)
	l.mu.Unlock()

	select {
	case <-gate:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return tracks, nil
}

func (l *gatedLibrary) release() {
	close(l.gate)
}

func (l *gatedLibrary) fetchCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *gatedLibrary) lastRequest() LikedTracksRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastReq
}

// fakeSuggestions is a SuggestionSource that records the call parameters.
type fakeSuggestions struct {
	mu       sync.Mutex
	labels   []string
	err      error
	seed     string
	maxRows  int
	maxItems int
}

func (f *fakeSuggestions) BulkSuggestions(_ context.Context, seed string, maxRows, maxSuggestions int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seed = seed
	f.maxRows = maxRows
	f.maxItems = maxSuggestions
	if f.err != nil {
		return nil, f.err
	}
	return append([]string(nil), f.labels...), nil
}

// fakeRecorder captures persisted match records.
type fakeRecorder struct {
	mu   sync.Mutex
	recs []MatchRecord
}

func (f *fakeRecorder) RecordMatch(_ context.Context, rec MatchRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return nil
}

func (f *fakeRecorder) records() []MatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]MatchRecord(nil), f.recs...)
}

// fakeRomanizer serves a fixed transliteration table and records warm-up
// hints.
type fakeRomanizer struct {
	mu        sync.Mutex
	table     map[string]string
	scheduled []string
}

func (f *fakeRomanizer) Cached(s string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.table[s]
	return v, ok
}

func (f *fakeRomanizer) Schedule(s string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scheduled = append(f.scheduled, s)
}

func (f *fakeRomanizer) scheduledStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.scheduled...)
}
