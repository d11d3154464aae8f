package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/tuneclash/tuneclash/internal/app/room"
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

func (c *fakeClock) Advance(deltaMs int64) {
	c.mu.Lock()
	c.ms += deltaMs
	c.mu.Unlock()
}

func noShuffle(int, func(i, j int)) {}

// fakeSource serves a fixed track list for any query.
type fakeSource struct {
	mu     sync.Mutex
	tracks []track.Track
	err    error
}

func (f *fakeSource) Fetch(_ context.Context, _ string, _ int) ([]track.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]track.Track, len(f.tracks))
	copy(out, f.tracks)
	return out, nil
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

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

// twoTracks keeps the pool below the MCQ threshold so rounds play as text.
func twoTracks() []track.Track {
	return []track.Track{
		ytTrack("vidA", "Alpha Song", "Neon Waves", 180),
		ytTrack("vidB", "Beta Lights", "City Echo", 200),
	}
}

// fakeLibrary records ingestion batches per user.
type fakeLibrary struct {
	mu      sync.Mutex
	rows    map[string][]track.Track
	failing error
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{rows: make(map[string][]track.Track)}
}

func (f *fakeLibrary) UpsertLikedTracks(_ context.Context, userID string, _ int64, tracks []track.Track) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing != nil {
		return 0, f.failing
	}
	stored := 0
	for _, t := range tracks {
		if !t.Provider.Known() || t.ID == "" || t.Title == "" {
			continue
		}
		f.rows[userID] = append(f.rows[userID], t)
		stored++
	}
	return stored, nil
}

func (f *fakeLibrary) CountUserTracks(_ context.Context, userID string) (map[track.Provider]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[track.Provider]int)
	for _, t := range f.rows[userID] {
		out[t.Provider]++
	}
	return out, nil
}

func (f *fakeLibrary) userRows(userID string) []track.Track {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]track.Track(nil), f.rows[userID]...)
}

func (f *fakeLibrary) setFail(err error) {
	f.mu.Lock()
	f.failing = err
	f.mu.Unlock()
}

// staticUsers resolves fixed bearer tokens to user ids.
type staticUsers map[string]string

func (u staticUsers) ResolveUser(_ context.Context, token string) (string, error) {
	if id, ok := u[token]; ok {
		return id, nil
	}
	return "", errors.Newf("unknown token %q", token)
}

// testEnv runs the API over httptest against a real store with fakes behind it.
type testEnv struct {
	ts      *httptest.Server
	store   *room.Store
	clock   *fakeClock
	source  *fakeSource
	library *fakeLibrary
}

// gameTiming is deliberately generous: phases only advance when the test
// moves the injected clock.
func gameTiming() room.Timing {
	return room.Timing{
		CountdownMs:   1000,
		PlayingMs:     30000,
		RevealMs:      2000,
		LeaderboardMs: 2000,
		BaseScore:     1000,
		MaxRounds:     2,
	}
}

func newTestEnv(t *testing.T, apiCfg Config) *testEnv {
	t.Helper()

	clock := newFakeClock(1_000_000)
	source := &fakeSource{tracks: twoTracks()}
	st := room.NewStore(room.Config{
		Timing:         gameTiming(),
		StartBuildWait: 50 * time.Millisecond,
		PoolRetryDelay: time.Millisecond,
		ResultsTTL:     time.Minute,
		Clock:          clock.Now,
		Shuffle:        noShuffle,
	}, room.Deps{Tracks: source})
	t.Cleanup(st.Close)

	library := newFakeLibrary()
	srv := New(st, library, staticUsers{"tok-ana": "user-ana"}, apiCfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, store: st, clock: clock, source: source, library: library}
}

// newLocalServer wraps any Server in an httptest listener.
func newLocalServer(t *testing.T, srv *Server) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

// request performs one JSON round trip. out may be nil; token adds a bearer
// Authorization header.
func (e *testEnv) request(t *testing.T, method, path, token string, body, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (e *testEnv) post(t *testing.T, path string, body, out any) *http.Response {
	t.Helper()
	return e.request(t, http.MethodPost, path, "", body, out)
}

func (e *testEnv) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	return e.request(t, http.MethodGet, path, "", nil, out)
}

// createRoom makes a private room and joins the given players in order; the
// first name becomes the host.
func (e *testEnv) createRoom(t *testing.T, category string, names ...string) (string, []string) {
	t.Helper()

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms", map[string]any{"categoryQuery": category}, &snap)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, snap.RoomCode)

	ids := make([]string, 0, len(names))
	for _, name := range names {
		var joined joinResponse
		resp := e.post(t, "/api/rooms/"+snap.RoomCode+"/join", map[string]any{"displayName": name}, &joined)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, joined.PlayerID)
		ids = append(ids, joined.PlayerID)
	}
	return snap.RoomCode, ids
}
