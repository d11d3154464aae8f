package youtube

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := New(Config{APIKey: "test-key", RequestsPerSecond: 1000})
	require.NoError(t, err)
	c.baseURL = server.URL
	c.httpClient = server.Client()
	return c
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestClient_ResolveTrack_PicksTitleAndArtistMatch(t *testing.T) {
	var searchQuery url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			searchQuery = r.URL.Query()
			w.Write([]byte(`{"items":[
				{"id":{"videoId":"vid1"},"snippet":{"title":"Cooking with gas","channelTitle":"Kitchen"}},
				{"id":{"videoId":"vid2"},"snippet":{"title":"Alpha Song (Lyric Video)","channelTitle":"Random Uploads"}},
				{"id":{"videoId":"vid3"},"snippet":{"title":"Alpha Song (Official)","channelTitle":"Neon Waves"}}
			]}`))
		case "/videos":
			assert.Equal(t, "vid3", r.URL.Query().Get("id"))
			w.Write([]byte(`{"items":[{"id":"vid3","contentDetails":{"duration":"PT3M33S"}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	tr, ok, err := c.ResolveTrack(context.Background(), "Alpha Song", "Neon Waves")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, track.ProviderYouTube, tr.Provider)
	assert.Equal(t, "vid3", tr.ID, "title+artist match beats title-only match")
	assert.Equal(t, "Alpha Song", tr.Title)
	assert.Equal(t, "Neon Waves", tr.Artist)
	assert.Equal(t, "https://www.youtube.com/watch?v=vid3", tr.SourceURL)
	assert.Equal(t, 213, tr.DurationSec)

	assert.Equal(t, "Alpha Song Neon Waves", searchQuery.Get("q"))
	assert.Equal(t, "test-key", searchQuery.Get("key"))
	assert.Equal(t, "video", searchQuery.Get("type"))
}

func TestClient_ResolveTrack_NoAcceptableMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[
			{"id":{"videoId":"vid1"},"snippet":{"title":"Completely unrelated","channelTitle":"Other"}}
		]}`))
	})

	_, ok, err := c.ResolveTrack(context.Background(), "Alpha Song", "Neon Waves")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_ResolveTrack_RejectsOverlongVideo(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/search":
			w.Write([]byte(`{"items":[
				{"id":{"videoId":"mix1"},"snippet":{"title":"Alpha Song full album mix","channelTitle":"Neon Waves"}}
			]}`))
		case "/videos":
			w.Write([]byte(`{"items":[{"id":"mix1","contentDetails":{"duration":"PT1H2M3S"}}]}`))
		}
	})

	_, ok, err := c.ResolveTrack(context.Background(), "Alpha Song", "Neon Waves")
	require.NoError(t, err)
	assert.False(t, ok, "hour-long uploads are not playable rounds")
}

func TestClient_ResolveTrack_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"code":403,"message":"quotaExceeded"}}`))
	})

	_, _, err := c.ResolveTrack(context.Background(), "Alpha Song", "Neon Waves")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quotaExceeded")
}

func TestClient_ResolveTrack_EmptyResults(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items":[]}`))
	})

	_, ok, err := c.ResolveTrack(context.Background(), "Alpha Song", "Neon Waves")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "PT3M27S", want: 207},
		{input: "PT45S", want: 45},
		{input: "PT1H2M3S", want: 3723},
		{input: "PT2H", want: 7200},
		{input: "P1DT2H", want: 93600},
		{input: "banana", wantErr: true},
		{input: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseISODuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
