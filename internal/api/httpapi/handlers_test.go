package httpapi

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tuneclash/tuneclash/internal/app/room"
	"github.com/tuneclash/tuneclash/internal/domain/fault"
)

func TestServer_CreateAndJoinRoom(t *testing.T) {
	e := newTestEnv(t, Config{})

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms", map[string]any{"categoryQuery": "80s rock"}, &snap)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Len(t, snap.RoomCode, 6)
	assert.Equal(t, "waiting", snap.State)
	assert.Equal(t, "80s rock", snap.CategoryQuery)

	var first joinResponse
	resp = e.post(t, "/api/rooms/"+snap.RoomCode+"/join", map[string]any{"displayName": "Ana"}, &first)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, first.PlayerID)
	assert.Equal(t, first.PlayerID, first.Room.HostPlayerID)

	var second joinResponse
	resp = e.post(t, "/api/rooms/"+snap.RoomCode+"/join", map[string]any{"displayName": "Ben"}, &second)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, first.PlayerID, second.PlayerID)
	assert.Equal(t, 2, second.Room.PlayerCount)

	var state room.Snapshot
	resp = e.get(t, "/api/rooms/"+snap.RoomCode, &state)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, state.PlayerCount)
	assert.Equal(t, first.PlayerID, state.HostPlayerID)
}

func TestServer_CreateRoomEmptyBody(t *testing.T) {
	e := newTestEnv(t, Config{})

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms", nil, &snap)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "waiting", snap.State)
	assert.Empty(t, snap.CategoryQuery)
}

func TestServer_JoinValidation(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, _ := e.createRoom(t, "", "Ana")

	// Malformed JSON.
	resp, err := http.Post(e.ts.URL+"/api/rooms/"+code+"/join", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Missing display name.
	var body errorBody
	resp2 := e.post(t, "/api/rooms/"+code+"/join", map[string]any{}, &body)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidPayload), body.Error.Code)

	// Unknown room.
	var notFound errorBody
	resp3 := e.post(t, "/api/rooms/ZZZZZZ/join", map[string]any{"displayName": "Ana"}, &notFound)
	assert.Equal(t, http.StatusNotFound, resp3.StatusCode)
	assert.Equal(t, string(fault.CodeRoomNotFound), notFound.Error.Code)
}

func TestServer_SourceSelection(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana", "Ben")
	host, guest := ids[0], ids[1]

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/source", map[string]any{
		"playerId": host, "categoryQuery": "city pop",
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "city pop", snap.CategoryQuery)

	resp = e.post(t, "/api/rooms/"+code+"/source", map[string]any{
		"playerId": host, "provider": "spotify", "playlistId": "37i9dQZF1DX4io0k2L4fDj",
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, snap.SourceConfig)
	assert.Equal(t, "spotify", snap.SourceConfig.PlaylistProvider)
	assert.Equal(t, "37i9dQZF1DX4io0k2L4fDj", snap.SourceConfig.PlaylistID)

	resp = e.post(t, "/api/rooms/"+code+"/source", map[string]any{
		"playerId": host, "sourceMode": "players_liked",
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "players_liked", snap.SourceMode)

	var invalid errorBody
	resp = e.post(t, "/api/rooms/"+code+"/source", map[string]any{
		"playerId": host, "sourceMode": "best_of",
	}, &invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidMode), invalid.Error.Code)

	var forbidden errorBody
	resp = e.post(t, "/api/rooms/"+code+"/source", map[string]any{
		"playerId": guest, "categoryQuery": "jazz",
	}, &forbidden)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(fault.CodeHostOnly), forbidden.Error.Code)
}

func TestServer_ReadyToggle(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "80s", "Ana", "Ben")

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/ready", map[string]any{"playerId": ids[0], "ready": true}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, snap.ReadyCount)
	assert.False(t, snap.AllReady)

	resp = e.post(t, "/api/rooms/"+code+"/ready", map[string]any{"playerId": ids[1], "ready": true}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, snap.ReadyCount)
	assert.True(t, snap.AllReady)

	// The ready flag itself is required.
	var invalid errorBody
	resp = e.post(t, "/api/rooms/"+code+"/ready", map[string]any{"playerId": ids[0]}, &invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidPayload), invalid.Error.Code)
}

func TestServer_GameFlow(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "synthwave", "Ana", "Ben")

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "countdown", snap.State)
	assert.Equal(t, 2, snap.TotalRounds)

	// Countdown elapses; the first round opens on the next operation.
	e.clock.Advance(1000)

	var res room.SubmitResult
	resp = e.post(t, "/api/rooms/"+code+"/answer", map[string]any{"playerId": ids[0], "value": "Alpha Song"}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, res.Accepted)
	assert.Equal(t, "playing", res.State)
	assert.Equal(t, "text", res.Mode)
	assert.Equal(t, 1, res.Round)

	// Second submission by the same player is tolerated but not counted.
	resp = e.post(t, "/api/rooms/"+code+"/answer", map[string]any{"playerId": ids[0], "value": "again"}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, res.Accepted)

	// Everyone answered: the round closes early.
	resp = e.post(t, "/api/rooms/"+code+"/answer", map[string]any{"playerId": ids[1], "value": "no idea"}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, res.Accepted)
	assert.Equal(t, "reveal", res.State)

	var results room.Results
	resp = e.get(t, "/api/rooms/"+code+"/results", &results)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, results.Final)
	require.Len(t, results.Rankings, 2)
	assert.Equal(t, ids[0], results.Rankings[0].PlayerID)
	assert.Positive(t, results.Rankings[0].Score)
	assert.Zero(t, results.Rankings[1].Score)
}

func TestServer_DraftPromotionContract(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "synthwave", "Ana")

	// Drafts outside a playing round are tolerated, not counted.
	var res room.SubmitResult
	resp := e.post(t, "/api/rooms/"+code+"/draft", map[string]any{"playerId": ids[0], "value": "alp"}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, res.Accepted)
	assert.Equal(t, "waiting", res.State)

	var snap room.Snapshot
	resp = e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.clock.Advance(1000)

	resp = e.post(t, "/api/rooms/"+code+"/draft", map[string]any{"playerId": ids[0], "value": "alpha so"}, &res)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, res.Accepted)
	assert.Equal(t, "playing", res.State)
}

func TestServer_SkipRound(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "synthwave", "Ana", "Ben")

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	e.clock.Advance(1000)

	resp = e.post(t, "/api/rooms/"+code+"/skip", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "reveal", snap.State)

	var forbidden errorBody
	resp = e.post(t, "/api/rooms/"+code+"/skip", map[string]any{"playerId": ids[1]}, &forbidden)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(fault.CodeHostOnly), forbidden.Error.Code)
}

func TestServer_KickAndLeave(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana", "Ben", "Cleo")

	var forbidden errorBody
	resp := e.post(t, "/api/rooms/"+code+"/kick", map[string]any{"playerId": ids[1], "targetId": ids[0]}, &forbidden)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(fault.CodeHostOnly), forbidden.Error.Code)

	var snap room.Snapshot
	resp = e.post(t, "/api/rooms/"+code+"/kick", map[string]any{"playerId": ids[0], "targetId": ids[2]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, snap.PlayerCount)

	// Host leaving promotes the next player in join order.
	resp = e.post(t, "/api/rooms/"+code+"/leave", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, snap.PlayerCount)
	assert.Equal(t, ids[1], snap.HostPlayerID)
}

func TestServer_ReplayOnlyFromResults(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana")

	var body errorBody
	resp := e.post(t, "/api/rooms/"+code+"/replay", map[string]any{"playerId": ids[0]}, &body)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidState), body.Error.Code)
}

func TestServer_StartFaults(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana", "Ben")

	var noSource errorBody
	resp := e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &noSource)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, string(fault.CodeSourceNotSet), noSource.Error.Code)

	var forbidden errorBody
	resp = e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[1]}, &forbidden)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, string(fault.CodeHostOnly), forbidden.Error.Code)
}

func TestServer_RetryableFaultCarriesRetryAfter(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "synthwave", "Ana")
	e.source.setErr(fault.Retry(fault.CodeSpotifyRateLimited, 2000))

	var body errorBody
	resp := e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &body)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, string(fault.CodeSpotifyRateLimited), body.Error.Code)
	assert.Equal(t, int64(2000), body.Error.RetryAfterMs)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
}

func TestServer_ChatFlow(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana", "Ben")

	var msg room.ChatMessage
	resp := e.post(t, "/api/rooms/"+code+"/chat", map[string]any{"playerId": ids[1], "text": "  bonjour  "}, &msg)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "Ben", msg.DisplayName)
	assert.Equal(t, "bonjour", msg.Text)

	var snap room.Snapshot
	resp = e.get(t, "/api/rooms/"+code, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, snap.ChatMessages, 1)
	assert.Equal(t, msg.ID, snap.ChatMessages[0].ID)

	var invalid errorBody
	resp = e.post(t, "/api/rooms/"+code+"/chat", map[string]any{"playerId": ids[0], "text": ""}, &invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidPayload), invalid.Error.Code)
}

func TestServer_Suggestions(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "synthwave", "Ana")

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/start", map[string]any{"playerId": ids[0]}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Suggestions []string `json:"suggestions"`
	}
	resp = e.get(t, "/api/rooms/"+code+"/suggestions?playerId="+ids[0], &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, out.Suggestions, "Alpha Song - Neon Waves")
	assert.Contains(t, out.Suggestions, "Beta Lights - City Echo")
	assert.Contains(t, out.Suggestions, "Alpha Song")
	assert.Contains(t, out.Suggestions, "Neon Waves")

	var notFound errorBody
	resp = e.get(t, "/api/rooms/"+code+"/suggestions?playerId=ghost", &notFound)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, string(fault.CodePlayerNotFound), notFound.Error.Code)
}

func TestServer_JoinWithBearerUser(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, _ := e.createRoom(t, "")

	var joined joinResponse
	resp := e.request(t, http.MethodPost, "/api/rooms/"+code+"/join", "tok-ana",
		map[string]any{"displayName": "Ana"}, &joined)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A linked library makes the user-backed player an eligible contributor.
	var snap room.Snapshot
	resp = e.post(t, "/api/rooms/"+code+"/library", map[string]any{
		"playerId": joined.PlayerID,
		"links": map[string]any{
			"spotify": map[string]any{"status": "linked", "estimatedTracks": 40, "includeInPool": true},
		},
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, snap.Players, 1)
	assert.True(t, snap.Players[0].CanContributeLibrary)

	// A rejected token never reaches the room.
	resp = e.request(t, http.MethodPost, "/api/rooms/"+code+"/join", "tok-bad",
		map[string]any{"displayName": "Mallory"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_LibraryContributionAndLinks(t *testing.T) {
	e := newTestEnv(t, Config{})
	code, ids := e.createRoom(t, "", "Ana")

	var snap room.Snapshot
	resp := e.post(t, "/api/rooms/"+code+"/library", map[string]any{
		"playerId": ids[0],
		"links": map[string]any{
			"spotify": map[string]any{"status": "linked", "estimatedTracks": 1200, "includeInPool": true},
		},
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, snap.Players, 1)
	lib := snap.Players[0].LibraryContribution
	assert.Equal(t, "linked", lib.LinkedProviders["spotify"])
	assert.Equal(t, 1200, lib.EstimatedTrackCount["spotify"])
	assert.True(t, lib.IncludeInPool["spotify"])

	resp = e.post(t, "/api/rooms/"+code+"/library", map[string]any{
		"playerId": ids[0], "provider": "spotify", "includeInPool": false,
	}, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, snap.Players[0].LibraryContribution.IncludeInPool["spotify"])

	// Neither links nor a provider toggle present.
	var invalid errorBody
	resp = e.post(t, "/api/rooms/"+code+"/library", map[string]any{"playerId": ids[0]}, &invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidPayload), invalid.Error.Code)
}

func TestServer_PublicRoomsListing(t *testing.T) {
	e := newTestEnv(t, Config{})

	var pub room.Snapshot
	resp := e.post(t, "/api/rooms", map[string]any{"public": true, "categoryQuery": "disco"}, &pub)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	e.createRoom(t, "hidden", "Ana")

	var out struct {
		Rooms []room.PublicRoomSummary `json:"rooms"`
	}
	resp = e.get(t, "/api/rooms", &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, out.Rooms, 1)
	assert.Equal(t, pub.RoomCode, out.Rooms[0].RoomCode)
	assert.Equal(t, "disco", out.Rooms[0].CategoryQuery)
}

func TestServer_LibraryIngest(t *testing.T) {
	e := newTestEnv(t, Config{})

	batch := map[string]any{"tracks": []map[string]any{
		{"provider": "deezer", "id": "916424", "title": "Plastic Love", "artist": "Mariya Takeuchi"},
		{"provider": "deezer", "id": "916425", "title": "Stay With Me"},
		{"provider": "tape", "id": "3", "title": "Unknown Provider"},
	}}

	// Library sync requires an authenticated user.
	var unauth errorBody
	resp := e.request(t, http.MethodPut, "/api/library/tracks", "", batch, &unauth)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", unauth.Error.Code)

	resp = e.request(t, http.MethodPut, "/api/library/tracks", "tok-wrong", batch, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var out ingestResponse
	resp = e.request(t, http.MethodPut, "/api/library/tracks", "tok-ana", batch, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, out.Stored)
	assert.Equal(t, map[string]int{"deezer": 2}, out.Counts)

	rows := e.library.userRows("user-ana")
	require.Len(t, rows, 2)
	assert.Equal(t, "Plastic Love", rows[0].Title)

	// An empty batch fails validation.
	var invalid errorBody
	resp = e.request(t, http.MethodPut, "/api/library/tracks", "tok-ana", map[string]any{"tracks": []any{}}, &invalid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, string(fault.CodeInvalidPayload), invalid.Error.Code)

	// Storage failures are masked as a plain 500.
	e.library.setFail(errors.New("disk full"))
	var masked errorBody
	resp = e.request(t, http.MethodPut, "/api/library/tracks", "tok-ana", batch, &masked)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "INTERNAL", masked.Error.Code)
}

func TestServer_IngestRouteAbsentWithoutLibrary(t *testing.T) {
	e := newTestEnv(t, Config{})

	bare := New(e.store, nil, nil, Config{})
	ts := newLocalServer(t, bare)

	req, err := http.NewRequest(http.MethodPut, ts.URL+"/api/library/tracks", strings.NewReader(`{"tracks":[]}`))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	e := newTestEnv(t, Config{RequestLimit: 3, RequestWindow: time.Minute})

	for i := 0; i < 3; i++ {
		resp := e.get(t, "/healthz", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	var body errorBody
	resp := e.get(t, "/healthz", &body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "RATE_LIMITED", body.Error.Code)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, Config{})

	var health map[string]any
	resp := e.get(t, "/healthz", &health)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])

	e.createRoom(t, "", "Ana")

	resp, err := http.Get(e.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tuneclash_rooms_created_total")
}
