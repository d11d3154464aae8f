// Package deezer adapts the public Deezer JSON API to the game's track pool
// contract. No credentials are needed; the API is rate limited per IP.
package deezer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	// PrefixPlaylist routes "deezer:playlist:<id>" queries to this adapter.
	PrefixPlaylist = "deezer:playlist:"

	defaultBaseURL = "https://api.deezer.com"
	maxPageSize    = 100

	// resolvingRetryMs is the advisory delay when a playlist reports tracks
	// that the API has not materialised yet.
	resolvingRetryMs = 1500
)

// Client is a Deezer API client implementing the pool source contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config represents Deezer client configuration.
type Config struct {
	// RequestsPerSecond throttles outbound calls. Zero means 10 rps, which
	// stays inside Deezer's 50-calls-per-5s quota.
	RequestsPerSecond float64
}

// New creates a new Deezer client.
func New(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 5),
	}
}

type trackPayload struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Duration int    `json:"duration"`
	Preview  string `json:"preview"`
	Artist   struct {
		Name string `json:"name"`
	} `json:"artist"`
}

type trackPage struct {
	Data  []trackPayload `json:"data"`
	Total int            `json:"total"`
	Next  string         `json:"next"`
}

type apiEnvelope struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Fetch retrieves up to size candidate tracks for the source query.
// "deezer:playlist:<id>" walks the playlist; anything else runs a search.
func (c *Client) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	query := strings.TrimSpace(sourceQuery)
	if strings.HasPrefix(query, PrefixPlaylist) {
		return c.playlistTracks(ctx, strings.TrimPrefix(query, PrefixPlaylist), size)
	}
	return c.searchTracks(ctx, query, size)
}

// playlistTracks pages through a playlist. A playlist that reports a track
// count but returns no rows is still being materialised on Deezer's side;
// that state is surfaced as a retryable resolving error.
func (c *Client) playlistTracks(ctx context.Context, playlistID string, size int) ([]track.Track, error) {
	if playlistID == "" {
		return nil, errors.New("playlist id is required")
	}

	var out []track.Track
	index := 0
	total := -1
	for len(out) < size {
		limit := size - len(out)
		if limit > maxPageSize {
			limit = maxPageSize
		}

		params := url.Values{}
		params.Set("index", strconv.Itoa(index))
		params.Set("limit", strconv.Itoa(limit))

		var page trackPage
		if err := c.getJSON(ctx, "/playlist/"+playlistID+"/tracks", params, &page); err != nil {
			return nil, errors.Wrap(err, "failed to get playlist tracks")
		}
		if total < 0 {
			total = page.Total
		}
		if len(page.Data) == 0 {
			break
		}

		for _, item := range page.Data {
			out = append(out, convertTrack(item))
		}
		index += len(page.Data)
		if total >= 0 && index >= total {
			break
		}
	}

	if len(out) == 0 && total > 0 {
		zlog.Debug().Msgf("deezer playlist still resolving: playlist=%s reported=%d", playlistID, total)
		return nil, fault.Retry(fault.CodePlaylistTracksResolving, resolvingRetryMs)
	}

	zlog.Debug().Msgf("deezer playlist fetched: playlist=%s tracks=%d total=%d", playlistID, len(out), total)
	return out, nil
}

func (c *Client) searchTracks(ctx context.Context, query string, size int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	limit := size
	if limit <= 0 {
		limit = 25
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("limit", strconv.Itoa(limit))

	var page trackPage
	if err := c.getJSON(ctx, "/search", params, &page); err != nil {
		return nil, errors.Wrap(err, "failed to search tracks")
	}

	out := make([]track.Track, 0, len(page.Data))
	for _, item := range page.Data {
		out = append(out, convertTrack(item))
	}
	return out, nil
}

func convertTrack(item trackPayload) track.Track {
	return track.Track{
		Provider:    track.ProviderDeezer,
		ID:          strconv.FormatInt(item.ID, 10),
		Title:       item.Title,
		Artist:      item.Artist.Name,
		PreviewURL:  item.Preview,
		DurationSec: item.Duration,
	}
}

// getJSON performs a rate-limited GET. Deezer signals failures with an
// error object in a 200 body, so the envelope is probed before decoding.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("deezer API status %d", resp.StatusCode)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return errors.Newf("deezer API error %d (%s): %s",
			envelope.Error.Code, envelope.Error.Type, envelope.Error.Message)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
