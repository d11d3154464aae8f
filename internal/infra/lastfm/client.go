// Package lastfm adapts the Last.fm charts API to the game's track pool
// contract. Tracks arrive as bare title/artist metadata with no playable
// media; the resolving decorator upgrades them before pool acceptance.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	// Prefix routes "lastfm:..." source queries to this adapter.
	// "lastfm:tag:<tag>" fetches a tag's top tracks; "lastfm:charts"
	// fetches the global chart.
	Prefix      = "lastfm:"
	PrefixTag   = "lastfm:tag:"
	QueryCharts = "lastfm:charts"

	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	maxPageSize    = 100
)

// Client is a Last.fm API client implementing the pool source contract.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter

	// Tag results barely move between pool builds, so they are cached
	// for the lifetime of the client, keyed by tag and requested size.
	mu       sync.RWMutex
	tagCache map[string][]track.Track
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
	// RequestsPerSecond throttles outbound calls. Zero means 4 rps, below
	// the API terms' 5-requests-per-second ceiling.
	RequestsPerSecond float64
}

// apiError is the error envelope Last.fm returns inside a 200 body.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type topTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name string `json:"name"`
			MBID string `json:"mbid"`

			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 2),
		tagCache:   make(map[string][]track.Track),
	}, nil
}

// Fetch retrieves up to size candidate tracks for the source query.
// "lastfm:tag:<tag>" serves a tag's top tracks, "lastfm:charts" the global
// chart. Returned tracks carry no media and rely on downstream resolution.
func (c *Client) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	query := strings.TrimSpace(sourceQuery)
	switch {
	case query == QueryCharts:
		return c.chartTracks(ctx, size)
	case strings.HasPrefix(query, PrefixTag):
		tag := strings.TrimSpace(strings.TrimPrefix(query, PrefixTag))
		if tag == "" {
			return nil, errors.New("tag is required")
		}
		return c.tagTracks(ctx, tag, size)
	default:
		return nil, errors.Newf("unsupported last.fm query: %q", query)
	}
}

// tagTracks retrieves top tracks for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) tagTracks(ctx context.Context, tag string, size int) ([]track.Track, error) {
	limit := clampLimit(size)
	cacheKey := tag + ":" + strconv.Itoa(limit)

	c.mu.RLock()
	if cached, ok := c.tagCache[cacheKey]; ok {
		c.mu.RUnlock()
		zlog.Debug().Msgf("lastfm tag served from cache: tag=%s tracks=%d", tag, len(cached))
		return append([]track.Track(nil), cached...), nil
	}
	c.mu.RUnlock()

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tag)
	params.Set("limit", strconv.Itoa(limit))

	var out topTracksResponse
	if err := c.getJSON(ctx, params, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get tag top tracks")
	}
	tracks := convertTracks(out)

	c.mu.Lock()
	c.tagCache[cacheKey] = tracks
	c.mu.Unlock()

	zlog.Debug().Msgf("lastfm tag fetched: tag=%s tracks=%d", tag, len(tracks))
	return append([]track.Track(nil), tracks...), nil
}

// chartTracks retrieves the global top tracks. Charts rotate, so they are
// never cached.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) chartTracks(ctx context.Context, size int) ([]track.Track, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(size)))

	var out topTracksResponse
	if err := c.getJSON(ctx, params, &out); err != nil {
		return nil, errors.Wrap(err, "failed to get chart top tracks")
	}
	tracks := convertTracks(out)
	zlog.Debug().Msgf("lastfm chart fetched: tracks=%d", len(tracks))
	return tracks, nil
}

func convertTracks(out topTracksResponse) []track.Track {
	tracks := make([]track.Track, 0, len(out.Tracks.Track))
	for _, t := range out.Tracks.Track {
		if t.Name == "" {
			continue
		}
		tracks = append(tracks, track.Track{
			Provider: track.ProviderLastFM,
			ID:       t.MBID,
			Title:    t.Name,
			Artist:   t.Artist.Name,
		})
	}
	return tracks
}

func clampLimit(size int) int {
	if size <= 0 {
		return 25
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// getJSON performs a rate-limited GET. Last.fm signals failures with an
// error envelope in a 200 body, so the envelope is probed before decoding.
func (c *Client) getJSON(ctx context.Context, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

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

	var envelope apiError
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != 0 {
		return errors.Newf("last.fm API error %d: %s", envelope.Error, envelope.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm API status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
