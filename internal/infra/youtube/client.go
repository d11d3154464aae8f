// Package youtube resolves songs to playable YouTube videos through the
// YouTube Data API v3.
package youtube

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tuneclash/tuneclash/internal/domain/answer"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	defaultBaseURL    = "https://www.googleapis.com/youtube/v3"
	defaultMaxResults = 5

	// maxVideoDurationSec rejects hour-long mixes and full-album uploads
	// that would defeat the guessing game.
	maxVideoDurationSec = 1200
)

// Client is a YouTube Data API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config represents YouTube client configuration.
type Config struct {
	APIKey string
	// RequestsPerSecond throttles outbound calls. Zero means 8 rps.
	RequestsPerSecond float64
}

// New creates a new YouTube client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("youtube API key is required")
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 4),
	}, nil
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

type videosResponse struct {
	Items []struct {
		ID             string `json:"id"`
		ContentDetails struct {
			Duration string `json:"duration"`
		} `json:"contentDetails"`
	} `json:"items"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ResolveTrack searches YouTube for a playable rendition of the given song.
// ok is false when no result matches the song title closely enough or every
// match is too long to play in a round.
func (c *Client) ResolveTrack(ctx context.Context, title, artist string) (track.Track, bool, error) {
	if title == "" {
		return track.Track{}, false, errors.New("track title is required")
	}

	query := strings.TrimSpace(title + " " + artist)
	candidates, err := c.search(ctx, query, defaultMaxResults)
	if err != nil {
		return track.Track{}, false, err
	}
	if len(candidates) == 0 {
		return track.Track{}, false, nil
	}

	wantTitle := answer.Normalize(title)
	wantArtist := answer.Normalize(artist)

	bestID := ""
	bestScore := 0
	for _, cand := range candidates {
		haystack := answer.Normalize(cand.title + " " + cand.channel)
		score := 0
		if wantTitle != "" && strings.Contains(haystack, wantTitle) {
			score += 2
		}
		if wantArtist != "" && strings.Contains(haystack, wantArtist) {
			score++
		}
		if score > bestScore {
			bestScore = score
			bestID = cand.id
		}
	}
	if bestID == "" {
		zlog.Debug().Msgf("no youtube match: query=%s candidates=%d", query, len(candidates))
		return track.Track{}, false, nil
	}

	durations, err := c.videoDurations(ctx, []string{bestID})
	if err != nil {
		return track.Track{}, false, err
	}
	durationSec := durations[bestID]
	if durationSec > maxVideoDurationSec {
		zlog.Debug().Msgf("youtube match too long: query=%s video=%s duration=%ds", query, bestID, durationSec)
		return track.Track{}, false, nil
	}

	return track.Track{
		Provider:    track.ProviderYouTube,
		ID:          bestID,
		Title:       title,
		Artist:      artist,
		SourceURL:   "https://www.youtube.com/watch?v=" + bestID,
		DurationSec: durationSec,
	}, true, nil
}

type searchHit struct {
	id      string
	title   string
	channel string
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]searchHit, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("type", "video")
	params.Set("videoCategoryId", "10") // music
	params.Set("q", query)
	params.Set("maxResults", strconv.Itoa(maxResults))
	params.Set("key", c.apiKey)

	var response searchResponse
	if err := c.getJSON(ctx, "/search", params, &response); err != nil {
		return nil, errors.Wrap(err, "youtube search failed")
	}

	hits := make([]searchHit, 0, len(response.Items))
	for _, item := range response.Items {
		if item.ID.VideoID == "" {
			continue
		}
		hits = append(hits, searchHit{
			id:      item.ID.VideoID,
			title:   item.Snippet.Title,
			channel: item.Snippet.ChannelTitle,
		})
	}
	return hits, nil
}

// videoDurations fetches durations for up to 50 video ids in one call.
func (c *Client) videoDurations(ctx context.Context, ids []string) (map[string]int, error) {
	if len(ids) == 0 {
		return map[string]int{}, nil
	}
	params := url.Values{}
	params.Set("part", "contentDetails")
	params.Set("id", strings.Join(ids, ","))
	params.Set("key", c.apiKey)

	var response videosResponse
	if err := c.getJSON(ctx, "/videos", params, &response); err != nil {
		return nil, errors.Wrap(err, "youtube videos lookup failed")
	}

	out := make(map[string]int, len(response.Items))
	for _, item := range response.Items {
		sec, err := parseISODuration(item.ContentDetails.Duration)
		if err != nil {
			zlog.Debug().Msgf("unparseable youtube duration: video=%s value=%s", item.ID, item.ContentDetails.Duration)
			continue
		}
		out[item.ID] = sec
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	reqURL := c.baseURL + path + "?" + params.Encode()
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
		var ae apiError
		if err := json.Unmarshal(body, &ae); err == nil && ae.Error.Code != 0 {
			return errors.Newf("youtube API error %d: %s", ae.Error.Code, ae.Error.Message)
		}
		return errors.Newf("youtube API status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

var isoDurationRe = regexp.MustCompile(`^P(?:(\d+)D)?T?(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)

// parseISODuration converts the API's ISO-8601 duration (PT3M27S) to seconds.
func parseISODuration(s string) (int, error) {
	if s == "" {
		return 0, errors.New("empty duration")
	}
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0, errors.Newf("malformed duration: %s", s)
	}
	days, _ := strconv.Atoi(zeroIfEmpty(m[1]))
	hours, _ := strconv.Atoi(zeroIfEmpty(m[2]))
	minutes, _ := strconv.Atoi(zeroIfEmpty(m[3]))
	seconds, _ := strconv.Atoi(zeroIfEmpty(m[4]))
	return days*86400 + hours*3600 + minutes*60 + seconds, nil
}

func zeroIfEmpty(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
