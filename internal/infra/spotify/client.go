// Package spotify adapts the Spotify Web API to the game's track pool
// contract. Fetched tracks carry preview URLs but no playable source; the
// resolving source layer upgrades them to embeddable media.
package spotify

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/tuneclash/tuneclash/internal/domain/fault"
	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	// PrefixPlaylist routes "spotify:playlist:<id>" queries to this adapter.
	PrefixPlaylist = "spotify:playlist:"
	// QueryPopular routes the popular-rotation query.
	QueryPopular = "spotify:popular"

	// rateLimitRetryMs is the advisory client backoff when Spotify throttles
	// us; the client library does not surface the Retry-After header.
	rateLimitRetryMs = 2000

	searchPageLimit = 50
)

// Client is a Spotify API client implementing the pool source contract.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopeUserLibraryRead,
		),
	)

	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	httpClient := auth.Client(ctx, token)
	client := spotify.New(httpClient)

	market := cfg.Market
	if market == "" {
		market = "FR"
	}

	return &Client{
		client:     client,
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}, nil
}

// Fetch retrieves up to size candidate tracks for the source query.
// "spotify:playlist:<id>" samples the playlist, "spotify:popular" pulls the
// current year's chart material, anything else runs a track search.
func (c *Client) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	query := strings.TrimSpace(sourceQuery)
	switch {
	case strings.HasPrefix(query, PrefixPlaylist):
		return c.playlistSample(ctx, strings.TrimPrefix(query, PrefixPlaylist), size)
	case query == QueryPopular:
		return c.searchTracks(ctx, fmt.Sprintf("year:%d", time.Now().Year()), size)
	default:
		return c.searchTracks(ctx, query, size)
	}
}

// playlistSample retrieves a random window of a playlist so repeated games
// on one playlist do not replay the same opening tracks.
func (c *Client) playlistSample(ctx context.Context, playlistRef string, size int) ([]track.Track, error) {
	playlistID := extractPlaylistID(playlistRef)
	if playlistID == "" {
		return nil, errors.New("invalid playlist reference")
	}

	// A one-item page reveals the total count.
	var firstPage *spotify.PlaylistItemPage
	err := c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(1),
			spotify.Offset(0),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		firstPage = p
		return nil
	})
	if err != nil {
		return nil, c.classify(errors.Wrap(err, "failed to get playlist info"))
	}

	totalTracks := int(firstPage.Total)
	if totalTracks == 0 {
		return []track.Track{}, nil
	}

	pageLimit := 100
	maxOffset := totalTracks - pageLimit
	if maxOffset < 0 {
		maxOffset = 0
	}

	rng := newRand()
	offset := 0
	if maxOffset > 0 {
		offset = rng.Intn(maxOffset + 1)
	}

	var page *spotify.PlaylistItemPage
	err = c.retry(func() error {
		p, err := c.client.GetPlaylistItems(ctx, spotify.ID(playlistID),
			spotify.Limit(pageLimit),
			spotify.Offset(offset),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		page = p
		return nil
	})
	if err != nil {
		return nil, c.classify(errors.Wrap(err, "failed to get playlist items"))
	}

	tracks := make([]track.Track, 0, len(page.Items))
	for _, item := range page.Items {
		// Episodes come back with a nil track.
		if item.Track.Track != nil && item.Track.Track.ID != "" {
			tracks = append(tracks, c.convertTrack(item.Track.Track))
		}
	}

	if len(tracks) > size {
		rng.Shuffle(len(tracks), func(i, j int) {
			tracks[i], tracks[j] = tracks[j], tracks[i]
		})
		tracks = tracks[:size]
	}

	zlog.Debug().Msgf("spotify playlist sample: playlist=%s offset=%d fetched=%d", playlistID, offset, len(tracks))
	return tracks, nil
}

func (c *Client) searchTracks(ctx context.Context, query string, size int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}
	limit := size
	if limit <= 0 {
		limit = 20
	}
	if limit > searchPageLimit {
		limit = searchPageLimit
	}

	var result *spotify.SearchResult
	err := c.retry(func() error {
		r, err := c.client.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Limit(limit),
			spotify.Market(c.market),
		)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, c.classify(errors.Wrap(err, "failed to search"))
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for i := range result.Tracks.Tracks {
		tracks = append(tracks, c.convertTrack(&result.Tracks.Tracks[i]))
	}
	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to the domain Track.
func (c *Client) convertTrack(t *spotify.FullTrack) track.Track {
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return track.Track{
		Provider:    track.ProviderSpotify,
		ID:          string(t.ID),
		Title:       t.Name,
		Artist:      artist,
		PreviewURL:  t.PreviewURL,
		DurationSec: int(t.Duration) / 1000,
	}
}

// classify maps throttling to the tagged rate-limit code the pool builder
// fails fast on. Everything else passes through.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}
	if isRateLimited(err) {
		return fault.Retry(fault.CodeSpotifyRateLimited, rateLimitRetryMs)
	}
	return err
}

// retry retries an operation with linear backoff. Rate limits are not
// retried in-process; the room surfaces them to clients with an advisory
// delay instead.
func (c *Client) retry(fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			time.Sleep(c.retryDelay * time.Duration(i+1))
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is worth an in-process retry.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// isRateLimited checks if an error is a Spotify throttling response.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

// newRand seeds a local generator from crypto entropy, falling back to the
// wall clock.
func newRand() *rand.Rand {
	var seed int64
	var buf [8]byte
	if _, err := cryptoRand.Read(buf[:]); err == nil {
		seed = int64(binary.LittleEndian.Uint64(buf[:]))
	} else {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

// extractPlaylistID extracts the playlist ID from a raw ID, a Spotify
// playlist URL or a spotify:playlist: URI.
func extractPlaylistID(input string) string {
	input = strings.TrimSpace(input)
	if strings.HasPrefix(input, "spotify:playlist:") {
		return strings.TrimPrefix(input, "spotify:playlist:")
	}

	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, "/playlist/") {
		parts := strings.Split(input, "/playlist/")
		if len(parts) >= 2 {
			id := strings.Split(parts[len(parts)-1], "?")[0]
			id = strings.TrimRight(id, "/")
			return id
		}
	}

	return input
}
