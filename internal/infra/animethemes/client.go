// Package animethemes adapts the AnimeThemes.moe JSON API to the track pool
// contract. Themes come with direct .webm links, so tracks from this adapter
// are playable without a resolution step.
package animethemes

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tuneclash/tuneclash/internal/domain/track"
)

const (
	// Prefix routes "animethemes:<query>" source queries to this adapter.
	// An empty remainder samples a random page of the full theme index.
	Prefix = "animethemes:"

	defaultBaseURL = "https://api.animethemes.moe"
	maxPageSize    = 100

	// themeInclude pulls videos, song artists and anime synonyms in one call.
	themeInclude = "animethemeentries.videos,song.artists,anime.animesynonyms"
)

// RomajiSink receives romanisation pairs discovered in upstream metadata.
type RomajiSink interface {
	Put(original, romaji string)
}

// Client is an AnimeThemes API client implementing the pool source contract.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	romaji     RomajiSink
}

// Config represents AnimeThemes client configuration.
type Config struct {
	// RequestsPerSecond throttles outbound calls. Zero means 1.5 rps, which
	// stays inside the API's 90-requests-per-minute allowance.
	RequestsPerSecond float64
	// Romaji, when set, is pre-seeded with native-script anime titles and
	// their romanised names as they appear in fetched metadata.
	Romaji RomajiSink
}

// New creates a new AnimeThemes client.
func New(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1.5
	}
	return &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 8 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(rps), 3),
		romaji:     cfg.Romaji,
	}
}

type videoPayload struct {
	Basename string `json:"basename"`
	Link     string `json:"link"`
}

type themePayload struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Song *struct {
		Title   string `json:"title"`
		Artists []struct {
			Name string `json:"name"`
		} `json:"artists"`
	} `json:"song"`
	Anime *struct {
		Name     string `json:"name"`
		Synonyms []struct {
			Text string `json:"text"`
		} `json:"animesynonyms"`
	} `json:"anime"`
	Entries []struct {
		NSFW    bool           `json:"nsfw"`
		Spoiler bool           `json:"spoiler"`
		Videos  []videoPayload `json:"videos"`
	} `json:"animethemeentries"`
}

type themeIndexResponse struct {
	Themes []themePayload `json:"animethemes"`
	Meta   struct {
		CurrentPage int `json:"current_page"`
		LastPage    int `json:"last_page"`
		Total       int `json:"total"`
	} `json:"meta"`
}

type searchResponse struct {
	Search struct {
		Themes []themePayload `json:"animethemes"`
	} `json:"search"`
}

type animeIndexResponse struct {
	Anime []struct {
		Name     string `json:"name"`
		Synonyms []struct {
			Text string `json:"text"`
		} `json:"animesynonyms"`
	} `json:"anime"`
}

// Fetch retrieves up to size candidate tracks for the source query.
// "animethemes:" alone samples the theme index; a remainder runs a search.
func (c *Client) Fetch(ctx context.Context, sourceQuery string, size int) ([]track.Track, error) {
	query := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(sourceQuery), Prefix))
	if query == "" {
		return c.randomThemes(ctx, size)
	}
	return c.searchThemes(ctx, query, size)
}

// randomThemes samples one page of the theme index at a random page number.
// The first request doubles as the page-count probe.
func (c *Client) randomThemes(ctx context.Context, size int) ([]track.Track, error) {
	pageSize := size
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	page, err := c.themePage(ctx, 1, pageSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get themes")
	}
	if page.Meta.LastPage > 1 {
		number := 1 + newRand().Intn(page.Meta.LastPage)
		if number > 1 {
			page, err = c.themePage(ctx, number, pageSize)
			if err != nil {
				return nil, errors.Wrap(err, "failed to get themes page")
			}
		}
	}

	tracks := c.convertThemes(page.Themes)
	zlog.Debug().Msgf("animethemes index sampled: page=%d tracks=%d", page.Meta.CurrentPage, len(tracks))
	return tracks, nil
}

func (c *Client) themePage(ctx context.Context, number, pageSize int) (*themeIndexResponse, error) {
	params := url.Values{}
	params.Set("page[number]", strconv.Itoa(number))
	params.Set("page[size]", strconv.Itoa(pageSize))
	params.Set("include", themeInclude)

	var out themeIndexResponse
	if err := c.getJSON(ctx, "/animetheme", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) searchThemes(ctx context.Context, query string, size int) ([]track.Track, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("fields[search]", "animethemes")
	params.Set("include[animetheme]", themeInclude)

	var out searchResponse
	if err := c.getJSON(ctx, "/search", params, &out); err != nil {
		return nil, errors.Wrap(err, "failed to search themes")
	}

	tracks := c.convertThemes(out.Search.Themes)
	if size > 0 && len(tracks) > size {
		tracks = tracks[:size]
	}
	return tracks, nil
}

// convertThemes maps API themes to tracks, skipping themes with no song
// or no hosted video. Native-script anime titles are fed to the romaji sink.
func (c *Client) convertThemes(themes []themePayload) []track.Track {
	out := make([]track.Track, 0, len(themes))
	for _, theme := range themes {
		if theme.Song == nil || theme.Song.Title == "" {
			continue
		}
		video, ok := pickVideo(theme)
		if !ok {
			continue
		}

		artist := ""
		if len(theme.Song.Artists) > 0 {
			artist = theme.Song.Artists[0].Name
		}
		if artist == "" && theme.Anime != nil {
			artist = theme.Anime.Name
		}

		c.seedRomaji(theme)

		id := video.Basename
		if id == "" {
			id = theme.Slug + "-" + strconv.FormatInt(theme.ID, 10)
		}
		out = append(out, track.Track{
			Provider:  track.ProviderAnimeThemes,
			ID:        id,
			Title:     theme.Song.Title,
			Artist:    artist,
			SourceURL: video.Link,
		})
	}
	return out
}

// pickVideo returns the first safe entry's first video. NSFW and spoiler
// entries are passed over when a clean one exists.
func pickVideo(theme themePayload) (videoPayload, bool) {
	var fallback *videoPayload
	for i := range theme.Entries {
		entry := &theme.Entries[i]
		if len(entry.Videos) == 0 {
			continue
		}
		if entry.NSFW || entry.Spoiler {
			if fallback == nil {
				fallback = &entry.Videos[0]
			}
			continue
		}
		return entry.Videos[0], true
	}
	if fallback != nil {
		return *fallback, true
	}
	return videoPayload{}, false
}

// seedRomaji records synonym -> romanised-name pairs. The API lists native
// titles as synonyms of the romanised canonical name.
func (c *Client) seedRomaji(theme themePayload) {
	if c.romaji == nil || theme.Anime == nil || theme.Anime.Name == "" {
		return
	}
	for _, syn := range theme.Anime.Synonyms {
		text := strings.TrimSpace(syn.Text)
		if text == "" || text == theme.Anime.Name {
			continue
		}
		c.romaji.Put(text, theme.Anime.Name)
	}
}

// Transliterate resolves a native-script title to its romanised form via the
// anime search index. It returns "" when nothing matches, which the caller
// may cache as a known miss.
func (c *Client) Transliterate(ctx context.Context, s string) (string, error) {
	query := strings.TrimSpace(s)
	if query == "" {
		return "", nil
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("include", "animesynonyms")

	var out animeIndexResponse
	if err := c.getJSON(ctx, "/anime", params, &out); err != nil {
		return "", errors.Wrap(err, "failed to search anime")
	}

	for _, anime := range out.Anime {
		if strings.EqualFold(anime.Name, query) {
			return anime.Name, nil
		}
		for _, syn := range anime.Synonyms {
			if strings.EqualFold(strings.TrimSpace(syn.Text), query) {
				return anime.Name, nil
			}
		}
	}
	return "", nil
}

// getJSON performs a rate-limited GET against the API.
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
		var apiErr struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return errors.Newf("animethemes API error %d: %s", resp.StatusCode, apiErr.Message)
		}
		return errors.Newf("animethemes API status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

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
