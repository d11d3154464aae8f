// Package track provides the Track domain entity.
package track

import (
	"regexp"
	"strings"
)

// Provider identifies the upstream catalogue a track came from.
type Provider string

const (
	ProviderSpotify     Provider = "spotify"
	ProviderDeezer      Provider = "deezer"
	ProviderYouTube     Provider = "youtube"
	ProviderAnimeThemes Provider = "animethemes"

	// ProviderLastFM labels tag and chart metadata fetched from Last.fm.
	// It is not Known: user input (library links, playlist pins) cannot
	// name it.
	ProviderLastFM Provider = "lastfm"
)

// Known returns true when p is one of the supported providers.
func (p Provider) Known() bool {
	switch p {
	case ProviderSpotify, ProviderDeezer, ProviderYouTube, ProviderAnimeThemes:
		return true
	}
	return false
}

// ProviderFromString parses a provider name. ok is false for unknown values.
func ProviderFromString(s string) (Provider, bool) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	return p, p.Known()
}

// Track represents a playable item fetched from an upstream catalogue.
type Track struct {
	Provider    Provider // Upstream catalogue
	ID          string   // Provider-scoped track ID
	Title       string   // Track title
	Artist      string   // Primary artist name
	PreviewURL  string   // Short audio preview URL (optional)
	SourceURL   string   // Full playback URL, e.g. a YouTube watch URL (optional)
	DurationSec int      // Duration in seconds (0 if unknown)
}

// playableHosts matches source URLs the game can actually embed.
var playableHosts = regexp.MustCompile(`(?i)(^|//|\.)(youtube\.com|youtu\.be|animethemes\.moe)(/|$)`)

// promoPatterns flags catalogue spam injected by scraper playlists.
// Matched against the normalised "title artist" text (lowercase, single spaces).
var promoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(this app|download app|free music alternative|best free music)\b`),
	regexp.MustCompile(`\bspotify\b.*\b(app|alternative|free)\b`),
	regexp.MustCompile(`\bdeezer\s*-\s*deezer\b`),
	regexp.MustCompile(`\bdeezer session\b`),
	regexp.MustCompile(`\bheartify\b`),
}

// Playable reports whether the track can be played in a round.
// Only YouTube and AnimeThemes material is embeddable; tracks from other
// providers qualify once their SourceURL points at one of those hosts.
func (t *Track) Playable() bool {
	if t.Provider == ProviderYouTube || t.Provider == ProviderAnimeThemes {
		return true
	}
	return t.SourceURL != "" && playableHosts.MatchString(t.SourceURL)
}

// Promotional reports whether the track looks like playlist spam.
// Promotional tracks are excluded from pools.
func (t *Track) Promotional() bool {
	text := strings.ToLower(strings.TrimSpace(t.Title + " " + t.Artist))
	text = strings.Join(strings.Fields(text), " ")
	for _, re := range promoPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Signature returns the de-duplication key for the track.
func (t *Track) Signature() string {
	return string(t.Provider) + ":" + t.ID + ":" + strings.ToLower(t.Title) + ":" + strings.ToLower(t.Artist)
}

// Label returns the canonical "Title - Artist" display label.
func (t *Track) Label() string {
	return t.Title + " - " + t.Artist
}

// Dedupe removes signature duplicates, preserving first occurrence order.
func Dedupe(tracks []Track) []Track {
	seen := make(map[string]bool, len(tracks))
	out := make([]Track, 0, len(tracks))
	for _, t := range tracks {
		sig := t.Signature()
		if seen[sig] {
			continue
		}
		seen[sig] = true
		out = append(out, t)
	}
	return out
}
