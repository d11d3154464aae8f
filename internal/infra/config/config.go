// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Game          GameConfig          `yaml:"game"`
	Sources       SourcesConfig       `yaml:"sources"`
	Library       LibraryConfig       `yaml:"library"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// ServerConfig represents the HTTP server configuration.
type ServerConfig struct {
	Addr              string `yaml:"addr" default:":8080"`
	RequestsPerMinute int    `yaml:"requests_per_minute" default:"600" validate:"gte=1"`
	SweepIntervalSec  int    `yaml:"sweep_interval_sec" default:"30" validate:"gte=5,lte=600"`

	// UserTokens maps bearer tokens to user ids for user-scoped endpoints
	// (library sync, liked-tracks contribution). Empty means anonymous only.
	UserTokens map[string]string `yaml:"user_tokens"`
}

// GameConfig represents the round schedule and room tuning.
type GameConfig struct {
	CountdownMs     int64 `yaml:"countdown_ms" default:"3000" validate:"gte=0,lte=30000"`
	PlayingMs       int64 `yaml:"playing_ms" default:"12000" validate:"gte=1000,lte=120000"`
	RevealMs        int64 `yaml:"reveal_ms" default:"4000" validate:"gte=0,lte=30000"`
	LeaderboardMs   int64 `yaml:"leaderboard_ms" default:"3000" validate:"gte=0,lte=30000"`
	BaseScore       int   `yaml:"base_score" default:"1000" validate:"gte=1"`
	MaxRounds       int   `yaml:"max_rounds" default:"10" validate:"gte=1,lte=50"`
	SuggestionLimit int   `yaml:"suggestion_limit" default:"1000" validate:"gte=1"`
	ResultsTTLSec   int   `yaml:"results_ttl_sec" default:"900" validate:"gte=30"`

	// StartBuildWaitMs bounds how long a start call waits for an in-flight
	// players-liked library build.
	StartBuildWaitMs int64 `yaml:"start_build_wait_ms" default:"12000" validate:"gte=1000,lte=60000"`

	// MinContributors and MinLikedTracks gate the players-liked mode.
	MinContributors int `yaml:"min_contributors" default:"1" validate:"gte=1"`
	MinLikedTracks  int `yaml:"min_liked_tracks" default:"24" validate:"gte=1"`
}

// SourcesConfig represents the track source adapters and the optional
// playback resolver.
type SourcesConfig struct {
	Adapters []SourceAdapter `yaml:"adapters" validate:"required,min=1,dive"`
	Resolver SourceResolver  `yaml:"resolver"`
}

// SourceAdapter represents a single track source adapter configuration.
// Settings are adapter-specific and validated where the adapter is built.
type SourceAdapter struct {
	Type     string         `yaml:"type" validate:"required"`
	Settings map[string]any `yaml:"settings"`
}

// SourceResolver represents the optional resolver that upgrades preview-only
// tracks to a playable source URL. An empty type disables resolution.
type SourceResolver struct {
	Type     string         `yaml:"type"`
	Settings map[string]any `yaml:"settings"`
}

// LibraryConfig represents the sqlite library store configuration.
type LibraryConfig struct {
	Path           string `yaml:"path" default:"tuneclash.db"`
	ResolveWorkers int    `yaml:"resolve_workers" default:"4" validate:"gte=1,lte=16"`
}

// NotificationsConfig represents the match result webhooks.
type NotificationsConfig struct {
	WebhookURLs   []string `yaml:"webhook_urls" validate:"omitempty,dive,url"`
	SendTimeoutMs int      `yaml:"send_timeout_ms" default:"5000" validate:"gte=100,lte=30000"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TUNECLASH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("TUNECLASH_DB"); v != "" {
		c.Library.Path = v
	}
	for i := range c.Sources.Adapters {
		if c.Sources.Adapters[i].Type != "spotify" {
			continue
		}
		if c.Sources.Adapters[i].Settings == nil {
			c.Sources.Adapters[i].Settings = make(map[string]any)
		}
		if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
			c.Sources.Adapters[i].Settings["client_id"] = v
		}
		if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
			c.Sources.Adapters[i].Settings["client_secret"] = v
		}
		if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
			c.Sources.Adapters[i].Settings["refresh_token"] = v
		}
		break
	}
	if v := os.Getenv("YOUTUBE_API_KEY"); v != "" && c.Sources.Resolver.Type == "youtube" {
		if c.Sources.Resolver.Settings == nil {
			c.Sources.Resolver.Settings = make(map[string]any)
		}
		c.Sources.Resolver.Settings["api_key"] = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Each adapter type routes a fixed query prefix; duplicates would
	// shadow each other.
	if err := c.validateAdapterUniqueness(); err != nil {
		return err
	}

	return nil
}

func (c *Config) validateAdapterUniqueness() error {
	seen := make(map[string]bool, len(c.Sources.Adapters))
	for _, a := range c.Sources.Adapters {
		if seen[a.Type] {
			return errors.Newf("duplicate source adapter type: %s", a.Type)
		}
		seen[a.Type] = true
	}
	return nil
}

// ResultsTTL returns how long a finished room survives before the sweeper
// destroys it.
func (c *Config) ResultsTTL() time.Duration {
	return time.Duration(c.Game.ResultsTTLSec) * time.Second
}

// StartBuildWait returns the bound on waiting for an in-flight library build.
func (c *Config) StartBuildWait() time.Duration {
	return time.Duration(c.Game.StartBuildWaitMs) * time.Millisecond
}

// SweepInterval returns the cadence of the room sweeper.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Server.SweepIntervalSec) * time.Second
}

// WebhookSendTimeout returns the bound on one webhook delivery attempt.
func (c *Config) WebhookSendTimeout() time.Duration {
	return time.Duration(c.Notifications.SendTimeoutMs) * time.Millisecond
}
