package sources

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/app/pool"
	"github.com/tuneclash/tuneclash/internal/infra/animethemes"
	"github.com/tuneclash/tuneclash/internal/infra/config"
	"github.com/tuneclash/tuneclash/internal/infra/deezer"
	"github.com/tuneclash/tuneclash/internal/infra/lastfm"
	"github.com/tuneclash/tuneclash/internal/infra/spotify"
	"github.com/tuneclash/tuneclash/internal/infra/youtube"
)

type spotifySettings struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id" validate:"required"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret" validate:"required"`
	RefreshToken string `yaml:"refresh_token" mapstructure:"refresh_token" validate:"required"`
	Market       string `yaml:"market" mapstructure:"market" default:"FR"`
}

type deezerSettings struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	// DisableSearch opts this adapter out of free-text category queries,
	// which it otherwise handles as the router fallback.
	DisableSearch bool `yaml:"disable_search" mapstructure:"disable_search"`
}

type animeThemesSettings struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

type lastfmSettings struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

type youtubeResolverSettings struct {
	APIKey            string  `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Workers           int     `yaml:"workers" mapstructure:"workers" default:"4"`
}

// NewRouterFromConfig creates the source router from configuration. The
// returned source is wrapped with the track resolver when one is configured.
func NewRouterFromConfig(ctx context.Context, cfg *config.Config, romaji animethemes.RomajiSink) (pool.Source, error) {
	if len(cfg.Sources.Adapters) == 0 {
		return nil, errors.New("no source adapters configured")
	}

	router := NewRouter()
	for i, acfg := range cfg.Sources.Adapters {
		var err error
		zlog.Debug().Msgf("creating source adapter: index=%d type=%s", i+1, acfg.Type)
		switch acfg.Type {
		case "spotify":
			err = registerSpotify(ctx, router, acfg.Settings)

		case "deezer":
			err = registerDeezer(router, acfg.Settings)

		case "animethemes":
			err = registerAnimeThemes(router, acfg.Settings, romaji)

		case "lastfm":
			err = registerLastfm(router, acfg.Settings)

		default:
			return nil, errors.Newf("unsupported source adapter type: %s (adapter index %d)", acfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source adapter (index %d, type %s)", i, acfg.Type)
		}

		zlog.Info().Msgf("registered source adapter: index=%d type=%s", i+1, acfg.Type)
	}

	var source pool.Source = router
	if cfg.Sources.Resolver.Type != "" {
		resolver, workers, err := NewResolver(cfg.Sources.Resolver)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create track resolver (type %s)", cfg.Sources.Resolver.Type)
		}
		source = NewResolvingSource(source, resolver, workers)
		zlog.Info().Msgf("registered track resolver: type=%s workers=%d", cfg.Sources.Resolver.Type, workers)
	}
	return source, nil
}

func registerSpotify(ctx context.Context, router *Router, settings map[string]any) error {
	var scfg spotifySettings
	if err := decodeSettings(settings, &scfg); err != nil {
		return err
	}
	client, err := spotify.New(ctx, spotify.Config{
		ClientID:     scfg.ClientID,
		ClientSecret: scfg.ClientSecret,
		RefreshToken: scfg.RefreshToken,
		Market:       scfg.Market,
	})
	if err != nil {
		return err
	}
	router.Register("spotify", spotify.PrefixPlaylist, client)
	router.Register("spotify", spotify.QueryPopular, client)
	return nil
}

func registerDeezer(router *Router, settings map[string]any) error {
	var dcfg deezerSettings
	if err := decodeSettings(settings, &dcfg); err != nil {
		return err
	}
	client := deezer.New(deezer.Config{RequestsPerSecond: dcfg.RequestsPerSecond})
	router.Register("deezer", deezer.PrefixPlaylist, client)
	if !dcfg.DisableSearch {
		router.SetFallback("deezer", client)
	}
	return nil
}

func registerAnimeThemes(router *Router, settings map[string]any, romaji animethemes.RomajiSink) error {
	var acfg animeThemesSettings
	if err := decodeSettings(settings, &acfg); err != nil {
		return err
	}
	client := animethemes.New(animethemes.Config{
		RequestsPerSecond: acfg.RequestsPerSecond,
		Romaji:            romaji,
	})
	router.Register("animethemes", animethemes.Prefix, client)
	return nil
}

func registerLastfm(router *Router, settings map[string]any) error {
	var lcfg lastfmSettings
	if err := decodeSettings(settings, &lcfg); err != nil {
		return err
	}
	client, err := lastfm.New(lastfm.Config{
		APIKey:            lcfg.APIKey,
		RequestsPerSecond: lcfg.RequestsPerSecond,
	})
	if err != nil {
		return err
	}
	router.Register("lastfm", lastfm.Prefix, client)
	return nil
}

// NewResolver builds the configured track resolver. The int is the resolver's
// worker budget. Shared with the library store, which resolves on fetch.
func NewResolver(rcfg config.SourceResolver) (Resolver, int, error) {
	switch rcfg.Type {
	case "youtube":
		var ycfg youtubeResolverSettings
		if err := decodeSettings(rcfg.Settings, &ycfg); err != nil {
			return nil, 0, err
		}
		client, err := youtube.New(youtube.Config{
			APIKey:            ycfg.APIKey,
			RequestsPerSecond: ycfg.RequestsPerSecond,
		})
		if err != nil {
			return nil, 0, err
		}
		return client, ycfg.Workers, nil

	default:
		return nil, 0, errors.Newf("unsupported resolver type: %s", rcfg.Type)
	}
}

// decodeSettings runs the settings pipeline shared by all adapters:
// decode the raw map, fill defaults, then validate.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
