// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/tuneclash/tuneclash/internal/api/httpapi"
	"github.com/tuneclash/tuneclash/internal/app/notification"
	"github.com/tuneclash/tuneclash/internal/app/room"
	"github.com/tuneclash/tuneclash/internal/app/sources"
	"github.com/tuneclash/tuneclash/internal/infra/animethemes"
	"github.com/tuneclash/tuneclash/internal/infra/config"
	"github.com/tuneclash/tuneclash/internal/infra/library"
	"github.com/tuneclash/tuneclash/internal/infra/logger"
	"github.com/tuneclash/tuneclash/internal/infra/metrics"
	"github.com/tuneclash/tuneclash/internal/infra/romaji"
)

var (
	app        = kingpin.New("tuneclash-server", "TuneClash blindtest game server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// check-config command
	checkConfigCmd = app.Command("check-config", "Validate the config file and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
	}
	if err := logger.Init(loggerConfig); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Handle check-config command (Load already ran validation)
	if command == checkConfigCmd.FullCommand() {
		zlog.Info().Msgf("Config OK: addr=%s adapters=%d", cfg.Server.Addr, len(cfg.Sources.Adapters))
		return
	}

	// Run server (defer ensures teardown runs on any exit path)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		os.Exit(1)
	}
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx := context.Background()

	// Romaji cache, warmed in the background through the AnimeThemes search
	// API. Source adapters additionally pre-seed it with romanised titles
	// they see during fetches.
	translit := animethemes.New(animethemes.Config{})
	romajiCache := romaji.New(romaji.Config{Transliterate: translit.Transliterate})
	defer romajiCache.Close()

	// Track source router for public playlist and category fetches
	trackSource, err := sources.NewRouterFromConfig(ctx, cfg, romajiCache)
	if err != nil {
		return errors.Wrap(err, "failed to build track sources")
	}

	// Library store, optionally with an external resolver that upgrades
	// stored tracks without playable media
	var libResolver library.Resolver
	resolveWorkers := cfg.Library.ResolveWorkers
	if cfg.Sources.Resolver.Type != "" {
		resolver, workers, err := sources.NewResolver(cfg.Sources.Resolver)
		if err != nil {
			return errors.Wrap(err, "failed to build track resolver")
		}
		libResolver = resolver
		if workers > 0 {
			resolveWorkers = workers
		}
	}
	libStore, err := library.Open(library.Config{
		Path:           cfg.Library.Path,
		Resolver:       libResolver,
		ResolveWorkers: resolveWorkers,
	})
	if err != nil {
		return errors.Wrap(err, "failed to open library store")
	}
	defer func() {
		if err := libStore.Close(); err != nil {
			zlog.Error().Msgf("Failed to close library store: %v", err)
		}
	}()

	// Match recorder: library history, plus result webhooks when configured
	var recorder room.MatchRecorder = libStore
	if urls := cfg.Notifications.WebhookURLs; len(urls) > 0 {
		hook := notification.NewWebhook(notification.Config{
			URLs:        urls,
			SendTimeout: cfg.WebhookSendTimeout(),
		})
		recorder = matchRecorders{libStore, hook}
		zlog.Info().Msgf("Match webhooks enabled: urls=%d", len(urls))
	}

	// Room store
	st := room.NewStore(room.Config{
		Timing: room.Timing{
			CountdownMs:   cfg.Game.CountdownMs,
			PlayingMs:     cfg.Game.PlayingMs,
			RevealMs:      cfg.Game.RevealMs,
			LeaderboardMs: cfg.Game.LeaderboardMs,
			BaseScore:     cfg.Game.BaseScore,
			MaxRounds:     cfg.Game.MaxRounds,
		},
		Liked: room.LikedRules{
			MinContributors: cfg.Game.MinContributors,
			MinTotalTracks:  cfg.Game.MinLikedTracks,
		},
		SuggestionLimit: cfg.Game.SuggestionLimit,
		StartBuildWait:  cfg.StartBuildWait(),
		ResultsTTL:      cfg.ResultsTTL(),
	}, room.Deps{
		Tracks:      trackSource,
		Library:     libStore,
		Romanizer:   romajiCache,
		Suggestions: libStore,
		Recorder:    recorder,
	})
	defer st.Close()

	// Bearer tokens for user-scoped endpoints (library sync, liked
	// contribution identity)
	var users httpapi.UserResolver
	if len(cfg.Server.UserTokens) > 0 {
		users = staticTokens(cfg.Server.UserTokens)
		zlog.Info().Msgf("User token auth enabled: users=%d", len(cfg.Server.UserTokens))
	}

	api := httpapi.New(st, libStore, users, httpapi.Config{
		RequestLimit:  cfg.Server.RequestsPerMinute,
		RequestWindow: time.Minute,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Background sweeper destroys expired rooms
	sweepStop := make(chan struct{})
	go sweepLoop(st, cfg.SweepInterval(), sweepStop)
	defer close(sweepStop)

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		zlog.Info().Msg("Received shutdown signal...")
	case err := <-serverErrCh:
		return errors.Wrap(err, "server error")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")

	return nil
}

// sweepLoop periodically destroys expired rooms and refreshes the active
// room gauge.
func sweepLoop(st *room.Store, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n := st.Sweep(); n > 0 {
				zlog.Info().Msgf("Swept expired rooms: destroyed=%d", n)
			}
			metrics.RecordActiveRooms(st.Len())
		}
	}
}

// staticTokens resolves bearer tokens against the configured user_tokens map.
type staticTokens map[string]string

func (t staticTokens) ResolveUser(_ context.Context, token string) (string, error) {
	userID, ok := t[token]
	if !ok {
		return "", errors.New("unknown token")
	}
	return userID, nil
}

// matchRecorders fans a finished game out to every configured sink.
type matchRecorders []room.MatchRecorder

func (m matchRecorders) RecordMatch(ctx context.Context, rec room.MatchRecord) error {
	var last error
	for _, r := range m {
		if err := r.RecordMatch(ctx, rec); err != nil {
			last = err
		}
	}
	return last
}
