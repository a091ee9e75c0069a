// Package main provides the entry point for the protected-fetch service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/alert"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/blocklist"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/browser"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/bypass"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/cache"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/config"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/cookies"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/handlers"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/internal/middleware"
	"github.com/MooshiMochi/ManhwaUpdatesBot-sub001/pkg/version"
)

func main() {
	cfg := config.Load()

	// Setup logging first so validation warnings are visible
	setupLogging(cfg.LogLevel)
	cfg.Validate()

	log.Info().
		Str("version", version.Full()).
		Str("go", version.GoVersion()).
		Msg("Starting protected-fetch service")

	// Cookie persistence
	store, err := cookies.OpenSQLite(cfg.CookieDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cookie store")
	}
	bridge := cookies.NewBridge(store, cfg.CookieExemptSites)

	// Request blocklist with optional hot-reloadable override file
	filter, err := blocklist.NewManager(cfg.BlocklistPath, cfg.BlocklistHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize blocklist")
	}

	// Response cache bound to the shared default cache time
	respCache := cache.New(cache.NewTimeConfig(cfg.DefaultCacheTime), cfg.IgnoredURLs)

	// Browser is launched lazily on the first fetch
	handle := browser.NewHandle(cfg)

	var notifier alert.Notifier = alert.LogNotifier{}
	if cfg.AlertWebhookURL != "" {
		notifier = alert.NewWebhook(cfg.AlertWebhookURL)
		log.Info().Msg("Alert webhook configured")
	}

	requester := bypass.New(cfg, handle, filter, respCache, bridge, notifier)

	handler := handlers.New(requester)
	chain := middleware.Chain(middleware.Recovery, middleware.Logging)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      chain(handler.Mux()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.NavTimeout*time.Duration(cfg.NavAttempts) + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Dur("default_cache_time", cfg.DefaultCacheTime).
			Bool("headless", cfg.Headless).
			Msg("Ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return server.Shutdown(ctx) })
	g.Go(requester.Close)
	g.Go(filter.Close)
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("Cookie store close error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
