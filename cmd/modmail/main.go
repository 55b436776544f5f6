package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/p-blackswan/modmail-agent/internal/config"
	moderr "github.com/p-blackswan/modmail-agent/internal/errors"
	"github.com/p-blackswan/modmail-agent/internal/health"
	"github.com/p-blackswan/modmail-agent/internal/metrics"
	"github.com/p-blackswan/modmail-agent/internal/mgmt"
	"github.com/p-blackswan/modmail-agent/internal/ratelimit"
	"github.com/p-blackswan/modmail-agent/internal/router"
	"github.com/p-blackswan/modmail-agent/internal/sched"
	slackpkg "github.com/p-blackswan/modmail-agent/internal/slack"
	"github.com/p-blackswan/modmail-agent/internal/stats"
	"github.com/p-blackswan/modmail-agent/internal/store"
	"github.com/p-blackswan/modmail-agent/internal/ticket"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Bool("platform_enabled", cfg.PlatformEnabled()).
		Msg("starting modmail bridge")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Persistent state. The management API may mutate the blacklist and
	// snippets on behalf of already-authorized callers, so its actor is
	// part of the admin policy alongside the configured staff admins.
	isAdmin := func(id string) bool {
		return id == mgmt.APIActorID || cfg.IsAdmin(id)
	}
	dataStore := store.New(cfg.DataDir, isAdmin, logger)
	if err := dataStore.Load(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load persistent data")
	}
	if err := dataStore.SeedSnippets(cfg.SeedSnippets); err != nil {
		logger.Error().Err(err).Msg("failed to seed snippets")
	}

	aggregator := stats.New()
	if snap, ok, err := dataStore.LoadStats(); err != nil {
		logger.Fatal().Err(err).Msg("failed to load stats")
	} else if ok {
		aggregator.Restore(snap)
		logger.Info().Int("total", snap.Total).Msg("restored ticket statistics")
	}

	registry := ticket.NewRegistry(cfg.MaxTicketsPerUser)
	limiter := ratelimit.New(cfg.RateLimitWindow, cfg.RateLimitMessages)
	scheduler := sched.NewManager(logger)
	metricsCollector := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("datadir", func(context.Context) health.Status {
		if _, err := os.Stat(cfg.DataDir); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})

	var wg sync.WaitGroup

	// Chat platform (optional; without tokens the bridge serves the
	// management API only)
	var eventRouter *router.Router
	var slackApp *slackpkg.App
	if cfg.PlatformEnabled() {
		slackApp = slackpkg.NewApp(cfg.BotToken, cfg.AppToken, logger)
		eventRouter = router.New(cfg, slackApp.Client(), registry, limiter,
			dataStore, aggregator, scheduler, metricsCollector, logger)
		slackApp.Attach(eventRouter)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := slackApp.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("Slack Socket Mode error")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			eventRouter.RunInactivitySweep(ctx)
		}()
	} else {
		logger.Info().Msg("platform tokens not configured, running in API-only mode")
	}

	// Management API
	var closer mgmt.Closer = noopCloser{}
	if eventRouter != nil {
		closer = eventRouter
	}
	handlers := mgmt.NewHandlers(cfg, registry, dataStore, aggregator,
		scheduler, checker, closer, logger)
	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		AuthConfig: mgmt.AuthConfig{
			Mode:      cfg.MgmtAuthMode,
			APIKey:    cfg.MgmtAPIKey,
			JWTSecret: cfg.MgmtJWTSecret,
		},
		RateLimit: mgmt.RateLimitConfig{
			RPS:   cfg.MgmtRateLimitRPS,
			Burst: cfg.MgmtRateLimitBurst,
		},
		CORSOrigins: cfg.MgmtCORSOrigins,
	}, handlers, metricsCollector, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	// Pending delayed closes are transient; sessions rebuild on restart.
	scheduler.StopAll()

	if err := dataStore.SaveStats(aggregator.Snapshot()); err != nil {
		logger.Error().Err(err).Msg("failed to persist stats on shutdown")
	}
	if err := dataStore.Flush(); err != nil {
		logger.Error().Err(err).Msg("failed to flush persistent data")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("modmail bridge stopped")
}

// noopCloser rejects API close requests when no platform is connected.
// Without a platform there are no open sessions, so not-found is accurate.
type noopCloser struct{}

func (noopCloser) Close(context.Context, string, ticket.StaffRef, string) error {
	return moderr.ErrSessionNotFound
}
