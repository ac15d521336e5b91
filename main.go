package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"dex-perp-bot/config"
	"dex-perp-bot/internal/api"
	"dex-perp-bot/internal/auth"
	"dex-perp-bot/internal/cache"
	"dex-perp-bot/internal/database"
	"dex-perp-bot/internal/events"
	"dex-perp-bot/internal/logging"
	"dex-perp-bot/internal/notification"
	"dex-perp-bot/internal/selfimprove"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{Level: "error", Output: "stderr"})
		bootLogger.Fatal().Err(err).Msg("Failed to load config")
	}

	logger := logging.New(logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		Component:   "main",
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventBus := events.NewEventBus()
	learningCfg := selfimprove.FromLearningConfig(cfg.LearningConfig)
	strategy := selfimprove.New(learningCfg, logger)

	checks := map[string]api.HealthCheck{}

	// Optional Redis mirror of the filter set
	if cfg.RedisConfig.Enabled {
		cacheService, err := cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to initialize Redis cache")
		}
		defer cacheService.Close()

		strategy.SetSnapshotPublisher(cache.NewFilterSnapshotCache(cacheService, learningCfg.BotID, logger))
		checks["redis"] = cacheService.Ping
	}

	// Optional Postgres archive of closed trades
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(ctx, cfg.DatabaseConfig, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			logger.Fatal().Err(err).Msg("Failed to run migrations")
		}

		archive := database.NewOutcomeArchive(db)
		strategy.SetArchiver(archive)
		checks["database"] = archive.HealthCheck
	}

	if cfg.NotificationConfig.Enabled {
		notifier := notification.NewManager(logger)
		notifier.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.TelegramBotToken,
			ChatID:   cfg.NotificationConfig.TelegramChatID,
			Enabled:  true,
		}))
		notifier.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.DiscordWebhookURL,
			Enabled:    true,
		}))
		if notifier.Enabled() {
			notifier.Subscribe(eventBus)
		} else {
			logger.Warn().Msg("Notifications enabled but no Telegram or Discord target configured")
		}
	}

	var hub *api.WSHub
	if cfg.ServerConfig.Enabled {
		hub = api.InitWebSocket(eventBus, logger)
	}

	// ledger resets are announced here, so subscribers must be attached first
	strategy.SetEventBus(eventBus)

	stats := strategy.Stats()
	logger.Info().
		Str("bot_id", stats.BotID).
		Int("closed_trades", stats.TradeCount).
		Int("active_filters", stats.ActiveFilters).
		Str("outcome_ledger", string(stats.Ledgers.Outcomes)).
		Str("filter_ledger", string(stats.Ledgers.Filters)).
		Msg("Self-improving strategy ready")

	if !cfg.ServerConfig.Enabled {
		logger.Info().Msg("HTTP API disabled; waiting for shutdown signal")
		<-ctx.Done()
		logger.Info().Msg("Shutdown complete")
		return
	}

	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		if cfg.AuthConfig.JWTSecret == "" {
			logger.Fatal().Msg("AUTH_ENABLED is set but AUTH_JWT_SECRET is empty")
		}
		jwtManager = auth.NewJWTManager(cfg.AuthConfig.JWTSecret, cfg.AuthConfig.AccessTokenDuration)
	}

	server := api.NewServer(cfg.ServerConfig, strategy, hub, jwtManager, logger)
	for name, check := range checks {
		server.AddHealthCheck(name, check)
	}

	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("Web server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	shutdown(server, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second, logger)
}

func shutdown(server *api.Server, timeout time.Duration, logger zerolog.Logger) {
	logger.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down web server")
		return
	}
	logger.Info().Msg("Shutdown complete")
}
