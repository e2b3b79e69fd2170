package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/streakbot/habit-streak-bot/internal/application/service"
	"github.com/streakbot/habit-streak-bot/internal/domain/habit"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/metrics"
	"github.com/streakbot/habit-streak-bot/internal/infrastructure/persistence/redis"
	httpserver "github.com/streakbot/habit-streak-bot/internal/interface/http"
	"github.com/streakbot/habit-streak-bot/internal/interface/http/handlers"
	"github.com/streakbot/habit-streak-bot/internal/interface/telegram"
	"github.com/streakbot/habit-streak-bot/pkg/logger"
	"github.com/streakbot/habit-streak-bot/pkg/timeutil"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot with its health and metrics endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	if err := cfg.ValidateTelegram(); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log, logCloser, err := logger.New(logger.Options{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
		Output: os.Stderr,
		File:   cfg.Observability.LogFile,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logCloser.Close()

	log.Info("starting streakbot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"driver", cfg.Database.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. STORAGE
	// ─────────────────────────────────────────────────────────────────────────
	store, _, err := openStore(ctx, cfg.Database, log, false)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database...")
		if err := store.Close(); err != nil {
			log.Warn("failed to close database", logger.Err(err))
		}
	}()
	log.Info("database ready")

	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("database", handlers.NewPingCheck(store))

	// ─────────────────────────────────────────────────────────────────────────
	// 4. REDIS COMPLETION LOCK (optional)
	// ─────────────────────────────────────────────────────────────────────────
	var locker habit.Locker
	if cfg.Redis.Enabled {
		redisCfg := redis.DefaultConfig()
		redisCfg.Addr = cfg.Redis.Addr
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout
		redisCfg.KeyPrefix = cfg.Redis.KeyPrefix

		cache, err := redis.NewCache(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer cache.Close()

		locker = redis.NewCompletionLock(cache)
		health.AddCheck("redis", handlers.NewPingCheck(cache))
		log.Info("redis completion lock enabled", "addr", cfg.Redis.Addr)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. METRICS
	// ─────────────────────────────────────────────────────────────────────────
	recorder := metrics.NewRecorder(cfg.Observability.MetricsNamespace)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	habits := service.NewHabitService(store, timeutil.NewSystemClock(cfg.App.Location), service.Options{
		Locker:   locker,
		LockTTL:  cfg.Redis.LockTTL,
		Observer: recorder,
		Logger:   log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	botConfig := telegram.DefaultBotConfig(cfg.Telegram.Token)
	botConfig.BaseURL = cfg.Telegram.BaseURL
	botConfig.PollingTimeout = cfg.Telegram.PollingTimeout
	botConfig.RequestTimeout = cfg.Telegram.RequestTimeout
	botConfig.UpdateTimeout = cfg.Database.QueryTimeout
	botConfig.Debug = cfg.Telegram.Debug
	botConfig.Logger = log

	bot, err := telegram.NewBot(botConfig, telegram.BotDependencies{
		Service: habits,
		Metrics: recorder,
	})
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP SERVER (health + metrics)
	// ─────────────────────────────────────────────────────────────────────────
	var httpServer *httpserver.Server
	if cfg.HTTP.Enabled {
		httpConfig := httpserver.DefaultConfig()
		httpConfig.Host = cfg.HTTP.Host
		httpConfig.Port = cfg.HTTP.Port
		httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled

		httpServer = httpserver.NewServer(httpConfig, httpserver.Dependencies{
			HealthChecker: health,
			Metrics:       recorder.Handler(),
			Version:       cfg.App.Version,
			Logger:        log,
		})
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. RUN
	// ─────────────────────────────────────────────────────────────────────────
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)

	if httpServer != nil {
		go func() {
			if err := <-httpServer.StartAsync(); err != nil {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if err := bot.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("telegram bot error: %w", err)
		}
	}()

	log.Info("streakbot is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal")
	case runErr = <-errCh:
		log.Error("component failed", logger.Err(runErr))
	case <-botDone:
		select {
		case runErr = <-errCh:
			log.Error("component failed", logger.Err(runErr))
		default:
			log.Info("bot stopped")
		}
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown error", logger.Err(err))
		}
	}

	select {
	case <-botDone:
	case <-shutdownCtx.Done():
		log.Warn("bot did not stop in time")
	}

	log.Info("shutdown completed")
	return runErr
}
