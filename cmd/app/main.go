package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"telemed-admin/internal/auth"
	"telemed-admin/internal/botengine"
	"telemed-admin/internal/cache"
	"telemed-admin/internal/chat"
	"telemed-admin/internal/config"
	"telemed-admin/internal/dashboard"
	"telemed-admin/internal/feed"
	"telemed-admin/internal/httpserver"
	"telemed-admin/internal/logging"
	"telemed-admin/internal/metrics"
	"telemed-admin/internal/notifier"
	"telemed-admin/internal/repo"
	"telemed-admin/internal/triage"
	"telemed-admin/migrations"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting telemed-admin", "env", cfg.AppEnv, "store", cfg.StoreDriver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	var store repo.Store
	switch cfg.StoreDriver {
	case "postgres":
		store, err = repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	case "sqlite":
		store, err = repo.NewSQLite(ctx, cfg.SQLitePath, logger)
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	redisClient := cache.New(cache.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		UseTLS:   cfg.RedisTLS,
	}, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed closing redis", "error", err)
		}
	}()
	var statCache dashboard.StatCache
	if err := redisClient.Ping(ctx); err != nil {
		logger.Warn("redis ping failed, overview caching disabled", "error", err)
	} else {
		statCache = redisClient
	}

	botClient := botengine.New(botengine.Config{
		BaseURL: cfg.BotEngineBaseURL,
		APIKey:  cfg.BotEngineAPIKey,
		Timeout: cfg.BotEngineTimeout,
	}, logger, metricRegistry)

	notifyClient := notifier.New(notifier.Config{
		BaseURL: cfg.NotifierBaseURL,
		Timeout: cfg.NotifierTimeout,
	}, logger, metricRegistry)

	dashboardSvc := dashboard.New(store, statCache, dashboard.Config{
		PollInterval: cfg.PollInterval,
		DemoStats:    cfg.DemoStats,
	}, logger, metricRegistry)
	go dashboardSvc.Run(ctx)

	triageSvc := triage.New(store, logger, metricRegistry)
	authSvc := auth.New(store, auth.Config{
		JWTSecret:   cfg.JWTSecret,
		TokenExpiry: cfg.TokenExpiry,
	}, logger)
	chatSvc := chat.New(store, botClient, logger)

	hub := feed.NewHub(logger, metricRegistry)
	if cfg.StoreDriver == "postgres" {
		listener := feed.NewListener(cfg.DatabaseURL, cfg.FeedChannel, store, hub, logger, metricRegistry)
		go listener.Run(ctx)
	} else {
		logger.Info("live feed listener disabled for sqlite store")
	}

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Store:     store,
		Dashboard: dashboardSvc,
		Triage:    triageSvc,
		Auth:      authSvc,
		Chat:      chatSvc,
		Hub:       hub,
		BotEngine: botClient,
		Notifier:  notifyClient,
	}, cfg.PublicBasePath)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}
