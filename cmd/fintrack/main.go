package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrack/internal/admin"
	"fintrack/internal/auth"
	"fintrack/internal/cache"
	"fintrack/internal/cli"
	"fintrack/internal/core"
	apphttp "fintrack/internal/http"
	"fintrack/internal/log"
	"fintrack/internal/records"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.OpenBackend(context.Background(), logger, cfg)
	store := backend.Store

	overviews := cache.NewLRUCache[core.MonthOverview](1000, cfg.CacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(overviews)
	cacheManager.StartCleanup(time.Minute)

	opts := []records.Option{
		records.WithPolicy(cfg.Policy()),
		records.WithOverviewCache(overviews),
		records.WithLogger(logger),
	}
	if backend.Events != nil {
		opts = append(opts, records.WithPublisher(backend.Events))
	}

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Records:            records.NewService(store, opts...),
		Admin:              admin.NewService(store, logger),
		Resolver:           auth.NewResolver(store, store),
		Authorizer:         auth.NewRoleAuthorizer(store),
		Store:              store,
		Logger:             logger,
		CacheStats:         overviews.Stats,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Starting fintrack server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"record_events", backend.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
