package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/sheets"
	gsheet "fintrack/internal/sheets/google"
	"fintrack/internal/sheets/memory"
	"fintrack/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting fintrack-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required by the worker", log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	backend := cli.OpenBackend(context.Background(), logger, cfg)
	if backend.Events == nil {
		logger.Error("AMQP broker unreachable, cannot consume record events")
		_ = backend.Cleanup()
		os.Exit(1)
	}

	var mirror sheets.RecordMirror
	if cfg.HasSheets() {
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			_ = backend.Cleanup()
			os.Exit(1)
		}
		if err := client.EnsureTabs(context.Background()); err != nil {
			logger.Error("Failed to prepare spreadsheet tabs", log.FieldError, err)
		}
		mirror = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		mirror = memory.New()
		logger.Warn("Google Sheets not configured, mirroring to memory only")
	}

	syncWorker := worker.NewSyncWorker(backend.Store, backend.Store, mirror, cfg.SyncBatchSize, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", log.FieldError, err)
		}
	})

	logger.Info("Performing startup backfill...")
	if _, err := syncWorker.Backfill(ctx); err != nil {
		logger.Error("Startup backfill failed", log.FieldError, err)
	}

	if err := backend.Events.ConsumeWithRetry(ctx, syncWorker.HandleRecordEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		_ = backend.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
