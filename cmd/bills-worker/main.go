package main

import (
	"context"
	"flag"
	"os"
	"time"

	"fintrack/internal/billing"
	"fintrack/internal/cli"
	"fintrack/internal/log"
	"fintrack/internal/notify"
	"fintrack/internal/records"
)

func main() {
	once := flag.Bool("once", false, "run the job once and exit")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting bills-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	backend := cli.OpenBackend(context.Background(), logger, cfg)

	var publisher records.Publisher
	if backend.Events != nil {
		publisher = backend.Events
	}

	var notifier billing.Notifier
	if cfg.HasTelegram() {
		tg, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("Failed to initialize Telegram notifier", log.FieldError, err)
			_ = backend.Cleanup()
			os.Exit(1)
		}
		notifier = tg
	} else {
		logger.Info("Telegram not configured, the digest is only logged")
	}

	job := billing.NewJob(
		billing.NewProcessor(backend.Store, publisher, logger),
		backend.Store, backend.Store, notifier, cfg.BillsDueWithin, logger)

	if *once {
		err := job.Run(context.Background())
		if cerr := backend.Cleanup(); cerr != nil {
			logger.Error("Backend cleanup error", log.FieldError, cerr)
		}
		if err != nil {
			logger.Error("Bills job failed", log.FieldError, err)
			os.Exit(1)
		}
		return
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	scheduler, err := billing.Schedule(ctx, cfg.BillsCron, job, logger)
	if err != nil {
		logger.Error("Failed to schedule bills job", log.FieldError, err)
		_ = backend.Cleanup()
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Bills job scheduled", "cron", cfg.BillsCron, "due_within", cfg.BillsDueWithin.String())

	cli.WaitForShutdown(ctx, done)

	// Wait for a running job before closing the store under it.
	<-scheduler.Stop().Done()
	if err := backend.Cleanup(); err != nil {
		logger.Error("Backend cleanup error", log.FieldError, err)
	}
	logger.Info("Bills worker stopped gracefully")
}
