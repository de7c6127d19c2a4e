package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"grana/internal/amqp"
	"grana/internal/config"
	applog "grana/internal/log"
	"grana/internal/services"
	"grana/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentWorker)
	applog.SetDefault(logger)

	logger.Info("Starting recurring-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var publisher services.GeneratedPublisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			defer client.Close()
			publisher = client
			logger.Info("AMQP client initialized", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	} else {
		logger.Info("AMQP disabled, generated transactions will not be announced")
	}

	coordinator := services.NewGenerationCoordinator(repo, publisher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runGeneration := func() {
		runCtx, runCancel := context.WithTimeout(ctx, 10*time.Minute)
		defer runCancel()

		report, err := coordinator.GenerateDue(runCtx, cfg.GenerationUserID, time.Now())
		if err != nil {
			logger.Error("Generation run failed", "error", err)
			return
		}
		logger.Info("Generation run complete",
			"created", report.Created,
			"skipped", report.Skipped,
			"failed", len(report.Failures))
		for _, f := range report.Failures {
			logger.Error("Recurrence failed during generation run",
				applog.FieldRecurringID, f.RecurringID,
				"error", f.Err)
		}
	}

	// Catch up anything that came due while the worker was down.
	logger.Info("Running initial generation pass")
	runGeneration()

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.GenerationCronSpec, runGeneration); err != nil {
		logger.Error("Invalid generation cron spec", "spec", cfg.GenerationCronSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()
	logger.Info("Generation scheduled", "cron", cfg.GenerationCronSpec, "sqlite_db", cfg.SQLiteDBPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutdown signal received", "signal", sig.String())

	cancel()
	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("Timed out waiting for running generation to finish")
	}
	logger.Info("Worker stopped gracefully")
}
