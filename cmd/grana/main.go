package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"grana/internal/amqp"
	"grana/internal/config"
	apphttp "grana/internal/http"
	applog "grana/internal/log"
	"grana/internal/services"
	"grana/internal/storage"
)

// repository is the full persistence surface the engines consume.
type repository interface {
	services.ForecastStore
	services.GenerationStore
	services.DebtStore
	Close() error
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var (
		repo  repository
		ready func(ctx context.Context) error
	)
	switch cfg.DataBackend {
	case "memory":
		repo = storage.NewMemoryRepository()
		logger.Info("Initialized memory backend")
	default:
		sqliteRepo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		repo = sqliteRepo
		ready = sqliteRepo.Ping
		logger.Info("Initialized SQLite backend", "path", cfg.SQLiteDBPath)
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
	}

	forecaster := services.NewForecastEngine(repo)
	coordinator := services.NewGenerationCoordinator(repo, publisher)
	debts := services.NewDebtService(repo)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		UserID:         cfg.GenerationUserID,
		DefaultHorizon: cfg.DefaultHorizonMonths,
		Ready:          ready,
	}, forecaster, coordinator, debts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting grana server", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
