// Package main runs the processing worker pool: it consumes queued audio
// tasks, transcribes and analyzes them, and requeues stuck work.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/phrazzld/scribe-api/internal/bootstrap"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("scribe-worker: %v", err)
	}
}

func run(ctx context.Context, configPath string) error {
	if configPath == "" {
		configPath = os.Getenv("SCRIBE_CONFIG")
	}
	var (
		cfg *config.Config
		err error
	)
	if configPath == "" {
		cfg, err = config.Load()
	} else {
		cfg, err = config.LoadFrom(configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	if cfg.Broker.Provider == bootstrap.BrokerMemory {
		// an in-process queue is only reachable from the server binary
		return fmt.Errorf("broker provider %q requires the worker to run inside the server", cfg.Broker.Provider)
	}

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	broker, err := bootstrap.OpenBroker(cfg.Broker, appLogger)
	if err != nil {
		return fmt.Errorf("failed to open broker: %w", err)
	}
	defer func() { _ = broker.Close() }()

	worker, err := bootstrap.NewWorker(ctx, cfg, db, broker, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}
	defer func() { _ = worker.Close() }()

	if err := worker.Runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	appLogger.Info("worker started",
		slog.Int("worker_count", cfg.Worker.WorkerCount),
		slog.String("queue", cfg.Broker.Queue),
		slog.String("llm", cfg.LLM.Provider))

	err = bootstrap.Supervise(ctx, broker, worker.Runner)
	if err != nil {
		appLogger.Error("worker pool stopped unexpectedly", slog.String("error", err.Error()))
	} else {
		appLogger.Info("shutting down worker")
	}
	worker.Runner.Stop()
	appLogger.Info("worker shutdown completed")
	return err
}
