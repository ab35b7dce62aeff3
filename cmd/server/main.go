// Package main implements the Scribe API server, which accepts audio
// uploads, queues them for transcription and analysis, and streams task
// status to clients.
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

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (optional)")
	migrate := flag.String("migrate", "", "run a migration command (up, down, status, version, reset) and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *migrate, flag.Args()); err != nil {
		log.Fatalf("scribe-api: %v", err)
	}
}

func run(ctx context.Context, configPath, migrateCmd string, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("server configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.String("broker", cfg.Broker.Provider),
		slog.String("llm", cfg.LLM.Provider))

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}

	if migrateCmd != "" {
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, migrateCmd, appLogger, args...)
	}

	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return app.Run(ctx)
}

// loadConfig reads the file at path, falling back to SCRIBE_CONFIG and
// then to the default search locations.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv("SCRIBE_CONFIG")
	}
	if path == "" {
		return config.Load()
	}
	return config.LoadFrom(path)
}
