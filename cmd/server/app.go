package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/phrazzld/scribe-api/internal/auth"
	"github.com/phrazzld/scribe-api/internal/bootstrap"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/notify"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
	"github.com/phrazzld/scribe-api/internal/queue"
	"github.com/phrazzld/scribe-api/internal/service"
	"github.com/phrazzld/scribe-api/internal/task"
)

// application holds the shared dependencies of the server and releases
// them on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	broker   queue.Broker
	tokens   auth.TokenService
	jobs     service.JobService
	notifier *notify.Notifier

	// worker is set when the broker is in-process and the pool runs
	// alongside the API.
	worker *bootstrap.Worker

	background sync.WaitGroup
}

func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{config: cfg, logger: logger, db: db}

	var err error
	app.tokens, err = auth.NewTokenService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	app.broker, err = bootstrap.OpenBroker(cfg.Broker, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open broker: %w", err)
	}

	tasks := postgres.NewPostgresTaskStore(db, logger)
	repo := service.NewStoreJobRepository(db, tasks,
		postgres.NewPostgresAudioStore(db, logger),
		postgres.NewPostgresResultStore(db, logger))

	app.jobs, err = service.NewJobService(repo, app.broker, logger)
	if err != nil {
		app.closeBroker()
		return nil, fmt.Errorf("failed to create job service: %w", err)
	}

	app.notifier, err = notify.NewNotifier(notify.NewRegistry(), tasks, cfg.Notifier, logger)
	if err != nil {
		app.closeBroker()
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}

	if cfg.Broker.Provider == bootstrap.BrokerMemory {
		app.worker, err = bootstrap.NewWorker(ctx, cfg, db, app.broker, logger)
		if err != nil {
			app.closeBroker()
			return nil, fmt.Errorf("failed to create embedded worker: %w", err)
		}
		logger.Info("in-memory broker selected, running worker pool in process",
			slog.Int("worker_count", cfg.Worker.WorkerCount))
	}

	logger.Info("application initialized")
	return app, nil
}

// Run starts the background loops and serves HTTP until ctx is canceled.
// It returns an error if the broker or the embedded worker pool stops
// first, so the process exits instead of serving without a queue.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	ctx, cancel := context.WithCancelCause(ctx)
	defer func() {
		cancel(nil)
		app.background.Wait()
	}()

	app.background.Add(1)
	go func() {
		defer app.background.Done()
		app.notifier.Run(ctx)
	}()

	var runner *task.Runner
	if app.worker != nil {
		runner = app.worker.Runner
		if err := runner.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker pool: %w", err)
		}
	}

	app.background.Add(1)
	go func() {
		defer app.background.Done()
		if err := bootstrap.Supervise(ctx, app.broker, runner); err != nil {
			app.logger.Error("queue unavailable, shutting down", slog.String("error", err.Error()))
			cancel(err)
		}
	}()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}

func (app *application) closeBroker() {
	if app.broker == nil {
		return
	}
	if err := app.broker.Close(); err != nil {
		app.logger.Error("error closing broker", slog.String("error", err.Error()))
	}
	app.broker = nil
}

// cleanup stops the worker pool and closes connections.
func (app *application) cleanup() {
	if app.worker != nil {
		app.worker.Runner.Stop()
		if err := app.worker.Close(); err != nil {
			app.logger.Error("error closing worker resources", slog.String("error", err.Error()))
		}
		app.worker = nil
	}
	app.closeBroker()
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
		app.db = nil
	}
	app.logger.Info("application shutdown completed")
}
