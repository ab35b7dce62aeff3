package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/capability/mock"
	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/platform/gemini"
	"github.com/phrazzld/scribe-api/internal/platform/postgres"
	"github.com/phrazzld/scribe-api/internal/platform/rabbitmq"
	"github.com/phrazzld/scribe-api/internal/platform/redis"
	"github.com/phrazzld/scribe-api/internal/platform/storage"
	"github.com/phrazzld/scribe-api/internal/queue"
	"github.com/phrazzld/scribe-api/internal/task"
)

// Provider names accepted in configuration.
const (
	BrokerRabbitMQ = "rabbitmq"
	BrokerMemory   = "memory"
	LLMGemini      = "gemini"
	LLMMock        = "mock"
)

// ErrUnknownProvider is returned for a provider name with no implementation.
var ErrUnknownProvider = errors.New("unknown provider")

// OpenBroker connects to the configured broker.
func OpenBroker(cfg config.BrokerConfig, logger *slog.Logger) (queue.Broker, error) {
	switch cfg.Provider {
	case BrokerRabbitMQ:
		return rabbitmq.Dial(cfg.URL, rabbitmq.TopologyFromConfig(cfg), logger)
	case BrokerMemory:
		return queue.NewMemoryBroker(queue.MemoryOptions{
			MessageTTL: cfg.MessageTTL,
			MaxLength:  cfg.MaxLength,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: broker %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Capabilities builds the transcription and analysis providers.
func Capabilities(
	ctx context.Context,
	cfg config.LLMConfig,
	logger *slog.Logger,
) (capability.Transcriber, capability.Analyzer, error) {
	switch cfg.Provider {
	case LLMGemini:
		client, err := gemini.NewClient(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return gemini.NewTranscriber(client.Models, cfg, logger),
			gemini.NewAnalyzer(client.Models, cfg, logger), nil
	case LLMMock:
		logger.Warn("using mock transcription and analysis providers")
		return &mock.Transcriber{}, &mock.Analyzer{}, nil
	default:
		return nil, nil, fmt.Errorf("%w: llm %q", ErrUnknownProvider, cfg.Provider)
	}
}

// Worker is an assembled worker pool and the resources it holds.
type Worker struct {
	Runner *task.Runner
	claims *redis.ClaimStore
}

// Close releases resources the worker opened. The broker and database are
// owned by the caller.
func (w *Worker) Close() error {
	if w.claims != nil {
		return w.claims.Close()
	}
	return nil
}

// NewWorker wires a processor and runner over db and broker.
func NewWorker(
	ctx context.Context,
	cfg *config.Config,
	db *sql.DB,
	broker queue.Broker,
	logger *slog.Logger,
) (*Worker, error) {
	repo := task.NewStoreRepository(db,
		postgres.NewPostgresTaskStore(db, logger),
		postgres.NewPostgresAudioStore(db, logger),
		postgres.NewPostgresResultStore(db, logger))

	transcriber, analyzer, err := Capabilities(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize capabilities: %w", err)
	}

	w := &Worker{}
	var opts []task.ProcessorOption
	if cfg.Redis.URL != "" {
		claims, err := redis.NewClaimStore(cfg.Redis.URL, cfg.Redis.ClaimTTL)
		if err != nil {
			return nil, err
		}
		if err := claims.Ping(ctx); err != nil {
			// the claim is advisory; run without it rather than refuse to start
			logger.Warn("redis unavailable, processing claims disabled", "error", err)
			_ = claims.Close()
		} else {
			w.claims = claims
			opts = append(opts, task.WithClaimer(claims))
		}
	}

	processor, err := task.NewProcessor(repo,
		storage.NewFileLoader(cfg.Storage.AudioPath, logger),
		transcriber, analyzer,
		task.ProcessorConfig{MaxRetries: cfg.Worker.MaxRetries},
		logger, opts...)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	w.Runner = task.NewRunner(broker, processor, repo, task.RunnerConfig{
		WorkerCount:            cfg.Worker.WorkerCount,
		StuckTaskAge:           cfg.Worker.StuckTaskAge,
		StuckTaskCheckInterval: cfg.Worker.StuckTaskCheckInterval,
		PendingRequeueAge:      cfg.Worker.PendingRequeueAge,
		PendingCheckInterval:   cfg.Worker.PendingCheckInterval,
	}, logger)
	return w, nil
}

// Supervise blocks until ctx is canceled, the broker stops or runner stops
// consuming. It returns nil only when ctx was canceled. runner may be nil.
func Supervise(ctx context.Context, broker queue.Broker, runner *task.Runner) error {
	var stopped <-chan error
	if runner != nil {
		stopped = runner.Err()
	}

	select {
	case <-ctx.Done():
		return nil
	case <-broker.Done():
		return fmt.Errorf("broker stopped: %w", broker.Err())
	case err := <-stopped:
		return err
	}
}
