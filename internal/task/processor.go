package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/phrazzld/scribe-api/internal/capability"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/queue"
	"github.com/phrazzld/scribe-api/internal/redact"
	"github.com/phrazzld/scribe-api/internal/store"
)

// TracerName identifies spans created by this package.
const TracerName = "github.com/phrazzld/scribe-api/internal/task"

// Common errors
var (
	ErrNilRepository  = errors.New("repository cannot be nil")
	ErrNilCapability  = errors.New("capability cannot be nil")
	ErrMissingFileKey = errors.New("audio record has no file key")
)

// Repository is the persistence the processor needs.
type Repository interface {
	// GetTask returns the task for a resource or store.ErrTaskNotFound.
	GetTask(ctx context.Context, resourceID uuid.UUID) (*domain.Task, error)

	// UpdateTask persists the task with an optimistic version check and
	// returns store.ErrConflict when another writer got there first.
	UpdateTask(ctx context.Context, task *domain.Task) error

	// GetAudioRecord returns the resource record or
	// store.ErrAudioRecordNotFound.
	GetAudioRecord(ctx context.Context, id uuid.UUID) (*domain.AudioRecord, error)

	// CompleteTask writes result and moves task to completed atomically.
	// task is only modified when the write succeeds.
	CompleteTask(ctx context.Context, task *domain.Task, result *domain.Result, now time.Time) error
}

// Claimer provides optional per-resource mutual exclusion across workers.
type Claimer interface {
	Acquire(ctx context.Context, resourceID uuid.UUID) (token string, ok bool, err error)
	Release(ctx context.Context, resourceID uuid.UUID, token string) error
}

// ProcessorConfig holds configuration for the processor.
type ProcessorConfig struct {
	// MaxRetries is the transient failure budget per task.
	MaxRetries int
}

// Outcome reports how a delivery was handled.
type Outcome struct {
	Action     Action
	ResourceID uuid.UUID
	// Status is the task status after handling, empty when no task was loaded.
	Status     domain.TaskStatus
	RetryCount int
	// Err is the stage failure, nil on success and for duplicates.
	Err *StageError
}

// Processor runs the pipeline for one delivered message at a time.
// It is safe for concurrent use.
type Processor struct {
	repo        Repository
	loader      capability.ResourceLoader
	transcriber capability.Transcriber
	analyzer    capability.Analyzer
	claims      Claimer
	config      ProcessorConfig
	tracer      trace.Tracer
	logger      *slog.Logger
	now         func() time.Time
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithClaimer fronts the status guard with a per-resource claim.
func WithClaimer(c Claimer) ProcessorOption {
	return func(p *Processor) { p.claims = c }
}

// WithTracerProvider sets the provider used for stage spans.
func WithTracerProvider(tp trace.TracerProvider) ProcessorOption {
	return func(p *Processor) { p.tracer = tp.Tracer(TracerName) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = now }
}

// NewProcessor creates a Processor.
func NewProcessor(
	repo Repository,
	loader capability.ResourceLoader,
	transcriber capability.Transcriber,
	analyzer capability.Analyzer,
	config ProcessorConfig,
	logger *slog.Logger,
	opts ...ProcessorOption,
) (*Processor, error) {
	if repo == nil {
		return nil, ErrNilRepository
	}
	if loader == nil || transcriber == nil || analyzer == nil {
		return nil, ErrNilCapability
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Processor{
		repo:        repo,
		loader:      loader,
		transcriber: transcriber,
		analyzer:    analyzer,
		config:      config,
		tracer:      otel.Tracer(TracerName),
		logger:      logger.With("component", "task_processor"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle processes one message body and returns what to do with the
// delivery. The task store is fully updated before Handle returns.
func (p *Processor) Handle(ctx context.Context, body []byte) Outcome {
	ctx, span := p.tracer.Start(ctx, "task.handle")
	defer span.End()

	log := logger.FromContextOrDefault(ctx, p.logger)

	resourceID, err := queue.Decode(body)
	if err != nil {
		log.WarnContext(ctx, "discarding malformed message",
			"error", err,
			"body_length", len(body))
		return p.finish(span, Outcome{Action: ActionAck, Err: validationError(StageParse, err)})
	}

	span.SetAttributes(attribute.String("resource.id", resourceID.String()))
	log = log.With("resource_id", resourceID.String())
	ctx = logger.WithLogger(ctx, log)

	task, err := p.repo.GetTask(ctx, resourceID)
	if err != nil {
		if errors.Is(err, store.ErrTaskNotFound) {
			log.ErrorContext(ctx, "no task for queued resource, discarding message")
			return p.finish(span, Outcome{
				Action:     ActionAck,
				ResourceID: resourceID,
				Err:        validationError(StageLoadTask, err),
			})
		}
		log.ErrorContext(ctx, "failed to load task", "error", err)
		return p.finish(span, Outcome{
			Action:     ActionDeadLetter,
			ResourceID: resourceID,
			Err:        unclassifiedError(StageLoadTask, err),
		})
	}

	if task.Status != domain.TaskStatusPending {
		log.InfoContext(ctx, "task is not pending, acknowledging duplicate delivery",
			"task_id", task.ID.String(),
			"status", task.Status)
		return p.finish(span, p.outcome(ActionAck, task, nil))
	}

	if p.claims != nil {
		token, ok, err := p.claims.Acquire(ctx, resourceID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "claim unavailable, relying on version check", "error", err)
		case !ok:
			log.InfoContext(ctx, "resource claimed by another worker, acknowledging duplicate delivery")
			return p.finish(span, p.outcome(ActionAck, task, nil))
		default:
			defer func() {
				if err := p.claims.Release(context.WithoutCancel(ctx), resourceID, token); err != nil {
					log.WarnContext(ctx, "failed to release claim", "error", err)
				}
			}()
		}
	}

	if err := task.MarkProcessing(p.now()); err != nil {
		return p.finish(span, p.fail(ctx, task, unclassifiedError(StageStart, err)))
	}
	if err := p.repo.UpdateTask(ctx, task); err != nil {
		if store.IsConflictError(err) {
			log.InfoContext(ctx, "task claimed concurrently, acknowledging duplicate delivery",
				"task_id", task.ID.String())
			return p.finish(span, p.outcome(ActionAck, task, nil))
		}
		log.ErrorContext(ctx, "failed to mark task processing", "error", err)
		return p.finish(span, p.outcome(ActionDeadLetter, task, unclassifiedError(StageStart, err)))
	}

	log.InfoContext(ctx, "processing task",
		"task_id", task.ID.String(),
		"retry_count", task.RetryCount)

	if stageErr := p.run(ctx, task); stageErr != nil {
		if stageErr.Stage == StagePersist && store.IsConflictError(stageErr) {
			log.InfoContext(ctx, "task changed while processing, acknowledging duplicate delivery",
				"task_id", task.ID.String())
			return p.finish(span, p.outcome(ActionAck, task, nil))
		}
		return p.finish(span, p.fail(ctx, task, stageErr))
	}

	log.InfoContext(ctx, "task completed", "task_id", task.ID.String())
	return p.finish(span, p.outcome(ActionAck, task, nil))
}

// run executes the loading, transcription, analysis and persistence stages.
func (p *Processor) run(ctx context.Context, task *domain.Task) *StageError {
	var record *domain.AudioRecord
	var data []byte
	if err := p.stage(ctx, StageLoadResource, func(ctx context.Context) *StageError {
		var err error
		record, err = p.repo.GetAudioRecord(ctx, task.ResourceID)
		if err != nil {
			if errors.Is(err, store.ErrAudioRecordNotFound) {
				return validationError(StageLoadResource, err)
			}
			return transientError(StageLoadResource, err)
		}
		if record.FileKey == "" {
			return validationError(StageLoadResource, ErrMissingFileKey)
		}
		data, err = p.loader.Load(ctx, record.FileKey)
		if err != nil {
			return transientError(StageLoadResource, err)
		}
		return nil
	}); err != nil {
		return err
	}

	var transcription string
	if err := p.stage(ctx, StageTranscribe, func(ctx context.Context) *StageError {
		var err error
		transcription, err = p.transcriber.Transcribe(ctx, capability.Audio{
			Data:     data,
			FileName: record.FileName,
			MimeType: record.MimeType,
		})
		if err != nil {
			return transientError(StageTranscribe, err)
		}
		if transcription == "" {
			return transientError(StageTranscribe, capability.ErrEmptyResult)
		}
		return nil
	}); err != nil {
		return err
	}

	var analysis *domain.Analysis
	if err := p.stage(ctx, StageAnalyze, func(ctx context.Context) *StageError {
		var err error
		analysis, err = p.analyzer.Analyze(ctx, transcription)
		if err != nil {
			return transientError(StageAnalyze, err)
		}
		return nil
	}); err != nil {
		return err
	}

	return p.stage(ctx, StagePersist, func(ctx context.Context) *StageError {
		result, err := domain.NewResult(task, transcription, analysis, p.analyzer.Model())
		if err != nil {
			return transientError(StagePersist, err)
		}
		if err := p.repo.CompleteTask(ctx, task, result, p.now()); err != nil {
			return transientError(StagePersist, err)
		}
		return nil
	})
}

// stage runs fn in its own span and converts a panic into an unclassified
// failure.
func (p *Processor) stage(
	ctx context.Context,
	name Stage,
	fn func(ctx context.Context) *StageError,
) (stageErr *StageError) {
	ctx, span := p.tracer.Start(ctx, "task.stage."+string(name),
		trace.WithAttributes(attribute.String("task.stage", string(name))))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			logger.FromContextOrDefault(ctx, p.logger).ErrorContext(ctx, "panic in pipeline stage",
				"stage", name,
				"panic", r,
				"stack", string(debug.Stack()))
			stageErr = unclassifiedError(name, fmt.Errorf("panic: %v", r))
		}
		if stageErr != nil {
			span.RecordError(stageErr)
			span.SetStatus(codes.Error, stageErr.Kind.String())
		}
	}()

	return fn(ctx)
}

// fail applies the retry policy to a task whose pipeline failed.
func (p *Processor) fail(ctx context.Context, task *domain.Task, stageErr *StageError) Outcome {
	log := logger.FromContextOrDefault(ctx, p.logger).With(
		"task_id", task.ID.String(),
		"stage", stageErr.Stage,
		"kind", stageErr.Kind.String())

	decision := Decide(stageErr.Kind, task.RetryCount, p.config.MaxRetries)
	reason := redact.ErrorLog(stageErr)
	now := p.now()

	switch decision.Action {
	case ActionRequeue:
		task.RetryCount = decision.RetryCount
		if err := task.MarkRetrying(p.config.MaxRetries, now); err != nil {
			log.ErrorContext(ctx, "failed to return task to pending", "error", err)
			return p.outcome(ActionDeadLetter, task, stageErr)
		}
		log.WarnContext(ctx, "transient failure, requeueing task",
			"error", reason,
			"retry_count", task.RetryCount,
			"max_retries", p.config.MaxRetries)

	case ActionAckFailed:
		task.RetryCount = decision.RetryCount
		if err := task.MarkFailed(reason, now); err != nil {
			log.ErrorContext(ctx, "failed to mark task failed", "error", err)
			return p.outcome(ActionDeadLetter, task, stageErr)
		}
		log.ErrorContext(ctx, "task failed permanently",
			"error", reason,
			"retry_count", task.RetryCount)

	default:
		log.ErrorContext(ctx, "unclassified failure, dead-lettering message", "error", reason)
		if task.Status == domain.TaskStatusProcessing {
			if err := task.MarkFailed(reason, now); err == nil {
				err := p.repo.UpdateTask(context.WithoutCancel(ctx), task)
				if store.IsConflictError(err) {
					log.InfoContext(ctx, "task taken over by another delivery, acknowledging", "error", err)
					return p.outcome(ActionAck, task, nil)
				}
				if err != nil {
					log.ErrorContext(ctx, "failed to record unclassified failure", "error", err)
				}
			}
		}
		return p.outcome(ActionDeadLetter, task, stageErr)
	}

	if err := p.repo.UpdateTask(context.WithoutCancel(ctx), task); err != nil {
		if store.IsConflictError(err) {
			// a reaped task was re-published and picked up elsewhere
			log.InfoContext(ctx, "task taken over by another delivery, acknowledging", "error", err)
			return p.outcome(ActionAck, task, nil)
		}
		log.ErrorContext(ctx, "failed to persist failure decision", "error", err)
		return p.outcome(ActionDeadLetter, task, stageErr)
	}
	return p.outcome(decision.Action, task, stageErr)
}

// ReapStuck applies the retry policy to a task left in processing by a
// worker that stopped before finishing it.
func (p *Processor) ReapStuck(ctx context.Context, task *domain.Task) Outcome {
	if task.Status != domain.TaskStatusProcessing {
		return p.outcome(ActionAck, task, nil)
	}
	stuckFor := p.now().Sub(task.UpdatedAt).Round(time.Second)
	return p.fail(ctx, task, transientError(StageStuck,
		fmt.Errorf("task in processing for %s without progress", stuckFor)))
}

// TouchPending refreshes the update time of a pending task so it is not
// picked up again by the next orphan check. It returns store.ErrConflict
// when the task changed since it was read.
func (p *Processor) TouchPending(ctx context.Context, task *domain.Task) error {
	if task.Status != domain.TaskStatusPending {
		return fmt.Errorf("%w: task is %s", domain.ErrInvalidTransition, task.Status)
	}
	task.Touch(p.now())
	return p.repo.UpdateTask(ctx, task)
}

func (p *Processor) outcome(action Action, task *domain.Task, err *StageError) Outcome {
	return Outcome{
		Action:     action,
		ResourceID: task.ResourceID,
		Status:     task.Status,
		RetryCount: task.RetryCount,
		Err:        err,
	}
}

func (p *Processor) finish(span trace.Span, out Outcome) Outcome {
	span.SetAttributes(attribute.String("task.action", out.Action.String()))
	if out.Status != "" {
		span.SetAttributes(attribute.String("task.status", string(out.Status)))
	}
	if out.Err != nil {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, out.Err.Kind.String())
	}
	return out
}
