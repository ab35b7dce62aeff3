package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/queue"
)

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many independent consumers are bound to the
	// queue. Each consumer has at most one message in flight.
	WorkerCount int

	// StuckTaskAge defines how long a task can be in processing state
	// before it's considered abandoned. Zero disables the reaper.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks.
	// If zero, defaults to 5 minutes
	StuckTaskCheckInterval time.Duration

	// PendingRequeueAge is how long a task may stay pending before its
	// message is assumed lost and re-published. Zero disables the check.
	PendingRequeueAge time.Duration

	// PendingCheckInterval defines how often to look for lost pending
	// tasks. If zero, defaults to 15 seconds.
	PendingCheckInterval time.Duration
}

// ErrConsumersStopped is reported by Runner.Err when every consumer has
// stopped without Stop being called, usually because the broker
// connection was lost.
var ErrConsumersStopped = errors.New("all queue consumers stopped")

// TaskLister finds tasks that have not changed since a cutoff.
type TaskLister interface {
	ListByStatus(ctx context.Context, status domain.TaskStatus, updatedBefore time.Time) ([]*domain.Task, error)
}

// Runner binds the processor to the broker.
type Runner struct {
	broker    queue.Broker
	processor *Processor
	tasks     TaskLister
	config    RunnerConfig
	logger    *slog.Logger

	mu        sync.Mutex
	consumers []queue.Consumer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	workers   sync.WaitGroup
	errCh     chan error
}

// NewRunner creates a Runner. tasks may be nil to disable the stuck task
// monitor.
func NewRunner(
	broker queue.Broker,
	processor *Processor,
	tasks TaskLister,
	config RunnerConfig,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}
	if config.PendingCheckInterval <= 0 {
		config.PendingCheckInterval = 15 * time.Second
	}

	return &Runner{
		broker:    broker,
		processor: processor,
		tasks:     tasks,
		config:    config,
		logger:    logger.With("component", "task_runner"),
		errCh:     make(chan error, 1),
	}
}

// Err returns a channel that receives ErrConsumersStopped if the pool
// stops consuming on its own. Nothing is sent after a call to Stop.
func (r *Runner) Err() <-chan error {
	return r.errCh
}

// Start binds WorkerCount consumers and returns once they are running.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("runner already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	consumers := make([]queue.Consumer, 0, r.config.WorkerCount)
	for i := 0; i < r.config.WorkerCount; i++ {
		consumer, err := r.broker.NewConsumer(runCtx)
		if err != nil {
			cancel()
			for _, c := range consumers {
				_ = c.Close()
			}
			return fmt.Errorf("failed to start consumer %d: %w", i, err)
		}
		consumers = append(consumers, consumer)
	}

	r.cancel = cancel
	r.consumers = consumers
	for i, consumer := range consumers {
		r.workers.Add(1)
		go r.worker(runCtx, i, consumer)
	}

	r.wg.Add(1)
	go r.watchWorkers(runCtx)

	if r.tasks != nil && r.config.StuckTaskAge > 0 {
		r.wg.Add(1)
		go r.monitor(runCtx, r.config.StuckTaskCheckInterval, r.ReapStuckTasks)
	}
	if r.tasks != nil && r.config.PendingRequeueAge > 0 {
		r.wg.Add(1)
		go r.monitor(runCtx, r.config.PendingCheckInterval, r.RequeueOrphans)
	}

	r.logger.Info("task runner started", "worker_count", r.config.WorkerCount)
	return nil
}

// Stop closes the consumers and waits for in-flight messages to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	consumers := r.consumers
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	r.wg.Wait()
	for _, c := range consumers {
		if err := c.Close(); err != nil {
			r.logger.Warn("failed to close consumer", "error", err)
		}
	}
	r.logger.Info("task runner stopped")
}

// watchWorkers reports ErrConsumersStopped once every worker has returned
// while ctx is still live.
func (r *Runner) watchWorkers(ctx context.Context) {
	defer r.wg.Done()
	r.workers.Wait()
	if ctx.Err() != nil {
		return
	}
	r.logger.Error("all consumers stopped, worker pool is no longer consuming")
	select {
	case r.errCh <- ErrConsumersStopped:
	default:
	}
}

// worker processes deliveries from one consumer
func (r *Runner) worker(ctx context.Context, id int, consumer queue.Consumer) {
	defer r.workers.Done()

	log := r.logger.With("worker_id", id)
	log.Debug("starting worker")

	for {
		select {
		case <-ctx.Done():
			log.Debug("stopping worker")
			return

		case delivery, ok := <-consumer.Deliveries():
			if !ok {
				if ctx.Err() == nil {
					log.Warn("delivery channel closed by broker, stopping worker")
				}
				return
			}
			// in-flight work finishes even when Stop is called
			r.handle(context.WithoutCancel(ctx), log, delivery)
		}
	}
}

func (r *Runner) handle(ctx context.Context, log *slog.Logger, delivery queue.Delivery) {
	out := r.processor.Handle(ctx, delivery.Body())
	r.apply(ctx, log, delivery, out)
}

// apply settles the delivery according to the outcome.
func (r *Runner) apply(ctx context.Context, log *slog.Logger, delivery queue.Delivery, out Outcome) {
	var err error
	switch out.Action {
	case ActionAck, ActionAckFailed:
		err = delivery.Ack()

	case ActionRequeue:
		if pubErr := r.broker.Publish(ctx, out.ResourceID); pubErr != nil {
			// the task is pending again; broker redelivery picks it up
			log.Error("failed to re-publish task, returning message to queue",
				"resource_id", out.ResourceID.String(),
				"error", pubErr)
			err = delivery.Requeue()
			break
		}
		err = delivery.Ack()

	case ActionDeadLetter:
		err = delivery.Reject()
	}

	if err != nil {
		log.Error("failed to settle delivery",
			"action", out.Action.String(),
			"resource_id", out.ResourceID.String(),
			"error", err)
	}
}

// monitor runs check every interval until ctx is canceled.
func (r *Runner) monitor(ctx context.Context, interval time.Duration, check func(context.Context) int) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check(ctx)
		}
	}
}

// ReapStuckTasks returns tasks that have been processing for longer than
// StuckTaskAge to the retry policy, as if their last attempt had failed
// transiently. It returns the number of tasks acted on.
func (r *Runner) ReapStuckTasks(ctx context.Context) int {
	tasks := r.listOlderThan(ctx, domain.TaskStatusProcessing, r.config.StuckTaskAge)
	if len(tasks) == 0 {
		return 0
	}

	r.logger.Info("found stuck tasks", "count", len(tasks))
	reaped := 0
	for _, task := range tasks {
		out := r.processor.ReapStuck(ctx, task)
		switch out.Action {
		case ActionRequeue:
			if err := r.broker.Publish(ctx, out.ResourceID); err != nil {
				r.logger.Error("failed to requeue stuck task",
					"task_id", task.ID.String(),
					"error", err)
				continue
			}
			reaped++
		case ActionAckFailed:
			reaped++
		default:
			r.logger.Warn("stuck task left unchanged",
				"task_id", task.ID.String(),
				"action", out.Action.String())
		}
	}
	return reaped
}

// RequeueOrphans re-publishes tasks that have been pending for longer than
// PendingRequeueAge. A pending task normally has a message in the queue,
// but the message is dropped when a worker consumes it before the
// submitting transaction commits, and it can expire or overflow in the
// broker. Duplicates are harmless because only a pending task is
// processed. It returns the number of tasks re-published.
func (r *Runner) RequeueOrphans(ctx context.Context) int {
	tasks := r.listOlderThan(ctx, domain.TaskStatusPending, r.config.PendingRequeueAge)
	requeued := 0
	for _, task := range tasks {
		if err := r.processor.TouchPending(ctx, task); err != nil {
			r.logger.Debug("skipping pending task that changed",
				"task_id", task.ID.String(),
				"error", err)
			continue
		}
		if err := r.broker.Publish(ctx, task.ResourceID); err != nil {
			r.logger.Error("failed to re-publish pending task",
				"task_id", task.ID.String(),
				"error", err)
			continue
		}
		requeued++
	}
	if requeued > 0 {
		r.logger.Info("re-published idle pending tasks", "count", requeued)
	}
	return requeued
}

func (r *Runner) listOlderThan(ctx context.Context, status domain.TaskStatus, age time.Duration) []*domain.Task {
	if r.tasks == nil || age <= 0 {
		return nil
	}
	cutoff := r.processor.now().Add(-age)
	tasks, err := r.tasks.ListByStatus(ctx, status, cutoff)
	if err != nil {
		r.logger.Error("failed to list idle tasks",
			"status", status,
			"error", err)
		return nil
	}
	return tasks
}
