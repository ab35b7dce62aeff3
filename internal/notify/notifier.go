package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/redact"
)

// Default timings.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxLifetime  = 30 * time.Minute
)

// Subscription errors.
var (
	ErrNilSink  = errors.New("notify: sink cannot be nil")
	ErrNilOwner = errors.New("notify: owner id is required")
)

// TaskQuery lists the tasks visible to an owner.
type TaskQuery interface {
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error)
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// Notifier diffs task statuses per subscriber and pushes changes.
type Notifier struct {
	registry     *Registry
	tasks        TaskQuery
	pollInterval time.Duration
	maxLifetime  time.Duration
	now          func() time.Time
	logger       *slog.Logger

	// serializes ticks; lastKnown maps are only touched under it
	tickMu sync.Mutex
}

// NewNotifier creates a Notifier over the given registry. Zero durations in
// cfg fall back to the defaults.
func NewNotifier(
	registry *Registry,
	tasks TaskQuery,
	cfg config.NotifierConfig,
	logger *slog.Logger,
	opts ...Option,
) (*Notifier, error) {
	if registry == nil {
		return nil, errors.New("notify: registry cannot be nil")
	}
	if tasks == nil {
		return nil, errors.New("notify: task query cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	n := &Notifier{
		registry:     registry,
		tasks:        tasks,
		pollInterval: cfg.PollInterval,
		maxLifetime:  cfg.MaxLifetime,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "status_notifier")),
	}
	if n.pollInterval <= 0 {
		n.pollInterval = DefaultPollInterval
	}
	if n.maxLifetime <= 0 {
		n.maxLifetime = DefaultMaxLifetime
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Subscribe registers a sink for the owner's task updates and sends the
// connected event. If that first send fails nothing is registered.
func (n *Notifier) Subscribe(ctx context.Context, ownerID uuid.UUID, sink events.Sink) (*Subscription, error) {
	if sink == nil {
		return nil, ErrNilSink
	}
	if ownerID == uuid.Nil {
		return nil, ErrNilOwner
	}

	now := n.now()
	sub := &Subscription{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		ExpiresAt: now.Add(n.maxLifetime),
		sink:      sink,
		lastKnown: make(map[uuid.UUID]domain.TaskStatus),
		done:      make(chan struct{}),
	}

	event, err := events.NewConnected(sub.ID, now)
	if err != nil {
		return nil, err
	}
	if err := sink.Send(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to send connected event: %w", err)
	}

	n.registry.add(sub)
	n.logger.Info("subscriber connected",
		slog.String("subscriber_id", sub.ID.String()),
		slog.String("owner_id", ownerID.String()),
		slog.Int("active", n.registry.Len()))
	return sub, nil
}

// Unsubscribe removes the subscription and all its state.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	if n.registry.Remove(id) {
		n.logger.Info("subscriber disconnected",
			slog.String("subscriber_id", id.String()),
			slog.Int("active", n.registry.Len()))
	}
}

// ActiveCount returns the number of live subscriptions.
func (n *Notifier) ActiveCount() int {
	return n.registry.Len()
}

// Run ticks until ctx is cancelled, then closes every subscription.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.pollInterval)
	defer ticker.Stop()

	n.logger.Info("status notifier started", slog.Duration("poll_interval", n.pollInterval))
	for {
		select {
		case <-ctx.Done():
			n.registry.CloseAll()
			n.logger.Info("status notifier stopped")
			return
		case <-ticker.C:
			n.Tick(ctx)
		}
	}
}

// Tick runs one poll over all subscriptions.
func (n *Notifier) Tick(ctx context.Context) {
	n.tickMu.Lock()
	defer n.tickMu.Unlock()

	now := n.now()
	for _, sub := range n.registry.snapshot() {
		if ctx.Err() != nil {
			return
		}
		if !now.Before(sub.ExpiresAt) {
			n.logger.Info("subscription lifetime reached",
				slog.String("subscriber_id", sub.ID.String()))
			n.Unsubscribe(sub.ID)
			continue
		}
		n.poll(ctx, sub, now)
	}
}

func (n *Notifier) poll(ctx context.Context, sub *Subscription, now time.Time) {
	log := n.logger.With(slog.String("subscriber_id", sub.ID.String()))

	tasks, err := n.tasks.ListByOwner(ctx, sub.OwnerID)
	if err != nil {
		// keep the subscriber; the next tick retries
		log.Error("failed to query task statuses", slog.String("error", redact.Error(err)))
		return
	}

	for _, task := range tasks {
		if last, ok := sub.lastKnown[task.ID]; ok && last == task.Status {
			continue
		}

		event, err := events.NewStatusUpdate(task, now)
		if err != nil {
			log.Error("failed to build status update", slog.String("error", err.Error()))
			continue
		}
		if err := sub.sink.Send(ctx, event); err != nil {
			log.Warn("dropping subscriber after send failure", slog.String("error", err.Error()))
			n.Unsubscribe(sub.ID)
			return
		}
		sub.lastKnown[task.ID] = task.Status
	}
}
