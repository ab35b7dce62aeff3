package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scribe-api/internal/config"
	"github.com/phrazzld/scribe-api/internal/domain"
	"github.com/phrazzld/scribe-api/internal/events"
	"github.com/phrazzld/scribe-api/internal/platform/logger"
)

type fakeTaskQuery struct {
	mu      sync.Mutex
	byOwner map[uuid.UUID][]*domain.Task
	err     error
	calls   int
}

func newFakeTaskQuery() *fakeTaskQuery {
	return &fakeTaskQuery{byOwner: make(map[uuid.UUID][]*domain.Task)}
}

func (q *fakeTaskQuery) add(t *testing.T, owner uuid.UUID) *domain.Task {
	t.Helper()
	task, err := domain.NewTask(uuid.New())
	require.NoError(t, err)
	q.mu.Lock()
	defer q.mu.Unlock()
	q.byOwner[owner] = append(q.byOwner[owner], task)
	return task
}

func (q *fakeTaskQuery) setErr(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.err = err
}

func (q *fakeTaskQuery) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	return append([]*domain.Task(nil), q.byOwner[ownerID]...), nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []*events.Event
	err    error
}

func (s *recordingSink) Send(_ context.Context, event *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *recordingSink) updates(t *testing.T) []events.StatusUpdate {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.StatusUpdate
	for _, e := range s.events {
		if e.Name != events.NameStatusUpdate {
			continue
		}
		var u events.StatusUpdate
		require.NoError(t, e.UnmarshalData(&u))
		out = append(out, u)
	}
	return out
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestNotifier(t *testing.T, tasks TaskQuery) (*Notifier, *testClock) {
	t.Helper()
	return newTestNotifierWithLogger(t, tasks, nil)
}

func newTestNotifierWithLogger(t *testing.T, tasks TaskQuery, log *slog.Logger) (*Notifier, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	n, err := NewNotifier(NewRegistry(), tasks, config.NotifierConfig{
		PollInterval: 10 * time.Millisecond,
		MaxLifetime:  30 * time.Minute,
	}, log, WithClock(clock.Now))
	require.NoError(t, err)
	return n, clock
}

func TestNewNotifier_Validation(t *testing.T) {
	_, err := NewNotifier(nil, newFakeTaskQuery(), config.NotifierConfig{}, nil)
	assert.Error(t, err)

	_, err = NewNotifier(NewRegistry(), nil, config.NotifierConfig{}, nil)
	assert.Error(t, err)

	n, err := NewNotifier(NewRegistry(), newFakeTaskQuery(), config.NotifierConfig{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, n.pollInterval)
	assert.Equal(t, DefaultMaxLifetime, n.maxLifetime)
}

func TestSubscribe_SendsConnected(t *testing.T) {
	n, clock := newTestNotifier(t, newFakeTaskQuery())
	sink := &recordingSink{}
	owner := uuid.New()

	sub, err := n.Subscribe(context.Background(), owner, sink)
	require.NoError(t, err)
	assert.Equal(t, 1, n.ActiveCount())
	assert.Equal(t, owner, sub.OwnerID)
	assert.Equal(t, clock.Now().Add(30*time.Minute), sub.ExpiresAt)

	require.Len(t, sink.events, 1)
	assert.Equal(t, events.NameConnected, sink.events[0].Name)
	var payload events.Connected
	require.NoError(t, sink.events[0].UnmarshalData(&payload))
	assert.Equal(t, sub.ID, payload.SubscriberID)
	assert.Equal(t, events.ConnectedMessage, payload.Message)
}

func TestSubscribe_FailedConnectedIsNotRegistered(t *testing.T) {
	n, _ := newTestNotifier(t, newFakeTaskQuery())
	sink := &recordingSink{err: errors.New("broken pipe")}

	_, err := n.Subscribe(context.Background(), uuid.New(), sink)
	assert.Error(t, err)
	assert.Zero(t, n.ActiveCount())

	_, err = n.Subscribe(context.Background(), uuid.New(), nil)
	assert.ErrorIs(t, err, ErrNilSink)

	_, err = n.Subscribe(context.Background(), uuid.Nil, &recordingSink{})
	assert.ErrorIs(t, err, ErrNilOwner)
	assert.Zero(t, n.ActiveCount())
}

// A subscriber sees the current status on the first tick, one update per
// change after that, and nothing once unsubscribed.
func TestTick_EmitsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	tasks := newFakeTaskQuery()
	owner := uuid.New()
	task := tasks.add(t, owner)

	n, clock := newTestNotifier(t, tasks)
	sink := &recordingSink{}
	sub, err := n.Subscribe(ctx, owner, sink)
	require.NoError(t, err)

	n.Tick(ctx)
	updates := sink.updates(t)
	require.Len(t, updates, 1)
	assert.Equal(t, task.ResourceID, updates[0].ResourceID)
	assert.Equal(t, task.ID, updates[0].TaskID)
	assert.Equal(t, domain.TaskStatusPending, updates[0].Status)

	n.Tick(ctx)
	assert.Len(t, sink.updates(t), 1, "unchanged status is not re-sent")

	require.NoError(t, task.MarkProcessing(clock.Now()))
	n.Tick(ctx)
	updates = sink.updates(t)
	require.Len(t, updates, 2)
	assert.Equal(t, domain.TaskStatusProcessing, updates[1].Status)

	n.Tick(ctx)
	assert.Len(t, sink.updates(t), 2)

	n.Unsubscribe(sub.ID)
	assert.Zero(t, n.ActiveCount())
	select {
	case <-sub.Done():
	default:
		t.Fatal("subscription done channel not closed")
	}

	require.NoError(t, task.MarkCompleted(clock.Now()))
	n.Tick(ctx)
	assert.Len(t, sink.updates(t), 2, "no events after unsubscribe")
}

func TestTick_ScopesToOwner(t *testing.T) {
	ctx := context.Background()
	tasks := newFakeTaskQuery()
	alice, bob := uuid.New(), uuid.New()
	tasks.add(t, alice)
	tasks.add(t, alice)
	tasks.add(t, bob)

	n, _ := newTestNotifier(t, tasks)
	aliceSink, bobSink := &recordingSink{}, &recordingSink{}
	_, err := n.Subscribe(ctx, alice, aliceSink)
	require.NoError(t, err)
	_, err = n.Subscribe(ctx, bob, bobSink)
	require.NoError(t, err)

	n.Tick(ctx)
	assert.Len(t, aliceSink.updates(t), 2)
	assert.Len(t, bobSink.updates(t), 1)
}

func TestTick_SendFailureDropsOnlyThatSubscriber(t *testing.T) {
	ctx := context.Background()
	tasks := newFakeTaskQuery()
	owner := uuid.New()
	tasks.add(t, owner)

	n, _ := newTestNotifier(t, tasks)
	healthy, broken := &recordingSink{}, &recordingSink{}
	_, err := n.Subscribe(ctx, owner, healthy)
	require.NoError(t, err)
	brokenSub, err := n.Subscribe(ctx, owner, broken)
	require.NoError(t, err)

	broken.fail(errors.New("write: connection reset by peer"))
	n.Tick(ctx)

	assert.Equal(t, 1, n.ActiveCount())
	_, ok := n.registry.Get(brokenSub.ID)
	assert.False(t, ok)
	assert.Len(t, healthy.updates(t), 1)
}

func TestTick_QueryErrorKeepsSubscriber(t *testing.T) {
	ctx := context.Background()
	tasks := newFakeTaskQuery()
	owner := uuid.New()
	tasks.add(t, owner)

	log, logs := logger.Capture(t)
	n, _ := newTestNotifierWithLogger(t, tasks, log)
	sink := &recordingSink{}
	_, err := n.Subscribe(ctx, owner, sink)
	require.NoError(t, err)

	tasks.setErr(errors.New("dial postgres://scribe:hunter22@db:5432/scribe: connection refused"))
	n.Tick(ctx)
	assert.Equal(t, 1, n.ActiveCount())
	assert.Empty(t, sink.updates(t))

	entry, ok := logs.Find("failed to query task statuses")
	require.True(t, ok)
	assert.NotContains(t, entry["error"], "hunter22")
	assert.Contains(t, entry["error"], "connection refused")

	tasks.setErr(nil)
	n.Tick(ctx)
	assert.Len(t, sink.updates(t), 1)
}

func TestTick_ClosesExpiredSubscriptions(t *testing.T) {
	ctx := context.Background()
	tasks := newFakeTaskQuery()
	n, clock := newTestNotifier(t, tasks)

	old, err := n.Subscribe(ctx, uuid.New(), &recordingSink{})
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	fresh, err := n.Subscribe(ctx, uuid.New(), &recordingSink{})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	n.Tick(ctx)

	assert.Equal(t, 1, n.ActiveCount())
	select {
	case <-old.Done():
	default:
		t.Fatal("expired subscription still open")
	}
	_, ok := n.registry.Get(fresh.ID)
	assert.True(t, ok)
}

func TestRun_ClosesSubscriptionsOnShutdown(t *testing.T) {
	tasks := newFakeTaskQuery()
	owner := uuid.New()
	tasks.add(t, owner)

	n, _ := newTestNotifier(t, tasks)
	sink := &recordingSink{}
	sub, err := n.Subscribe(context.Background(), owner, sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(stopped)
	}()

	require.Eventually(t, func() bool { return len(sink.updates(t)) == 1 },
		time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
	assert.Zero(t, n.ActiveCount())
	<-sub.Done()
}
