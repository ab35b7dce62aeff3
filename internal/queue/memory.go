package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryOptions configures a MemoryBroker.
type MemoryOptions struct {
	// MessageTTL dead-letters messages that wait longer than this. Zero
	// disables expiry.
	MessageTTL time.Duration

	// MaxLength bounds the ready queue; publishing beyond it dead-letters
	// the oldest message. Zero means unbounded.
	MaxLength int

	// Now overrides the clock, for tests.
	Now func() time.Time
}

type memoryMessage struct {
	body       []byte
	enqueuedAt time.Time
}

// MemoryBroker is an in-process Broker with the dead-letter behavior of
// the RabbitMQ topology: overflow, expiry and rejection all move the
// message to the dead-letter queue.
type MemoryBroker struct {
	mu         sync.Mutex
	ready      []memoryMessage
	dead       [][]byte
	wake       chan struct{}
	done       chan struct{}
	closed     bool
	publishErr error
	opts       MemoryOptions
	logger     *slog.Logger
}

var _ Broker = (*MemoryBroker)(nil)

// NewMemoryBroker creates an empty in-memory broker.
func NewMemoryBroker(opts MemoryOptions, logger *slog.Logger) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &MemoryBroker{
		wake:   make(chan struct{}),
		done:   make(chan struct{}),
		opts:   opts,
		logger: logger.With(slog.String("component", "memory_broker")),
	}
}

// Publish implements Publisher.
func (b *MemoryBroker) Publish(ctx context.Context, resourceID uuid.UUID) error {
	return b.enqueue(ctx, Encode(resourceID))
}

// PublishRaw enqueues an arbitrary body.
func (b *MemoryBroker) PublishRaw(ctx context.Context, body []byte) error {
	return b.enqueue(ctx, body)
}

// FailPublishes makes every subsequent Publish return err. A nil err
// restores normal behavior.
func (b *MemoryBroker) FailPublishes(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishErr = err
}

func (b *MemoryBroker) enqueue(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrQueueClosed
	}
	if b.publishErr != nil {
		return b.publishErr
	}

	if b.opts.MaxLength > 0 && len(b.ready) >= b.opts.MaxLength {
		// drop-head overflow
		oldest := b.ready[0]
		b.ready = b.ready[1:]
		b.dead = append(b.dead, oldest.body)
		b.logger.Warn("queue full, dead-lettering oldest message",
			slog.Int("max_length", b.opts.MaxLength))
	}

	b.ready = append(b.ready, memoryMessage{body: append([]byte(nil), body...), enqueuedAt: b.opts.Now()})
	b.broadcastLocked()
	return nil
}

// Len returns the number of ready messages.
func (b *MemoryBroker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready)
}

// DeadLetters returns a copy of the dead-letter queue contents.
func (b *MemoryBroker) DeadLetters() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]byte, len(b.dead))
	copy(out, b.dead)
	return out
}

// Close stops all consumers. Unsettled deliveries are returned to the
// ready queue.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		b.broadcastLocked()
		close(b.done)
	}
	return nil
}

// Done implements Broker.
func (b *MemoryBroker) Done() <-chan struct{} {
	return b.done
}

// Err implements Broker.
func (b *MemoryBroker) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrQueueClosed
	}
	return nil
}

func (b *MemoryBroker) broadcastLocked() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// next blocks until a live message is available.
func (b *MemoryBroker) next(ctx context.Context) (memoryMessage, bool) {
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return memoryMessage{}, false
		}
		b.expireLocked()
		if len(b.ready) > 0 {
			msg := b.ready[0]
			b.ready = b.ready[1:]
			b.mu.Unlock()
			return msg, true
		}
		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return memoryMessage{}, false
		case <-wake:
		}
	}
}

func (b *MemoryBroker) expireLocked() {
	if b.opts.MessageTTL <= 0 {
		return
	}
	now := b.opts.Now()
	live := b.ready[:0]
	for _, msg := range b.ready {
		if now.Sub(msg.enqueuedAt) >= b.opts.MessageTTL {
			b.dead = append(b.dead, msg.body)
			continue
		}
		live = append(live, msg)
	}
	b.ready = live
}

func (b *MemoryBroker) settle(msg memoryMessage, action settlement) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch action {
	case settleReject:
		b.dead = append(b.dead, msg.body)
	case settleRequeue:
		b.ready = append([]memoryMessage{msg}, b.ready...)
		b.broadcastLocked()
	}
}

// NewConsumer implements Broker. Each consumer has a prefetch of one.
func (b *MemoryBroker) NewConsumer(ctx context.Context) (Consumer, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrQueueClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &memoryConsumer{
		broker:     b,
		deliveries: make(chan Delivery),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go c.run(ctx)
	return c, nil
}

type settlement int

const (
	settleAck settlement = iota
	settleReject
	settleRequeue
)

type memoryConsumer struct {
	broker     *MemoryBroker
	deliveries chan Delivery
	cancel     context.CancelFunc
	done       chan struct{}
}

func (c *memoryConsumer) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.deliveries)

	for {
		msg, ok := c.broker.next(ctx)
		if !ok {
			return
		}

		d := &memoryDelivery{msg: msg, settled: make(chan settlement, 1)}
		select {
		case c.deliveries <- d:
		case <-ctx.Done():
			c.broker.settle(msg, settleRequeue)
			return
		}

		select {
		case action := <-d.settled:
			c.broker.settle(msg, action)
		case <-ctx.Done():
			// a delivery settled concurrently with shutdown still wins
			select {
			case action := <-d.settled:
				c.broker.settle(msg, action)
			default:
				d.abandon()
				c.broker.settle(msg, settleRequeue)
			}
			return
		}
	}
}

func (c *memoryConsumer) Deliveries() <-chan Delivery {
	return c.deliveries
}

func (c *memoryConsumer) Close() error {
	c.cancel()
	<-c.done
	return nil
}

type memoryDelivery struct {
	mu      sync.Mutex
	msg     memoryMessage
	done    bool
	settled chan settlement
}

func (d *memoryDelivery) Body() []byte { return d.msg.body }

func (d *memoryDelivery) Ack() error     { return d.finish(settleAck) }
func (d *memoryDelivery) Reject() error  { return d.finish(settleReject) }
func (d *memoryDelivery) Requeue() error { return d.finish(settleRequeue) }

func (d *memoryDelivery) finish(action settlement) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return ErrAlreadySettled
	}
	d.done = true
	d.settled <- action
	return nil
}

func (d *memoryDelivery) abandon() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
}
