// Package rabbitmq implements queue.Broker on RabbitMQ.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phrazzld/scribe-api/internal/platform/logger"
	"github.com/phrazzld/scribe-api/internal/queue"
)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

// Broker publishes with publisher confirms on a dedicated channel and
// hands out one channel per consumer.
type Broker struct {
	conn     *amqp.Connection
	topology Topology
	logger   *slog.Logger

	pubMu sync.Mutex
	pubCh *amqp.Channel

	done    chan struct{}
	errMu   sync.Mutex
	lostErr error
}

var _ queue.Broker = (*Broker)(nil)

// Dial connects to url, declares the topology and opens the publishing
// channel in confirm mode.
func Dial(url string, topology Topology, log *slog.Logger) (*Broker, error) {
	if log == nil {
		log = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if err := topology.Declare(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	b := &Broker{
		conn:     conn,
		topology: topology,
		logger:   log.With(slog.String("component", "rabbitmq")),
		pubCh:    ch,
		done:     make(chan struct{}),
	}
	go b.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))

	b.logger.Info("connected to RabbitMQ and declared topology",
		slog.String("exchange", topology.Exchange),
		slog.String("queue", topology.Queue),
		slog.String("dlq", topology.DLQ))
	return b, nil
}

// Publish implements queue.Publisher. It returns once the broker has
// confirmed the message.
func (b *Broker) Publish(ctx context.Context, resourceID uuid.UUID) error {
	log := logger.FromContextOrDefault(ctx, b.logger)

	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	confirm, err := b.pubCh.PublishWithDeferredConfirmWithContext(ctx,
		b.topology.Exchange,
		b.topology.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  queue.ContentType,
			MessageId:    uuid.NewString(),
			Body:         queue.Encode(resourceID),
		},
	)
	if err != nil {
		log.Error("failed to publish message",
			slog.String("resource_id", resourceID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("publish: %w", err)
	}

	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirm: %w", err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	log.Debug("message published", slog.String("resource_id", resourceID.String()))
	return nil
}

// NewConsumer implements queue.Broker with a fresh channel and a prefetch
// of one.
func (b *Broker) NewConsumer(ctx context.Context) (queue.Consumer, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	tag := "scribe-worker-" + uuid.NewString()
	msgs, err := ch.ConsumeWithContext(ctx, b.topology.Queue, tag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	c := &consumer{
		ch:         ch,
		tag:        tag,
		deliveries: make(chan queue.Delivery),
		done:       make(chan struct{}),
	}
	go c.forward(msgs)
	return c, nil
}

// watch closes done when the connection goes away. A nil error on the
// notification channel means Close was called.
func (b *Broker) watch(closed <-chan *amqp.Error) {
	amqpErr, ok := <-closed

	b.errMu.Lock()
	if ok && amqpErr != nil {
		b.lostErr = fmt.Errorf("rabbitmq connection lost: %w", amqpErr)
		b.logger.Error("connection to RabbitMQ lost",
			slog.Int("code", amqpErr.Code),
			slog.String("reason", amqpErr.Reason))
	} else {
		b.lostErr = queue.ErrQueueClosed
	}
	b.errMu.Unlock()

	close(b.done)
}

// Done implements queue.Broker.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// Err implements queue.Broker.
func (b *Broker) Err() error {
	select {
	case <-b.done:
	default:
		return nil
	}
	b.errMu.Lock()
	defer b.errMu.Unlock()
	return b.lostErr
}

// Close closes the publishing channel and the connection.
func (b *Broker) Close() error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	_ = b.pubCh.Close()
	return b.conn.Close()
}

type consumer struct {
	ch         *amqp.Channel
	tag        string
	deliveries chan queue.Delivery
	done       chan struct{}
	closeOnce  sync.Once
}

func (c *consumer) forward(msgs <-chan amqp.Delivery) {
	defer close(c.deliveries)
	for msg := range msgs {
		select {
		case c.deliveries <- &delivery{msg: msg}:
		case <-c.done:
			_ = msg.Nack(false, true)
			return
		}
	}
}

func (c *consumer) Deliveries() <-chan queue.Delivery {
	return c.deliveries
}

func (c *consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ch.Cancel(c.tag, false)
		err = c.ch.Close()
	})
	return err
}

type delivery struct {
	msg amqp.Delivery
}

func (d *delivery) Body() []byte   { return d.msg.Body }
func (d *delivery) Ack() error     { return d.msg.Ack(false) }
func (d *delivery) Reject() error  { return d.msg.Reject(false) }
func (d *delivery) Requeue() error { return d.msg.Nack(false, true) }
