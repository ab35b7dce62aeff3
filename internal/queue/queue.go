// Package queue defines the broker contract used to hand resource
// identifiers from the submission path to the workers, plus an in-memory
// broker with the same delivery semantics as the RabbitMQ gateway.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Common errors returned by broker implementations.
var (
	ErrQueueClosed      = errors.New("queue is closed")
	ErrMalformedMessage = errors.New("malformed queue message")
	ErrAlreadySettled   = errors.New("delivery already settled")
)

// Publisher sends a resource identifier to the processing queue.
// A nil error means the broker has accepted the message durably.
type Publisher interface {
	Publish(ctx context.Context, resourceID uuid.UUID) error
}

// Delivery is one message handed to a consumer. Exactly one of Ack, Reject
// or Requeue must be called.
type Delivery interface {
	Body() []byte

	// Ack removes the message from the queue.
	Ack() error

	// Reject removes the message without requeueing it; the broker routes
	// it to the dead-letter queue.
	Reject() error

	// Requeue returns the message to the queue for another delivery.
	Requeue() error
}

// Consumer receives deliveries one at a time. The next delivery is not
// sent until the previous one is settled.
type Consumer interface {
	Deliveries() <-chan Delivery
	Close() error
}

// Broker is a Publisher that can also create independent consumers.
type Broker interface {
	Publisher
	NewConsumer(ctx context.Context) (Consumer, error)

	// Done is closed when the broker can no longer publish or deliver,
	// either because Close was called or because the connection was lost.
	Done() <-chan struct{}

	// Err returns nil while the broker is usable, ErrQueueClosed after
	// Close and the connection error after a lost connection.
	Err() error

	Close() error
}
