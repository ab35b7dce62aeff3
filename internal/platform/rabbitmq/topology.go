package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/phrazzld/scribe-api/internal/config"
)

// Topology names the exchange, queues and routing keys of the pipeline.
type Topology struct {
	Exchange      string
	Queue         string
	RoutingKey    string
	DLQ           string
	DLQRoutingKey string
	MessageTTL    time.Duration
	MaxLength     int
}

// TopologyFromConfig maps broker settings onto a Topology.
func TopologyFromConfig(cfg config.BrokerConfig) Topology {
	return Topology{
		Exchange:      cfg.Exchange,
		Queue:         cfg.Queue,
		RoutingKey:    cfg.RoutingKey,
		DLQ:           cfg.DLQ,
		DLQRoutingKey: cfg.DLQRoutingKey,
		MessageTTL:    cfg.MessageTTL,
		MaxLength:     cfg.MaxLength,
	}
}

// QueueArguments returns the x-arguments of the processing queue. Expired,
// overflowing and rejected messages are routed back through the exchange
// with the dead-letter routing key.
func (t Topology) QueueArguments() amqp.Table {
	args := amqp.Table{
		"x-dead-letter-exchange":    t.Exchange,
		"x-dead-letter-routing-key": t.DLQRoutingKey,
	}
	if t.MessageTTL > 0 {
		args["x-message-ttl"] = int32(t.MessageTTL / time.Millisecond)
	}
	if t.MaxLength > 0 {
		args["x-max-length"] = int32(t.MaxLength)
	}
	return args
}

// Declare creates the exchange, both queues and their bindings. It is
// idempotent as long as the arguments do not change.
func (t Topology) Declare(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}

	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, t.QueueArguments()); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	if err := ch.QueueBind(t.Queue, t.RoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}

	if _, err := ch.QueueDeclare(t.DLQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DLQ, err)
	}
	if err := ch.QueueBind(t.DLQ, t.DLQRoutingKey, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.DLQ, err)
	}

	return nil
}
