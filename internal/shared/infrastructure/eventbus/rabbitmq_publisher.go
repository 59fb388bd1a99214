package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange carrying ledger and sharing events.
const ExchangeName = "gatehouse.domain.events"

// ErrNacked is returned when the broker refuses a message.
var ErrNacked = errors.New("broker nacked message")

// RabbitMQPublisher publishes envelopes to a RabbitMQ topic exchange.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewRabbitMQPublisher dials url and declares the exchange.
func NewRabbitMQPublisher(url string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	// Confirm mode: Publish returns only after the broker has taken the message.
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}

	logger.Info("rabbitmq publisher connected", "exchange", ExchangeName)

	return &RabbitMQPublisher{
		conn:     conn,
		channel:  ch,
		exchange: ExchangeName,
		logger:   logger,
	}, nil
}

// Publish sends env as a persistent JSON message and waits for the broker ack.
func (p *RabbitMQPublisher) Publish(ctx context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx, p.exchange, env.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.MessageID,
		CorrelationId: env.CorrelationID,
		AppId:         "gatehouse",
		Timestamp:     time.Now(),
		Body:          env.Payload,
	})
	if err != nil {
		p.logger.Error("publish failed", "routing_key", env.RoutingKey, "message_id", env.MessageID, "error", err)
		return err
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", env.MessageID, err)
	}
	if !acked {
		return fmt.Errorf("%s: %w", env.MessageID, ErrNacked)
	}

	p.logger.Debug("message published", "routing_key", env.RoutingKey, "size", len(env.Payload))
	return nil
}

// Close closes the channel and connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("close channel", "error", err)
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	p.logger.Info("rabbitmq publisher closed")
	return nil
}

// NoopPublisher drops every envelope. Used when no broker is configured.
type NoopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher creates a NoopPublisher.
func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

// Publish logs and discards env.
func (p *NoopPublisher) Publish(_ context.Context, env Envelope) error {
	p.logger.Debug("noop publish", "routing_key", env.RoutingKey, "size", len(env.Payload))
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }
