package outbox

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"github.com/primebank/agent_banking_core/internal/core/domain"
)

// Publisher delivers staged events to a message broker.
type Publisher interface {
	Publish(ctx context.Context, event domain.OutboxEvent) error
	Close() error
}

// AMQPPublisher publishes outbox events to a RabbitMQ topic exchange, routing
// by event type. A circuit breaker sheds publish attempts while the broker is
// unreachable so the dispatcher keeps its poll cadence.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	breaker  *gobreaker.CircuitBreaker
}

// NewAMQPPublisher connects to RabbitMQ and declares the exchange.
func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "amqp-publish",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		breaker:  breaker,
	}, nil
}

var _ Publisher = (*AMQPPublisher)(nil)

// Publish sends one event, keyed by its event type.
func (p *AMQPPublisher) Publish(ctx context.Context, event domain.OutboxEvent) error {
	_, err := p.breaker.Execute(func() (any, error) {
		return nil, p.channel.PublishWithContext(ctx, p.exchange, event.EventType, false, false, amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.EventID,
			Timestamp:    event.CreatedAt,
			DeliveryMode: amqp.Persistent,
			Body:         event.Payload,
		})
	})
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventID, err)
	}
	return nil
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	if err := p.channel.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
