package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ publishes ticket events to a durable topic exchange.
type RabbitMQ struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitMQ dials the broker and declares the exchange.
func NewRabbitMQ(uri, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQ{conn: conn, channel: ch, exchange: exchange}, nil
}

// Publish sends a persistent JSON message with the given routing key.
// amqp channels are not safe for concurrent publishing, hence the mutex.
func (r *RabbitMQ) Publish(ctx context.Context, routingKey, messageID string, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.PublishWithContext(ctx,
		r.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    messageID,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
}

// Ping reports whether the connection is still open.
func (r *RabbitMQ) Ping(context.Context) error {
	if r == nil || r.conn == nil || r.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection closed")
	}
	return nil
}

// Close closes the channel and then the connection.
func (r *RabbitMQ) Close() {
	if r == nil {
		return
	}
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		_ = r.conn.Close()
	}
}
