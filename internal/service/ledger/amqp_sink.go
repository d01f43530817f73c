package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/ignite/audience-dispatch/internal/domain"
)

// DefaultExchange is the topic exchange lifecycle events are published to.
const DefaultExchange = "campaign.events"

// amqpChannel is the subset of *amqp091.Channel the sink uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPSink publishes events to a RabbitMQ topic exchange with routing key
// "campaign.<type>".
type AMQPSink struct {
	conn     *amqp091.Connection
	channel  amqpChannel
	exchange string
}

// NewAMQPSink dials url and declares a durable topic exchange.
func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return &AMQPSink{conn: conn, channel: ch, exchange: exchange}, nil
}

func newAMQPSinkWithChannel(ch amqpChannel, exchange string) *AMQPSink {
	return &AMQPSink{channel: ch, exchange: exchange}
}

func (s *AMQPSink) Name() string { return "amqp" }

// Publish sends the event as a persistent JSON message.
func (s *AMQPSink) Publish(ctx context.Context, e domain.CampaignEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.channel.PublishWithContext(ctx,
		s.exchange,
		"campaign."+string(e.Type),
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    e.ID,
			Timestamp:    e.CreatedAt,
			Body:         body,
			DeliveryMode: amqp091.Persistent,
		},
	)
}

// Close releases the channel and connection.
func (s *AMQPSink) Close() {
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
