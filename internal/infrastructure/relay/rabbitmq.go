package relay

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitSink publishes to a durable topic exchange. Channels are not safe for
// concurrent publishing, so sends are serialized.
type RabbitSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func DialRabbit(url, exchange string) (*RabbitSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %q: %w", exchange, err)
	}
	return &RabbitSink{conn: conn, ch: ch, exchange: exchange}, nil
}

func (s *RabbitSink) Name() string { return "rabbitmq" }

func (s *RabbitSink) Send(ctx context.Context, m Message) error {
	key := m.RoutingKey
	if key == "" {
		key = m.Event
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.ch.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    m.ID,
		Type:         m.Event,
		Timestamp:    m.Time,
		Body:         m.Body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", key, err)
	}
	return nil
}

func (s *RabbitSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.Close(); err != nil && !s.conn.IsClosed() {
		s.conn.Close()
		return fmt.Errorf("rabbitmq: close channel: %w", err)
	}
	return s.conn.Close()
}
