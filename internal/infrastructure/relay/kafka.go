package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaSink writes every message to one topic, hashed by aggregate id.
type KafkaSink struct {
	w *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, m Message) error {
	err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Body,
		Time:  m.Time,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(m.Event)},
			{Key: "event_id", Value: []byte(m.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka: write: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error { return s.w.Close() }
