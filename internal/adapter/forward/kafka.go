package forward

import (
	"context"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/callwatch/internal/domain"
)

// messageWriter is the subset of *kafka.Writer used by KafkaSink.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes entry envelopes to a Kafka topic, keyed by entry kind.
type KafkaSink struct {
	writer messageWriter
}

// NewKafkaSink creates a sink for a comma-separated broker list.
func NewKafkaSink(brokers, topic string) *KafkaSink {
	addrs := strings.Split(brokers, ",")
	for i := range addrs {
		addrs[i] = strings.TrimSpace(addrs[i])
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}}
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) Send(ctx context.Context, envelopes []domain.Envelope) error {
	msgs := make([]kafka.Message, 0, len(envelopes))
	for _, env := range envelopes {
		value, err := env.Marshal()
		if err != nil {
			return fmt.Errorf("failed to marshal envelope: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(env.Kind),
			Value: value,
		})
	}
	if err := s.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write to kafka: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
