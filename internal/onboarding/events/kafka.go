package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaStore appends events to a Kafka topic keyed by employee identifier, so
// all events for one employee land in one partition in order. Reading events
// back is a consumer concern; ListByEmployee is not supported on this sink.
type KafkaStore struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

func NewKafkaStore(brokers []string, topic string, logger *slog.Logger) (*KafkaStore, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaStore{client: client, topic: topic, logger: logger}, nil
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", event.ID, err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.EmployeeID),
		Value: payload,
	}
	// Fire and forget: event delivery must not slow down onboarding. Failed
	// produces are logged by the callback.
	s.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			s.logger.Error("failed to produce onboarding event",
				"event_id", event.ID, "employee_id", event.EmployeeID, "error", err)
		}
	})
	return nil
}

func (s *KafkaStore) ListByEmployee(_ context.Context, _ string) ([]Event, error) {
	return nil, fmt.Errorf("kafka event store does not support reads")
}

// Close flushes outstanding produces and releases the client.
func (s *KafkaStore) Close() {
	_ = s.client.Flush(context.Background())
	s.client.Close()
}
