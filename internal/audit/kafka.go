package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"docsign/internal/platform/kafka"
)

// KafkaSink publishes audit events to the configured topic, keyed by
// subject so per-subject ordering survives partitioning.
type KafkaSink struct {
	client *kafka.Client
}

func NewKafkaSink(client *kafka.Client) *KafkaSink {
	return &KafkaSink{client: client}
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	key := event.SubjectID
	if key == "" {
		key = event.ActorID
	}
	return s.client.Produce(ctx, []byte(key), payload)
}
