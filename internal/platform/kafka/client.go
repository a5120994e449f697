package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Client wraps a franz-go producer used by the audit pipeline.
// Returns nil if no brokers are configured (Kafka not wired).
type Client struct {
	kgo   *kgo.Client
	topic string
}

// New connects to the given brokers and ensures the audit topic exists.
func New(ctx context.Context, brokers []string, topic string) (*Client, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := cl.Ping(ctx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	adm := kadm.NewClient(cl)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		cl.Close()
		return nil, fmt.Errorf("ensure topic %s: %w", topic, err)
	}
	for _, res := range resp {
		if res.Err != nil && !errors.Is(res.Err, kerr.TopicAlreadyExists) {
			cl.Close()
			return nil, fmt.Errorf("ensure topic %s: %w", res.Topic, res.Err)
		}
	}

	return &Client{kgo: cl, topic: topic}, nil
}

// Produce synchronously publishes one record and returns the first error.
func (c *Client) Produce(ctx context.Context, key, value []byte) error {
	record := &kgo.Record{Topic: c.topic, Key: key, Value: value}
	if err := c.kgo.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce to %s: %w", c.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (c *Client) Close() {
	c.kgo.Close()
}
