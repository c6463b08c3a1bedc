package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"medtrace/internal/platform/config"
)

// Producer wraps a franz-go client scoped to one topic.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer connects to the brokers and makes sure the topic exists.
// Returns nil if no brokers are configured (streaming disabled).
func NewProducer(ctx context.Context, cfg config.KafkaConfig) (*Producer, error) {
	if len(cfg.SeedBrokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.SeedBrokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, cfg.Topic); err != nil {
		client.Close()
		return nil, err
	}

	return &Producer{client: client, topic: cfg.Topic}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	_, err := adm.CreateTopic(ctx, 3, 1, nil, topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

// Produce sends one record asynchronously; done is invoked with the produce
// outcome from the client's internal goroutine.
func (p *Producer) Produce(ctx context.Context, key, value []byte, done func(error)) {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if done != nil {
			done(err)
		}
	})
}

// Close flushes buffered records and releases the client.
func (p *Producer) Close() {
	p.client.Close()
}
