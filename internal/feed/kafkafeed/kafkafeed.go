// Package kafkafeed fans decoded Stream Client messages out onto a Kafka
// topic for downstream consumers, using twmb/franz-go the way the teacher's
// internal/shared/kafka/consumer.go uses it — inverted here from consumer
// to producer, since this module's decoded messages are the upstream
// source, not the downstream sink.
package kafkafeed

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config configures a Publisher.
type Config struct {
	Brokers []string
	Topic   string
	Logger  zerolog.Logger
}

// Publisher publishes messages to one Kafka topic, keyed so that all
// messages sharing a key land on the same partition (and so stay ordered
// relative to one another).
type Publisher struct {
	client *kgo.Client
	topic  string
	logger zerolog.Logger
}

// New dials the broker set and returns a ready Publisher.
func New(cfg Config) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafkafeed: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafkafeed: topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.ProducerBatchMaxBytes(1 << 20),
	)
	if err != nil {
		return nil, fmt.Errorf("kafkafeed: connect: %w", err)
	}
	return &Publisher{client: client, topic: cfg.Topic, logger: cfg.Logger}, nil
}

// Publish fans out a decoded message asynchronously; delivery failures are
// logged, not returned, since a feed stall must never back-pressure the
// Stream Client's read loop.
func (p *Publisher) Publish(key, value []byte) {
	record := &kgo.Record{Topic: p.topic, Key: key, Value: value}
	p.client.Produce(context.Background(), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.logger.Error().Err(err).Str("topic", p.topic).Msg("kafka publish failed")
		}
	})
}

// Flush blocks until every in-flight publish has been acknowledged or has
// failed, or ctx is done. Call before Close during an orderly shutdown.
func (p *Publisher) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close releases the underlying client's connections.
func (p *Publisher) Close() {
	p.client.Close()
}

// DefaultFlushTimeout is the flush budget cmd/ binaries use on shutdown.
const DefaultFlushTimeout = 5 * time.Second
