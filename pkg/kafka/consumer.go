// Package kafka wraps segmentio/kafka-go for the indexer: a consumer that
// feeds ingest messages to a handler and commits each one only after the
// handler accepted it, and a producer for partition events.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/resilience"
	"github.com/segmentio/kafka-go"
)

// MessageHandler is called for each Kafka message. A non-nil error means
// the message could not be applied yet and must be redelivered.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads a topic in order and commits a message once its handler
// returns nil. A failing message is retried in place; committing past it
// would acknowledge it along with the messages that follow.
type Consumer struct {
	reader  fetcher
	logger  *slog.Logger
	handler MessageHandler
	backoff resilience.Backoff
}

// NewConsumer creates a Consumer in cfg's consumer group. A group without
// committed offsets starts from the oldest message.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1e3,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r fetcher, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		backoff: resilience.DefaultBackoff,
	}
}

// Start consumes until ctx is cancelled. The message being handled at
// cancellation is left uncommitted.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"key", string(msg.Key),
			"value_size", len(msg.Value),
		)
		if err := c.process(ctx, msg); err != nil {
			c.logger.Info("consumer stopping", "reason", err, "offset", msg.Offset)
			return nil
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// process runs the handler until it succeeds or ctx is done.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	for {
		err := c.backoff.Retry(ctx, "handle message", nil, func(ctx context.Context) error {
			return c.handler(ctx, msg.Key, msg.Value)
		})
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Error("message still failing, retrying",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}

// Ping dials the configured brokers and succeeds when any one answers.
func Ping(ctx context.Context, cfg config.KafkaConfig) error {
	var dialer kafka.Dialer
	err := fmt.Errorf("no kafka brokers configured")
	for _, broker := range cfg.Brokers {
		conn, dialErr := dialer.DialContext(ctx, "tcp", broker)
		if dialErr == nil {
			return conn.Close()
		}
		err = fmt.Errorf("dialing %s: %w", broker, dialErr)
	}
	return err
}
