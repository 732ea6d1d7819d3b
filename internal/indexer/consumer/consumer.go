// Package consumer reads ingest events from Kafka and applies them to the
// partition engine, and publishes partition lifecycle events back to Kafka.
package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/kafka"
)

const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// IngestEvent is the Kafka message payload of the ingest topic. Each field
// value is a scalar or an array of scalars. Date fields accept RFC 3339
// strings or epoch milliseconds.
type IngestEvent struct {
	Op     string                     `json:"op"`
	Key    string                     `json:"key"`
	Fields map[string]json.RawMessage `json:"fields"`
}

// Indexer is the part of the engine the consumer drives.
type Indexer interface {
	Index(doc partition.Document) (uint32, error)
	Delete(key string) (bool, error)
	Fields() field.Lookup
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler applying each ingest event
// to idx. Malformed events and documents the engine rejects are logged and
// acknowledged; other failures leave the message uncommitted.
func HandleMessage(idx Indexer) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[IngestEvent](value)
		if err != nil {
			logger.Error("failed to decode ingest event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		if event.Key == "" {
			event.Key = string(key)
		}
		err = Apply(idx, event)
		switch {
		case err == nil:
		case errors.Is(err, lxerrors.ErrInvalidInput), errors.Is(err, lxerrors.ErrDuplicateKey):
			logger.Warn("ingest event rejected",
				"doc_key", event.Key,
				"op", event.Op,
				"error", err,
			)
			return nil
		default:
			return fmt.Errorf("applying %s for %s: %w", event.Op, event.Key, err)
		}
		logger.Debug("ingest event applied",
			"doc_key", event.Key,
			"op", event.Op,
		)
		return nil
	}
}

// Apply indexes or deletes the document of event.
func Apply(idx Indexer, event IngestEvent) error {
	switch event.Op {
	case OpDelete:
		_, err := idx.Delete(event.Key)
		return err
	case OpIndex, "":
		doc, err := Decode(idx.Fields(), event)
		if err != nil {
			return err
		}
		_, err = idx.Index(doc)
		return err
	default:
		return lxerrors.New(lxerrors.ErrInvalidInput, "apply ingest event", "unknown op "+event.Op)
	}
}

// Decode converts the JSON field values of event into the Go values the
// field types expect.
func Decode(fields field.Lookup, event IngestEvent) (partition.Document, error) {
	doc := partition.Document{Key: event.Key, Fields: make(map[string][]any, len(event.Fields))}
	for name, raw := range event.Fields {
		info, ok := fields.Field(name)
		if !ok {
			return partition.Document{}, lxerrors.New(lxerrors.ErrInvalidInput, "decode document", "unknown field "+name)
		}
		raws, err := splitValues(raw)
		if err != nil {
			return partition.Document{}, lxerrors.Newf(lxerrors.ErrInvalidInput, "decode document", "%s: %v", name, err)
		}
		values := make([]any, 0, len(raws))
		for _, r := range raws {
			v, err := decodeValue(info.Type, r)
			if err != nil {
				return partition.Document{}, lxerrors.Newf(lxerrors.ErrInvalidInput, "decode document", "%s: %v", name, err)
			}
			values = append(values, v)
		}
		doc.Fields[name] = values
	}
	return doc, nil
}

func splitValues(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return []json.RawMessage{raw}, nil
	}
	var out []json.RawMessage
	err := json.Unmarshal(raw, &out)
	return out, err
}

func decodeValue(typ field.ValueType, raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch typ {
	case field.TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case field.TypeInt:
		if n, ok := v.(json.Number); ok {
			return n.Int64()
		}
	case field.TypeFloat:
		if n, ok := v.(json.Number); ok {
			return n.Float64()
		}
	case field.TypeDate:
		switch t := v.(type) {
		case string:
			return time.Parse(time.RFC3339, t)
		case json.Number:
			return t.Int64()
		}
	}
	return nil, fmt.Errorf("%s value expected, got %s", typ, raw)
}
