package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/resilience"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	closed    bool
	drained   func()
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.msgs) == 0 {
		f.drained()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

func TestConsumerRetriesBeforeCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		msgs:    []kafka.Message{{Offset: 0, Value: []byte("a")}, {Offset: 1, Value: []byte("b")}},
		drained: cancel,
	}
	var handled []string
	failures := 3
	c := newConsumer(r, "ingest", func(_ context.Context, _, value []byte) error {
		handled = append(handled, string(value))
		if string(value) == "a" && failures > 0 {
			failures--
			return errors.New("engine busy")
		}
		return nil
	})
	c.backoff = resilience.Backoff{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	require.NoError(t, c.Start(ctx))
	assert.Equal(t, []string{"a", "a", "a", "a", "b"}, handled)
	assert.Equal(t, []int64{0, 1}, r.committed)
	assert.True(t, r.closed)
}

func TestConsumerLeavesFailingMessageOnShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &fakeReader{
		msgs:    []kafka.Message{{Offset: 7, Value: []byte("x")}},
		drained: cancel,
	}
	calls := 0
	c := newConsumer(r, "ingest", func(context.Context, []byte, []byte) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("closed")
	})
	c.backoff = resilience.Backoff{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	require.NoError(t, c.Start(ctx))
	assert.Empty(t, r.committed)
	assert.True(t, r.closed)
}

func TestDecodeJSON(t *testing.T) {
	type event struct {
		Key string `json:"key"`
	}
	ev, err := DecodeJSON[event]([]byte(`{"key":"k"}`))
	require.NoError(t, err)
	assert.Equal(t, "k", ev.Key)

	_, err = DecodeJSON[event]([]byte(`{`))
	assert.Error(t, err)
}
