package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/resilience"
)

type fakeIndexer struct {
	fields  *field.Registry
	indexed []partition.Document
	deleted []string
	err     error
}

func (f *fakeIndexer) Index(doc partition.Document) (uint32, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.indexed = append(f.indexed, doc)
	return uint32(len(f.indexed)), nil
}

func (f *fakeIndexer) Delete(key string) (bool, error) {
	f.deleted = append(f.deleted, key)
	return true, nil
}

func (f *fakeIndexer) Fields() field.Lookup { return f.fields }

func newFake(t *testing.T) *fakeIndexer {
	t.Helper()
	r := field.NewRegistry()
	require.NoError(t, field.Configure(context.Background(), r, []config.FieldConfig{
		{Name: "body", Attrs: "uncased"},
		{Name: "year", Type: "int", Attrs: "saved"},
		{Name: "score", Type: "float", Attrs: "saved"},
		{Name: "published", Type: "date", Attrs: "saved"},
	}))
	return &fakeIndexer{fields: r}
}

func TestDecode(t *testing.T) {
	f := newFake(t)
	var ev IngestEvent
	require.NoError(t, json.Unmarshal([]byte(`{
		"key": "doc-1",
		"fields": {
			"body": ["hello", "world"],
			"year": 2024,
			"score": [1.5, 2],
			"published": ["2024-03-01T00:00:00Z", 1700000000000]
		}
	}`), &ev))

	doc, err := Decode(f.fields, ev)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.Key)
	assert.Equal(t, []any{"hello", "world"}, doc.Fields["body"])
	assert.Equal(t, []any{int64(2024)}, doc.Fields["year"])
	assert.Equal(t, []any{1.5, 2.0}, doc.Fields["score"])
	require.Len(t, doc.Fields["published"], 2)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc.Fields["published"][0])
	assert.Equal(t, int64(1700000000000), doc.Fields["published"][1])
}

func TestDecodeRejects(t *testing.T) {
	f := newFake(t)
	tests := []struct {
		name   string
		fields string
	}{
		{"unknown field", `{"nope": "x"}`},
		{"string for int", `{"year": "2024"}`},
		{"number for string", `{"body": 3}`},
		{"fractional int", `{"year": 1.5}`},
		{"bad date", `{"published": "yesterday"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := IngestEvent{Key: "k"}
			require.NoError(t, json.Unmarshal([]byte(tt.fields), &ev.Fields))
			_, err := Decode(f.fields, ev)
			assert.ErrorIs(t, err, lxerrors.ErrInvalidInput)
		})
	}
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	f := newFake(t)
	handle := HandleMessage(f)

	require.NoError(t, handle(ctx, []byte("a"), []byte(`{"fields": {"body": "text"}}`)))
	require.Len(t, f.indexed, 1)
	assert.Equal(t, "a", f.indexed[0].Key)

	require.NoError(t, handle(ctx, nil, []byte(`{"op": "delete", "key": "a"}`)))
	assert.Equal(t, []string{"a"}, f.deleted)

	assert.NoError(t, handle(ctx, nil, []byte(`not json`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"op": "upsert", "key": "a"}`)))
	assert.NoError(t, handle(ctx, nil, []byte(`{"key": "b", "fields": {"year": "x"}}`)))
	assert.Len(t, f.indexed, 1)

	f.err = lxerrors.ErrClosed
	err := handle(ctx, nil, []byte(`{"key": "c", "fields": {"body": "text"}}`))
	assert.ErrorIs(t, err, lxerrors.ErrClosed)
}

type recordingPublisher struct {
	events []kafka.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, ev kafka.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestNotifier(t *testing.T) {
	dir := t.TempDir()
	f := newFake(t)
	e, err := partition.NewEngine(config.IndexerConfig{DataDir: dir, MaxDocsPerPartition: 10, PageSize: 4}, f.fields, partition.EngineOptions{})
	require.NoError(t, err)
	defer e.Close()
	_, err = e.Index(partition.Document{Key: "a", Fields: map[string][]any{"body": {"x"}}})
	require.NoError(t, err)
	require.NoError(t, e.Flush(context.Background()))
	parts := e.Partitions()
	require.Len(t, parts, 1)

	pub := &recordingPublisher{}
	n := NewNotifier(pub)
	n.backoff = resilience.Backoff{MaxAttempts: 2, InitialDelay: time.Millisecond}
	n.Dumped(parts[0])
	n.Merged(parts[0], []uint64{7, 8})
	pub.err = errors.New("broker down")
	n.Dumped(parts[0])

	require.Len(t, pub.events, 4, "failed publish retried once")
	ev := pub.events[1].Value.(PartitionEvent)
	assert.Equal(t, EventMerged, ev.Type)
	assert.Equal(t, partition.Name(parts[0].Seq()), pub.events[1].Key)
	assert.Equal(t, []uint64{7, 8}, ev.Sources)
	assert.Equal(t, 1, ev.Live)
	assert.Equal(t, uint32(1), ev.MaxDocID)
}
