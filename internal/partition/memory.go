package partition

import (
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// Document is one unit of indexing: a unique key and its field values.
type Document struct {
	Key    string
	Fields map[string][]any
}

// Memory is the live partition. Document IDs are assigned from 1 in
// arrival order. It is not safe for concurrent use; the Engine serialises
// access.
type Memory struct {
	fields  field.Lookup
	bundles map[int32]*field.Bundle
	keys    map[string]uint32
	deleted *roaring.Bitmap
	maxDoc  uint32
	size    int64
}

func NewMemory(fields field.Lookup) *Memory {
	return &Memory{
		fields:  fields,
		bundles: make(map[int32]*field.Bundle),
		keys:    make(map[string]uint32),
		deleted: roaring.New(),
	}
}

// Add indexes doc and returns its document ID. A key already live in the
// partition fails with ErrDuplicateKey. A document that fails part way is
// marked deleted so its partial postings are dropped at dump.
func (m *Memory) Add(doc Document) (uint32, error) {
	if doc.Key == "" {
		return 0, lxerrors.New(lxerrors.ErrInvalidInput, "add document", "empty key")
	}
	if _, ok := m.keys[doc.Key]; ok {
		return 0, lxerrors.New(lxerrors.ErrDuplicateKey, "add document", doc.Key)
	}
	names := make([]string, 0, len(doc.Fields))
	for name := range doc.Fields {
		if _, ok := m.fields.Field(name); !ok {
			return 0, lxerrors.Newf(lxerrors.ErrInvalidInput, "add document", "%s: unknown field %s", doc.Key, name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	id := m.maxDoc + 1
	m.maxDoc = id
	m.keys[doc.Key] = id
	m.size += int64(len(doc.Key)) + 64
	for _, name := range names {
		info, _ := m.fields.Field(name)
		b, ok := m.bundles[info.ID]
		if !ok {
			b = field.NewBundle(info)
			m.bundles[info.ID] = b
		}
		values := doc.Fields[name]
		if err := b.Add(id, doc.Key, values...); err != nil {
			m.deleted.Add(id)
			delete(m.keys, doc.Key)
			return 0, err
		}
		for _, v := range values {
			m.size += valueSize(v)
		}
	}
	return id, nil
}

func valueSize(v any) int64 {
	if s, ok := v.(string); ok {
		// Postings, positions and dictionary overhead per byte of text.
		return int64(len(s))*8 + 32
	}
	return 32
}

// Delete marks the document with key deleted. It reports whether the key
// was live.
func (m *Memory) Delete(key string) bool {
	id, ok := m.keys[key]
	if !ok {
		return false
	}
	delete(m.keys, key)
	m.deleted.Add(id)
	return true
}

// DocID returns the live document ID of key.
func (m *Memory) DocID(key string) (uint32, bool) {
	id, ok := m.keys[key]
	return id, ok
}

// Len is the number of live documents.
func (m *Memory) Len() int { return len(m.keys) }

// MaxDocID is the largest document ID assigned, deleted or not.
func (m *Memory) MaxDocID() uint32 { return m.maxDoc }

// Size estimates the memory held by the partition in bytes.
func (m *Memory) Size() int64 { return m.size }

// Bundle returns the live bundle of field id, or nil.
func (m *Memory) Bundle(id int32) *field.Bundle { return m.bundles[id] }

// DumpOptions controls Memory.Dump.
type DumpOptions struct {
	PageSize          int
	BufferInitialSize int
	Metrics           *metrics.Metrics
}

// Dump writes the partition through w and commits it. Deleted documents
// are compacted out, so the committed deletion bitmap is empty.
func (m *Memory) Dump(w *Writer, opts DumpOptions) (string, error) {
	start := time.Now()
	mtr := metrics.Or(opts.Metrics)
	path, err := m.dump(w, opts)
	if err != nil {
		w.Abort()
		mtr.DumpsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	mtr.DumpsTotal.WithLabelValues("success").Inc()
	mtr.DumpDuration.Observe(time.Since(start).Seconds())
	slog.Default().With("component", "partition").Info("partition dumped",
		"partition", Name(w.Seq()),
		"docs", m.Len(),
		"deleted", m.deleted.GetCardinality(),
		"fields", len(m.bundles),
		"duration", time.Since(start),
	)
	return path, nil
}

func (m *Memory) dump(w *Writer, opts DumpOptions) (string, error) {
	docMap := postings.Compacting(m.maxDoc, m.deleted)
	maxDoc := m.maxDoc
	if docMap != nil {
		maxDoc = uint32(docMap.Live())
	}
	ids := make([]int32, 0, len(m.bundles))
	for id := range m.bundles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	if err := w.Begin(maxDoc, len(ids)); err != nil {
		return "", err
	}

	keys := dictionary.New[string](entry.KindDocKey)
	for key, id := range m.keys {
		keys.PutID(key, id).Add(postings.Occurrence{ID: id})
	}
	res, err := keys.Prepare(dictionary.DumpOptions{
		Renumber:    dictionary.RenumberMapped,
		EntryMap:    docMap,
		PostingsMap: docMap,
	})
	if err != nil {
		return "", err
	}
	if err := res.Write(w.Dict(), w.Outs(), dictionary.Strings{}, opts.PageSize); err != nil {
		return "", fmt.Errorf("writing document keys: %w", err)
	}
	w.SetDocKeys(res.Base, res.Patches)

	for _, id := range ids {
		off := w.Dict().Offset()
		_, patches, err := m.bundles[id].Dump(w.Dict(), w.Outs(), field.DumpOptions{
			DocMap: docMap,
			WriterOptions: field.WriterOptions{
				MaxDocID:          maxDoc,
				PageSize:          opts.PageSize,
				BufferInitialSize: opts.BufferInitialSize,
				Metrics:           opts.Metrics,
			},
		})
		if err != nil {
			return "", err
		}
		if err := w.AddField(id, off, patches); err != nil {
			return "", err
		}
	}
	return w.Commit(nil)
}
