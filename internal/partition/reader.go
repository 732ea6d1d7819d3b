package partition

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// PostingsKey addresses one postings range of a partition.
type PostingsKey struct {
	Partition string
	Channel   int
	Offset    int64
	Size      int64
}

func (k PostingsKey) String() string {
	return k.Partition + "/" + strconv.Itoa(k.Channel) + "/" + strconv.FormatInt(k.Offset, 10) + "/" + strconv.FormatInt(k.Size, 10)
}

// PostingsCache holds raw postings ranges shared across lookups. Load
// returns the cached bytes for key or calls load to fill them.
type PostingsCache interface {
	Load(key PostingsKey, load func() ([]byte, error)) ([]byte, error)
}

// OpenOptions are the shared resources a Partition reads through.
type OpenOptions struct {
	PageCache     *dictionary.PageCache
	PostingsCache PostingsCache
	Metrics       *metrics.Metrics
}

// Partition is a committed, read-only partition. Only its deletion bitmap
// changes after Open. It is safe for concurrent use.
type Partition struct {
	dir     string
	seq     uint64
	hdr     header
	dict    *buffer.FileChannel
	posts   [2]*buffer.FileChannel
	cache   PostingsCache
	metrics *metrics.Metrics

	fields  map[int32]*field.DiskBundle
	byName  map[string]*field.DiskBundle
	docKeys *dictionary.Disk[string]

	mu      sync.RWMutex
	deleted *roaring.Bitmap
}

// Open maps the committed partition in dir. Every field section must be
// known to fields.
func Open(dir string, fields field.Lookup, opts OpenOptions) (*Partition, error) {
	seq, ok := ParseName(filepath.Base(dir))
	if !ok {
		return nil, lxerrors.Newf(lxerrors.ErrInvalidInput, "open partition", "%s is not a partition directory", dir)
	}
	p := &Partition{
		dir:     dir,
		seq:     seq,
		cache:   opts.PostingsCache,
		metrics: metrics.Or(opts.Metrics),
		fields:  make(map[int32]*field.DiskBundle),
		byName:  make(map[string]*field.DiskBundle),
	}
	var err error
	if p.dict, err = buffer.OpenFile(filepath.Join(dir, DictFile)); err != nil {
		return nil, err
	}
	for ch := range p.posts {
		if p.posts[ch], err = buffer.OpenFile(filepath.Join(dir, PostingsFile(ch))); err != nil {
			p.Close()
			return nil, err
		}
	}
	if p.hdr, err = readHeader(p.dict); err != nil {
		p.Close()
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	if p.deleted, err = readBitmap(filepath.Join(dir, DeletedFile)); err != nil {
		p.Close()
		return nil, err
	}
	if p.hdr.docKeys >= 0 {
		if p.docKeys, err = dictionary.Open[string](p.dict, p.hdr.docKeys, dictionary.Strings{}, p, opts.PageCache); err != nil {
			p.Close()
			return nil, err
		}
	}

	infos := make([]field.Info, len(p.hdr.fields))
	for i, ref := range p.hdr.fields {
		info, ok := fields.FieldByID(ref.id)
		if !ok {
			p.Close()
			return nil, lxerrors.Newf(lxerrors.ErrSchemaMismatch, "open partition", "%s: unknown field %d", dir, ref.id)
		}
		infos[i] = info
	}
	bundles := make([]*field.DiskBundle, len(infos))
	var g errgroup.Group
	for i, ref := range p.hdr.fields {
		g.Go(func() error {
			b, err := field.OpenBundle(infos[i], p.dict, ref.offset, p, opts.PageCache)
			if err != nil {
				return fmt.Errorf("opening field %s: %w", infos[i].Name, err)
			}
			bundles[i] = b
			return nil
		})
	}
	err = g.Wait()
	for _, b := range bundles {
		if b != nil {
			p.fields[b.Info().ID] = b
			p.byName[b.Info().Name] = b
		}
	}
	if err != nil {
		p.Close()
		return nil, err
	}
	slog.Default().With("component", "partition").Debug("partition opened",
		"partition", Name(seq),
		"max_doc_id", p.hdr.maxDocID,
		"fields", len(p.fields),
		"deleted", p.deleted.GetCardinality(),
	)
	return p, nil
}

func (p *Partition) Seq() uint64 { return p.seq }

func (p *Partition) Dir() string { return p.dir }

// MaxDocID is the largest document ID in the partition.
func (p *Partition) MaxDocID() uint32 { return p.hdr.maxDocID }

// ReadPostings serves entry postings from the partition's channels,
// through the postings cache when one is configured.
func (p *Partition) ReadPostings(channel int, offset, size int64) (buffer.ReadBuffer, error) {
	if channel < 0 || channel >= len(p.posts) {
		return buffer.ReadBuffer{}, lxerrors.Newf(lxerrors.ErrCorrupt, "read postings", "channel %d", channel)
	}
	if p.cache == nil {
		b, err := buffer.Read(p.posts[channel], offset, int(size))
		if err != nil {
			p.metrics.PostingsReadErrors.Inc()
		}
		return b, err
	}
	key := PostingsKey{Partition: p.dir, Channel: channel, Offset: offset, Size: size}
	data, err := p.cache.Load(key, func() ([]byte, error) {
		b, err := buffer.Read(p.posts[channel], offset, int(size))
		if err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	})
	if err != nil {
		p.metrics.PostingsReadErrors.Inc()
		return buffer.ReadBuffer{}, err
	}
	return buffer.NewReadBuffer(data), nil
}

// Field returns the bundle of the named field, or nil when the partition
// holds no data for it.
func (p *Partition) Field(name string) *field.DiskBundle { return p.byName[name] }

// FieldByID returns the bundle of field id, or nil.
func (p *Partition) FieldByID(id int32) *field.DiskBundle { return p.fields[id] }

// FieldIDs lists the fields present, in header order.
func (p *Partition) FieldIDs() []int32 {
	ids := make([]int32, len(p.hdr.fields))
	for i, ref := range p.hdr.fields {
		ids[i] = ref.id
	}
	return ids
}

// DocKeys is the document key dictionary, or nil for an empty partition.
func (p *Partition) DocKeys() *dictionary.Disk[string] { return p.docKeys }

// DocID returns the live document ID of key.
func (p *Partition) DocID(key string) (uint32, bool, error) {
	if p.docKeys == nil {
		return 0, false, nil
	}
	e, err := p.docKeys.Get(key)
	if err != nil || e == nil {
		return 0, false, err
	}
	if p.IsDeleted(e.ID) {
		return 0, false, nil
	}
	return e.ID, true, nil
}

// Key returns the key of document doc.
func (p *Partition) Key(doc uint32) (string, bool, error) {
	if p.docKeys == nil {
		return "", false, nil
	}
	e, err := p.docKeys.GetByID(doc)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.Name, true, nil
}

// Deleted returns a copy of the deletion bitmap.
func (p *Partition) Deleted() *roaring.Bitmap {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deleted.Clone()
}

func (p *Partition) IsDeleted(doc uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deleted.Contains(doc)
}

// Live is the number of documents not deleted.
func (p *Partition) Live() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return int(uint64(p.hdr.maxDocID) - p.deleted.GetCardinality())
}

// Delete marks doc deleted and persists the bitmap. It reports whether the
// document was live.
func (p *Partition) Delete(doc uint32) (bool, error) {
	if doc == 0 || doc > p.hdr.maxDocID {
		return false, lxerrors.Newf(lxerrors.ErrInvalidInput, "delete", "document %d outside 1..%d", doc, p.hdr.maxDocID)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.deleted.CheckedAdd(doc) {
		return false, nil
	}
	if err := writeBitmap(filepath.Join(p.dir, DeletedFile), p.deleted); err != nil {
		p.deleted.Remove(doc)
		return false, err
	}
	return true, nil
}

// Close releases the files and cached pages of the partition.
func (p *Partition) Close() error {
	for _, b := range p.fields {
		b.Close()
	}
	if p.docKeys != nil {
		p.docKeys.Close()
	}
	var first error
	for _, c := range []*buffer.FileChannel{p.dict, p.posts[0], p.posts[1]} {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = lxerrors.IO("closing partition", err)
		}
	}
	return first
}
