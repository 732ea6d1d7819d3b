// Package merge combines committed partitions into one. Every dictionary
// is merged by name across the sources, postings are appended with each
// source's document ID shift and compacting map, and the term statistics,
// bigrams, dtv and vector length tables of the result are rebuilt from the
// merged postings.
package merge

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/field"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// Options controls a merge.
type Options struct {
	// AllowDuplicateKeys keeps the document from the latest source when a
	// key is live in more than one source; the older documents are dropped
	// like deleted ones. Otherwise the merge fails with ErrDuplicateKey.
	AllowDuplicateKeys bool
	PageSize           int
	BufferInitialSize  int
	// Parallelism bounds how many fields are merged at once.
	Parallelism int
	Metrics     *metrics.Metrics
}

// Result describes a committed merge.
type Result struct {
	Path     string
	MaxDocID uint32
	// Snapshots are the deletion bitmaps read from each source.
	Snapshots []*roaring.Bitmap
}

// plan is how one source's document IDs land in the merged partition.
type plan struct {
	src    *partition.Partition
	docMap postings.IDMap
	start  uint32
	live   uint32
}

func (p *plan) docID(old uint32) uint32 {
	id := p.docMap.Map(old)
	if id == postings.Deleted {
		return postings.Deleted
	}
	return id + p.start
}

type merger struct {
	opts   Options
	plans  []*plan
	logger *slog.Logger
}

// Merge writes the merge of sources through w and commits it. Sources are
// only read. On error w is aborted.
func Merge(ctx context.Context, sources []*partition.Partition, fields field.Lookup, w *partition.Writer, opts Options) (*Result, error) {
	start := time.Now()
	mtr := metrics.Or(opts.Metrics)
	res, err := merge(ctx, sources, fields, w, opts)
	if err != nil {
		w.Abort()
		mtr.MergesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	mtr.MergesTotal.WithLabelValues("success").Inc()
	mtr.MergeDuration.Observe(time.Since(start).Seconds())
	return res, nil
}

func merge(ctx context.Context, sources []*partition.Partition, fields field.Lookup, w *partition.Writer, opts Options) (*Result, error) {
	if len(sources) == 0 {
		return nil, lxerrors.New(lxerrors.ErrInvalidInput, "merge", "no sources")
	}
	m := &merger{
		opts:   opts,
		logger: slog.Default().With("component", "merger", "partition", partition.Name(w.Seq())),
	}
	res := &Result{Snapshots: make([]*roaring.Bitmap, len(sources))}
	for i, src := range sources {
		res.Snapshots[i] = src.Deleted()
	}
	dropped := res.Snapshots
	if opts.AllowDuplicateKeys {
		var err error
		if dropped, err = m.superseded(ctx, sources, res.Snapshots); err != nil {
			return nil, err
		}
	}
	var next uint32
	for i, src := range sources {
		p := &plan{src: src, docMap: postings.Compacting(src.MaxDocID(), dropped[i]), start: next}
		p.live = src.MaxDocID()
		if p.docMap != nil {
			p.live = uint32(p.docMap.Live())
		}
		next += p.live
		m.plans = append(m.plans, p)
	}
	res.MaxDocID = next

	ids, err := m.fieldIDs(fields)
	if err != nil {
		return nil, err
	}
	if err := w.Begin(res.MaxDocID, len(ids)); err != nil {
		return nil, err
	}

	keys, err := m.docKeys(ctx)
	if err != nil {
		return nil, err
	}
	kr := dictionary.NewResult(entry.KindDocKey, keys)
	if err := kr.Write(w.Dict(), w.Outs(), dictionary.Strings{}, opts.PageSize); err != nil {
		return nil, fmt.Errorf("writing document keys: %w", err)
	}
	w.SetDocKeys(kr.Base, kr.Patches)

	merged := make([]*fieldMerge, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Parallelism, 1))
	for i, id := range ids {
		info, _ := fields.FieldByID(id)
		g.Go(func() error {
			fm, err := m.mergeField(gctx, info)
			if err != nil {
				return fmt.Errorf("merging field %s: %w", info.Name, err)
			}
			merged[i] = fm
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, fm := range merged {
		off := w.Dict().Offset()
		patches, err := fm.write(w, field.WriterOptions{
			MaxDocID:          res.MaxDocID,
			PageSize:          opts.PageSize,
			BufferInitialSize: opts.BufferInitialSize,
			Metrics:           opts.Metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("writing field %s: %w", fm.info.Name, err)
		}
		if err := w.AddField(fm.info.ID, off, patches); err != nil {
			return nil, err
		}
	}
	if res.Path, err = w.Commit(nil); err != nil {
		return nil, err
	}
	m.logger.Info("partitions merged",
		"sources", len(sources),
		"max_doc_id", res.MaxDocID,
		"fields", len(ids),
		"keys", len(keys),
	)
	return res, nil
}

// fieldIDs is the sorted union of the sources' fields.
func (m *merger) fieldIDs(fields field.Lookup) ([]int32, error) {
	var ids []int32
	for _, p := range m.plans {
		for _, id := range p.src.FieldIDs() {
			if _, ok := fields.FieldByID(id); !ok {
				return nil, lxerrors.Newf(lxerrors.ErrSchemaMismatch, "merge", "unknown field %d", id)
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// superseded returns each source's deletions plus the documents whose key
// is live again in a later source. Sources are in commit order.
func (m *merger) superseded(ctx context.Context, sources []*partition.Partition, deleted []*roaring.Bitmap) ([]*roaring.Bitmap, error) {
	out := make([]*roaring.Bitmap, len(sources))
	dicts := make([]*dictionary.Disk[string], len(sources))
	for i, src := range sources {
		out[i] = deleted[i].Clone()
		dicts[i] = src.DocKeys()
	}
	_, err := mergeNames(ctx, dicts, func(name string, group []member[string]) (*entry.Entry[string], error) {
		last := -1
		for i, mb := range group {
			if deleted[mb.src].Contains(mb.e.ID) {
				continue
			}
			if last >= 0 {
				old := group[last]
				out[old.src].Add(old.e.ID)
				m.logger.Warn("duplicate key, keeping latest",
					"key", name,
					"superseded", partition.Name(sources[old.src].Seq()),
				)
			}
			last = i
		}
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolving duplicate keys: %w", err)
	}
	return out, nil
}

// unique merges an entry whose name may be live in only one source, such
// as a document key or a vector. id gives the merged entry ID of a
// member, Deleted to drop it; appendMember adds the member's postings.
func (m *merger) unique(name string, kind entry.Kind, group []member[string], id func(member[string]) uint32, appendMember func(dst *entry.Entry[string], mb member[string]) error) (*entry.Entry[string], error) {
	var out *entry.Entry[string]
	for _, mb := range group {
		nid := id(mb)
		if nid == postings.Deleted {
			continue
		}
		if out != nil {
			return nil, lxerrors.New(lxerrors.ErrDuplicateKey, "merge", name)
		}
		out = entry.New(kind, name, nid)
		if err := appendMember(out, mb); err != nil {
			return nil, err
		}
	}
	if out == nil || out.Empty() {
		return nil, nil
	}
	return out, nil
}

func (m *merger) docKeys(ctx context.Context) ([]*entry.Entry[string], error) {
	dicts := make([]*dictionary.Disk[string], len(m.plans))
	for i, p := range m.plans {
		dicts[i] = p.src.DocKeys()
	}
	return mergeNames(ctx, dicts, func(name string, group []member[string]) (*entry.Entry[string], error) {
		return m.unique(name, entry.KindDocKey, group,
			func(mb member[string]) uint32 { return m.plans[mb.src].docID(mb.e.ID) },
			func(dst *entry.Entry[string], mb member[string]) error {
				p := m.plans[mb.src]
				return dst.Append(mb.e, p.start, p.docMap)
			})
	})
}

// fieldMerge holds the merged dictionaries of one field until it is
// written.
type fieldMerge struct {
	info    field.Info
	strings [field.NumDictKinds][]*entry.Entry[string]
	ints    []*entry.Entry[int64]
	floats  []*entry.Entry[float64]
}

func (m *merger) mergeField(ctx context.Context, info field.Info) (*fieldMerge, error) {
	fm := &fieldMerge{info: info}
	bundles := make([]*field.DiskBundle, len(m.plans))
	for i, p := range m.plans {
		bundles[i] = p.src.FieldByID(info.ID)
	}
	// termMaps[k][src] renumbers source term IDs of token dictionary k.
	var termMaps [field.NumDictKinds][]postings.IDMap
	for k := field.DictKind(0); k < field.NumDictKinds; k++ {
		if !info.Enables(k) {
			continue
		}
		var err error
		switch {
		case k == field.DictVector || k == field.DictStemmedVector:
			fm.strings[k], err = m.mergeVectors(ctx, info, k, bundles, termMaps[field.VectorFeatures(info, k)])
		case k == field.DictSaved && (info.Type == field.TypeInt || info.Type == field.TypeDate):
			fm.ints, err = mergeSorted(ctx, m.plans, info.EntryKind(k), dictsOf(bundles, (*field.DiskBundle).Ints), nil)
		case k == field.DictSaved && info.Type == field.TypeFloat:
			fm.floats, err = mergeSorted(ctx, m.plans, info.EntryKind(k), dictsOf(bundles, (*field.DiskBundle).Floats), nil)
		default:
			dicts := dictsOf(bundles, func(b *field.DiskBundle) *dictionary.Disk[string] { return b.Dict(k) })
			if k.Token() {
				termMaps[k] = make([]postings.IDMap, len(dicts))
				for i, d := range dicts {
					if d != nil {
						termMaps[k][i] = make(postings.IDMap, int(d.MaxID())+1)
					}
				}
			}
			fm.strings[k], err = mergeSorted(ctx, m.plans, info.EntryKind(k), dicts, termMaps[k])
		}
		if err != nil {
			return nil, fmt.Errorf("%s dictionary: %w", k, err)
		}
	}
	return fm, nil
}

func dictsOf[N cmp.Ordered](bundles []*field.DiskBundle, get func(*field.DiskBundle) *dictionary.Disk[N]) []*dictionary.Disk[N] {
	out := make([]*dictionary.Disk[N], len(bundles))
	for i, b := range bundles {
		if b != nil {
			out[i] = get(b)
		}
	}
	return out
}

// mergeSorted merges dictionaries whose postings hold document IDs and
// numbers the result 1..n in name order. When termMaps is set, each
// source's old entry ID is recorded against its new one.
func mergeSorted[N cmp.Ordered](ctx context.Context, plans []*plan, kind entry.Kind, dicts []*dictionary.Disk[N], termMaps []postings.IDMap) ([]*entry.Entry[N], error) {
	var next uint32
	return mergeNames(ctx, dicts, func(name N, group []member[N]) (*entry.Entry[N], error) {
		out := entry.New(kind, name, 0)
		for _, mb := range group {
			p := plans[mb.src]
			if err := out.Append(mb.e, p.start, p.docMap); err != nil {
				return nil, err
			}
		}
		if out.Empty() {
			return nil, nil
		}
		next++
		out.ID = next
		if termMaps != nil {
			for _, mb := range group {
				termMaps[mb.src][mb.e.ID] = next
			}
		}
		return out, nil
	})
}

// mergeVectors merges vector dictionaries: names are document keys, entry
// IDs are document IDs and postings IDs are term IDs of the feature
// dictionary, renumbered through features.
func (m *merger) mergeVectors(ctx context.Context, info field.Info, k field.DictKind, bundles []*field.DiskBundle, features []postings.IDMap) ([]*entry.Entry[string], error) {
	if features == nil {
		return nil, lxerrors.Newf(lxerrors.ErrAbsent, "merge vectors", "%s: %s has no feature dictionary", info.Name, k)
	}
	dicts := dictsOf(bundles, func(b *field.DiskBundle) *dictionary.Disk[string] { return b.Dict(k) })
	return mergeNames(ctx, dicts, func(name string, group []member[string]) (*entry.Entry[string], error) {
		return m.unique(name, info.EntryKind(k), group,
			func(mb member[string]) uint32 { return m.plans[mb.src].docID(mb.e.ID) },
			func(dst *entry.Entry[string], mb member[string]) error {
				return dst.Append(mb.e, 0, features[mb.src])
			})
	})
}

func (fm *fieldMerge) write(w *partition.Writer, opts field.WriterOptions) ([]buffer.Patch, error) {
	fw, err := field.NewWriter(fm.info, w.Dict(), w.Outs(), opts)
	if err != nil {
		return nil, err
	}
	for k := field.DictKind(0); k < field.NumDictKinds; k++ {
		if !fm.info.Enables(k) {
			continue
		}
		kind := fm.info.EntryKind(k)
		switch {
		case k == field.DictSaved && fm.info.Type == field.TypeInt:
			err = field.WriteDict(fw, k, dictionary.NewResult(kind, fm.ints), dictionary.Ints{})
		case k == field.DictSaved && fm.info.Type == field.TypeDate:
			err = field.WriteDict(fw, k, dictionary.NewResult(kind, fm.ints), dictionary.Dates{})
		case k == field.DictSaved && fm.info.Type == field.TypeFloat:
			err = field.WriteDict(fw, k, dictionary.NewResult(kind, fm.floats), dictionary.Floats{})
		default:
			err = field.WriteDict(fw, k, dictionary.NewResult(kind, fm.strings[k]), dictionary.Strings{})
		}
		if err != nil {
			return nil, err
		}
	}
	_, patches, err := fw.Finish()
	return patches, err
}
