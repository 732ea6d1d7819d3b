package field

import (
	"cmp"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// WriterOptions controls how a field section is written.
type WriterOptions struct {
	// MaxDocID is the largest final document ID of the partition.
	MaxDocID          uint32
	PageSize          int
	BufferInitialSize int
	Metrics           *metrics.Metrics
}

// Writer assembles one field section: a reserved header, the dictionaries
// in DictKind order and then the bigram, dtv and vector length tables
// derived from them. The header is returned as a patch by Finish.
type Writer struct {
	info    Info
	dict    buffer.Output
	outs    []buffer.Output
	opts    WriterOptions
	metrics *metrics.Metrics
	logger  *slog.Logger

	hdrOff  int64
	hdr     Header
	patches []buffer.Patch
	written [NumDictKinds]bool

	tokenBigrams *dictionary.Bigrams
	savedBigrams *dictionary.Bigrams
	dtv          *dtvBuilder
	lengths      lengthTable
}

// NewWriter reserves the field header at the current end of dict.
func NewWriter(info Info, dict buffer.Output, outs []buffer.Output, opts WriterOptions) (*Writer, error) {
	off, err := ReserveHeader(dict, info.ID)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		info:    info,
		dict:    dict,
		outs:    outs,
		opts:    opts,
		metrics: metrics.Or(opts.Metrics),
		logger:  slog.Default().With("component", "field-writer", "field", info.Name),
		hdrOff:  off,
		hdr:     NewHeader(info.ID),
	}
	w.hdr.MaxDocID = opts.MaxDocID
	if _, ok := TokenBigramSource(info); ok {
		w.tokenBigrams = dictionary.NewBigrams()
	}
	if _, ok := SavedBigramSource(info); ok {
		w.savedBigrams = dictionary.NewBigrams()
	}
	if _, ok := DTVSource(info); ok {
		w.dtv = newDTVBuilder(opts.MaxDocID)
	}
	if _, ok := LengthSource(info); ok {
		w.lengths = newLengthTable(opts.MaxDocID)
	}
	return w, nil
}

// TokenBigramSource is the token dictionary whose names feed the token
// bigram dictionary.
func TokenBigramSource(info Info) (DictKind, bool) {
	for _, k := range []DictKind{DictUncased, DictCased, DictStemmed} {
		if info.Enables(k) {
			return k, true
		}
	}
	return 0, false
}

// SavedBigramSource is the saved dictionary whose names feed the saved
// value bigram dictionary. Only string values have bigrams.
func SavedBigramSource(info Info) (DictKind, bool) {
	if info.Enables(DictSavedUncased) {
		return DictSavedUncased, true
	}
	if info.Enables(DictSaved) && info.Type == TypeString {
		return DictSaved, true
	}
	return 0, false
}

// DTVSource is the saved dictionary whose value IDs the dtv records.
func DTVSource(info Info) (DictKind, bool) {
	for _, k := range []DictKind{DictSaved, DictSavedUncased} {
		if info.Enables(k) {
			return k, true
		}
	}
	return 0, false
}

// LengthSource is the vector dictionary whose lengths are tabulated.
func LengthSource(info Info) (DictKind, bool) {
	for _, k := range []DictKind{DictVector, DictStemmedVector} {
		if info.Enables(k) {
			return k, true
		}
	}
	return 0, false
}

// VectorFeatures is the token dictionary whose term IDs are the features
// of vectors of kind k.
func VectorFeatures(info Info, k DictKind) DictKind {
	if k == DictStemmedVector {
		return DictStemmed
	}
	if info.Enables(DictUncased) {
		return DictUncased
	}
	return DictCased
}

// WriteDict writes the prepared dictionary of kind k. Entries must carry
// their final IDs. Bigram, dtv and length data are taken from the entries
// before their postings are written and released.
func WriteDict[N cmp.Ordered](w *Writer, k DictKind, res *dictionary.DumpResult[N], codec dictionary.NameCodec[N]) error {
	if w.derives(k) {
		rows := make([]row, len(res.Entries))
		for i, e := range res.Entries {
			rows[i] = row{name: e.Name, id: e.ID, e: e}
		}
		w.collect(k, rows)
	}
	if err := res.Write(w.dict, w.outs, codec, w.opts.PageSize); err != nil {
		return err
	}
	w.hdr.Dicts[k] = res.Base
	w.patches = append(w.patches, res.Patches...)
	w.written[k] = true
	w.metrics.EntriesWrittenTotal.WithLabelValues(k.String()).Add(float64(len(res.Entries)))
	w.logger.Debug("dictionary written", "dict", k.String(), "entries", len(res.Entries), "offset", res.Base)
	return nil
}

// entryView is the part of an entry the derived tables read.
type entryView interface {
	Iterator(f postings.Features) postings.Iterator
}

type row struct {
	name any
	id   uint32
	e    entryView
}

func (w *Writer) derives(k DictKind) bool {
	for _, source := range []func(Info) (DictKind, bool){TokenBigramSource, SavedBigramSource, DTVSource, LengthSource} {
		if src, ok := source(w.info); ok && src == k {
			return true
		}
	}
	return false
}

func (w *Writer) collect(k DictKind, rows []row) {
	if src, ok := TokenBigramSource(w.info); ok && src == k {
		for _, r := range rows {
			w.tokenBigrams.Add(r.name.(string), r.id)
		}
	}
	if src, ok := SavedBigramSource(w.info); ok && src == k {
		for _, r := range rows {
			w.savedBigrams.Add(r.name.(string), r.id)
		}
	}
	if src, ok := DTVSource(w.info); ok && src == k {
		for _, r := range rows {
			it := r.e.Iterator(postings.Features{})
			for it.Next() {
				w.dtv.add(it.At(), r.id)
			}
		}
	}
	if src, ok := LengthSource(w.info); ok && src == k {
		weights := make([]float32, 0, 64)
		for _, r := range rows {
			weights = weights[:0]
			it := r.e.Iterator(postings.Features{})
			for it.Next() {
				weights = append(weights, it.Weight())
			}
			w.lengths.set(r.id, weights)
		}
	}
}

// Finish writes the derived tables and returns the header together with
// every patch the section needs.
func (w *Writer) Finish() (Header, []buffer.Patch, error) {
	pageSize := w.opts.PageSize
	if w.tokenBigrams != nil {
		src, _ := TokenBigramSource(w.info)
		if w.written[src] {
			res, err := w.tokenBigrams.Dictionary().Dump(w.dict, w.outs, dictionary.Strings{}, dictionary.DumpOptions{PageSize: pageSize})
			if err != nil {
				return Header{}, nil, err
			}
			w.hdr.TokenBigram = res.Base
			w.patches = append(w.patches, res.Patches...)
		}
	}
	if w.savedBigrams != nil {
		src, _ := SavedBigramSource(w.info)
		if w.written[src] {
			res, err := w.savedBigrams.Dictionary().Dump(w.dict, w.outs, dictionary.Strings{}, dictionary.DumpOptions{PageSize: pageSize})
			if err != nil {
				return Header{}, nil, err
			}
			w.hdr.SavedBigram = res.Base
			w.patches = append(w.patches, res.Patches...)
		}
	}
	if w.dtv != nil {
		records, positions, err := w.dtv.write(w.dict, w.opts.BufferInitialSize)
		if err != nil {
			return Header{}, nil, err
		}
		w.hdr.DTV, w.hdr.DTVPos = records, positions
	}
	if w.lengths != nil {
		off, err := w.lengths.write(w.dict)
		if err != nil {
			return Header{}, nil, err
		}
		w.hdr.VectorLength = off
	}
	w.patches = append(w.patches, w.hdr.Patch(w.hdrOff))
	return w.hdr, w.patches, nil
}

// Offset is where the field header was reserved.
func (w *Writer) Offset() int64 { return w.hdrOff }
