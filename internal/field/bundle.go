package field

import (
	"cmp"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Bundle accumulates every dictionary of one field for the live partition.
// It is not safe for concurrent use.
type Bundle struct {
	info     Info
	analyzer analysis.Analyzer

	strings [NumDictKinds]*dictionary.Dictionary[string]
	ints    *dictionary.Dictionary[int64]
	floats  *dictionary.Dictionary[float64]

	maxDoc uint32
}

// NewBundle returns an empty bundle with a dictionary for every kind info
// enables.
func NewBundle(info Info) *Bundle {
	b := &Bundle{
		info:     info,
		analyzer: analysis.Analyzer{DropStopWords: info.Attrs.Has(DropStopWords)},
	}
	for k := DictKind(0); k < NumDictKinds; k++ {
		if !info.Enables(k) {
			continue
		}
		switch {
		case k == DictSaved && (info.Type == TypeInt || info.Type == TypeDate):
			b.ints = dictionary.New[int64](info.EntryKind(k))
		case k == DictSaved && info.Type == TypeFloat:
			b.floats = dictionary.New[float64](info.EntryKind(k))
		default:
			b.strings[k] = dictionary.New[string](info.EntryKind(k))
		}
	}
	return b
}

func (b *Bundle) Info() Info { return b.info }

// MaxDocID is the largest document ID added so far.
func (b *Bundle) MaxDocID() uint32 { return b.maxDoc }

// Dict returns the string-named dictionary of kind k, or nil.
func (b *Bundle) Dict(k DictKind) *dictionary.Dictionary[string] { return b.strings[k] }

// Add indexes the values of one document. key is the document key; it
// names the document's vectors.
func (b *Bundle) Add(doc uint32, key string, values ...any) error {
	if doc == postings.Deleted {
		return lxerrors.New(lxerrors.ErrInvalidInput, "add field value", "document id 0")
	}
	texts := make([]string, 0, len(values))
	for _, v := range values {
		if err := b.addSaved(doc, v); err != nil {
			return err
		}
		if s, ok := v.(string); ok {
			texts = append(texts, s)
		}
	}
	if len(texts) > 0 && b.info.Tokenized() {
		if (b.info.Attrs.Has(Vector) || b.info.Attrs.Has(StemmedVector)) && key == "" {
			return lxerrors.Newf(lxerrors.ErrInvalidInput, "add field value", "%s: vectors need a document key", b.info.Name)
		}
		b.addTokens(doc, key, texts)
	}
	b.maxDoc = max(b.maxDoc, doc)
	return nil
}

func (b *Bundle) addSaved(doc uint32, v any) error {
	occ := postings.Occurrence{ID: doc}
	switch b.info.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return b.badValue(v)
		}
		if d := b.strings[DictSaved]; d != nil {
			d.Put(s).Add(occ)
		}
		if d := b.strings[DictSavedUncased]; d != nil {
			d.Put(analysis.Fold(s)).Add(occ)
		}
	case TypeInt:
		n, ok := asInt(v)
		if !ok {
			return b.badValue(v)
		}
		if b.ints != nil {
			b.ints.Put(n).Add(occ)
		}
	case TypeDate:
		var ms int64
		switch t := v.(type) {
		case time.Time:
			ms = dictionary.DateName(t)
		default:
			n, ok := asInt(v)
			if !ok {
				return b.badValue(v)
			}
			ms = n
		}
		if b.ints != nil {
			b.ints.Put(ms).Add(occ)
		}
	case TypeFloat:
		f, ok := asFloat(v)
		if !ok {
			return b.badValue(v)
		}
		if b.floats != nil {
			b.floats.Put(f).Add(occ)
		}
	}
	return nil
}

func (b *Bundle) badValue(v any) error {
	return lxerrors.Newf(lxerrors.ErrInvalidInput, "add field value", "%s: %T for %s field", b.info.Name, v, b.info.Type)
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func asFloat(v any) (float64, bool) {
	switch f := v.(type) {
	case float64:
		return f, true
	case float32:
		return float64(f), true
	default:
		n, ok := asInt(v)
		return float64(n), ok
	}
}

// addTokens routes every token into the token dictionaries and the
// document's vectors. Vector features are indexing-time term IDs; they are
// renumbered with the token dictionary at dump.
func (b *Bundle) addTokens(doc uint32, key string, texts []string) {
	cased := b.strings[DictCased]
	uncased := b.strings[DictUncased]
	stemmed := b.strings[DictStemmed]
	var vec, stemVec *postingsSink
	if d := b.strings[DictVector]; d != nil {
		vec = &postingsSink{d: d, key: key, doc: doc}
	}
	if d := b.strings[DictStemmedVector]; d != nil {
		stemVec = &postingsSink{d: d, key: key, doc: doc}
	}

	for _, t := range b.analyzer.Tokenize(texts...) {
		occ := postings.Occurrence{ID: doc, Position: t.Position, Fields: []int{t.Value}}
		folded := analysis.Fold(t.Text)
		var term uint32
		if cased != nil {
			cased.Put(t.Text).Add(occ)
			e := cased.Put(folded)
			e.AddInsensitive(occ)
			term = e.ID
		}
		if uncased != nil {
			e := uncased.Put(folded)
			e.Add(occ)
			term = e.ID
		}
		if vec != nil {
			vec.add(term)
		}
		if stemmed != nil {
			e := stemmed.Put(analysis.Stem(folded))
			e.Add(occ)
			if stemVec != nil {
				stemVec.add(e.ID)
			}
		}
	}
}

// postingsSink adds features to one document's vector entry.
type postingsSink struct {
	d   *dictionary.Dictionary[string]
	key string
	doc uint32
}

func (s *postingsSink) add(feature uint32) {
	s.d.PutID(s.key, s.doc).Add(postings.Occurrence{ID: feature})
}

// DumpOptions controls Bundle.Dump.
type DumpOptions struct {
	// DocMap compacts document IDs; nil keeps them.
	DocMap postings.IDMap
	WriterOptions
}

// Dump writes the field section to dict and the postings to outs. Token
// dictionaries go first so that their term ID maps can renumber the vector
// features. The returned patches, header included, must be applied to dict
// once the partition is complete.
func (b *Bundle) Dump(dict buffer.Output, outs []buffer.Output, opts DumpOptions) (Header, []buffer.Patch, error) {
	if opts.MaxDocID == 0 && opts.DocMap == nil {
		opts.MaxDocID = b.maxDoc
	}
	w, err := NewWriter(b.info, dict, outs, opts.WriterOptions)
	if err != nil {
		return Header{}, nil, err
	}
	var termMaps [NumDictKinds]postings.IDMap
	for _, k := range []DictKind{DictCased, DictUncased, DictStemmed} {
		d := b.strings[k]
		if d == nil {
			continue
		}
		res, err := d.Prepare(dictionary.DumpOptions{Renumber: dictionary.RenumberSorted, PostingsMap: opts.DocMap})
		if err != nil {
			return Header{}, nil, b.wrap(k, err)
		}
		termMaps[k] = res.IDMap
		if err := WriteDict(w, k, res, dictionary.Strings{}); err != nil {
			return Header{}, nil, b.wrap(k, err)
		}
	}

	saved := dictionary.DumpOptions{Renumber: dictionary.RenumberSorted, PostingsMap: opts.DocMap}
	switch {
	case b.ints != nil && b.info.Type == TypeDate:
		err = dumpTyped(w, DictSaved, b.ints, dictionary.Dates{}, saved)
	case b.ints != nil:
		err = dumpTyped(w, DictSaved, b.ints, dictionary.Ints{}, saved)
	case b.floats != nil:
		err = dumpTyped(w, DictSaved, b.floats, dictionary.Floats{}, saved)
	case b.strings[DictSaved] != nil:
		err = dumpTyped(w, DictSaved, b.strings[DictSaved], dictionary.Strings{}, saved)
	}
	if err != nil {
		return Header{}, nil, b.wrap(DictSaved, err)
	}
	if d := b.strings[DictSavedUncased]; d != nil {
		if err := dumpTyped(w, DictSavedUncased, d, dictionary.Strings{}, saved); err != nil {
			return Header{}, nil, b.wrap(DictSavedUncased, err)
		}
	}

	for _, k := range []DictKind{DictVector, DictStemmedVector} {
		d := b.strings[k]
		if d == nil {
			continue
		}
		err := dumpTyped(w, k, d, dictionary.Strings{}, dictionary.DumpOptions{
			Renumber:    dictionary.RenumberMapped,
			EntryMap:    opts.DocMap,
			PostingsMap: termMaps[VectorFeatures(b.info, k)],
		})
		if err != nil {
			return Header{}, nil, b.wrap(k, err)
		}
	}
	return w.Finish()
}

func dumpTyped[N cmp.Ordered](w *Writer, k DictKind, d *dictionary.Dictionary[N], codec dictionary.NameCodec[N], opts dictionary.DumpOptions) error {
	res, err := d.Prepare(opts)
	if err != nil {
		return err
	}
	return WriteDict(w, k, res, codec)
}

func (b *Bundle) wrap(k DictKind, err error) error {
	return fmt.Errorf("dumping %s dictionary of field %s: %w", k, b.info.Name, err)
}
