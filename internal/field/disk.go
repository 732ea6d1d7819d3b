package field

import (
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// DiskBundle is the query-side view of one field section. Dictionaries the
// header marks absent are never opened. A DiskBundle is safe for concurrent
// use.
type DiskBundle struct {
	info Info
	hdr  Header
	ch   buffer.Channel

	strings [NumDictKinds]*dictionary.Disk[string]
	ints    *dictionary.Disk[int64]
	floats  *dictionary.Disk[float64]

	tokenBigrams *dictionary.Disk[string]
	savedBigrams *dictionary.Disk[string]
}

// OpenBundle reads the field header at off and opens every dictionary it
// lists.
func OpenBundle(info Info, ch buffer.Channel, off int64, src entry.Source, cache *dictionary.PageCache) (*DiskBundle, error) {
	hb, err := buffer.Read(ch, off, HeaderSize)
	if err != nil {
		return nil, err
	}
	hdr, err := DecodeHeader(&hb)
	if err != nil {
		return nil, err
	}
	if hdr.FieldID != info.ID {
		return nil, lxerrors.Newf(lxerrors.ErrSchemaMismatch, "open field", "%s: section for field %d, want %d", info.Name, hdr.FieldID, info.ID)
	}
	b := &DiskBundle{info: info, hdr: hdr, ch: ch}
	for k := DictKind(0); k < NumDictKinds; k++ {
		if !hdr.Has(k) {
			continue
		}
		if !info.Enables(k) {
			b.Close()
			return nil, lxerrors.Newf(lxerrors.ErrSchemaMismatch, "open field", "%s: unexpected %s dictionary", info.Name, k)
		}
		switch {
		case k == DictSaved && (info.Type == TypeInt || info.Type == TypeDate):
			var codec dictionary.NameCodec[int64] = dictionary.Ints{}
			if info.Type == TypeDate {
				codec = dictionary.Dates{}
			}
			b.ints, err = dictionary.Open(ch, hdr.Dicts[k], codec, src, cache)
		case k == DictSaved && info.Type == TypeFloat:
			b.floats, err = dictionary.Open[float64](ch, hdr.Dicts[k], dictionary.Floats{}, src, cache)
		default:
			b.strings[k], err = dictionary.Open[string](ch, hdr.Dicts[k], dictionary.Strings{}, src, cache)
		}
		if err != nil {
			b.Close()
			return nil, err
		}
	}
	if hdr.TokenBigram != Absent {
		if b.tokenBigrams, err = dictionary.Open[string](ch, hdr.TokenBigram, dictionary.Strings{}, src, cache); err != nil {
			b.Close()
			return nil, err
		}
	}
	if hdr.SavedBigram != Absent {
		if b.savedBigrams, err = dictionary.Open[string](ch, hdr.SavedBigram, dictionary.Strings{}, src, cache); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

func (b *DiskBundle) Info() Info { return b.info }

func (b *DiskBundle) Header() Header { return b.hdr }

// Close drops the bundle's pages from the page cache.
func (b *DiskBundle) Close() {
	for _, d := range b.strings {
		if d != nil {
			d.Close()
		}
	}
	if b.ints != nil {
		b.ints.Close()
	}
	if b.floats != nil {
		b.floats.Close()
	}
	if b.tokenBigrams != nil {
		b.tokenBigrams.Close()
	}
	if b.savedBigrams != nil {
		b.savedBigrams.Close()
	}
}

// Dict returns the string-named dictionary of kind k, or nil when absent.
func (b *DiskBundle) Dict(k DictKind) *dictionary.Disk[string] {
	if k < 0 || k >= NumDictKinds {
		return nil
	}
	return b.strings[k]
}

// Ints returns the saved dictionary of an int or date field, or nil.
func (b *DiskBundle) Ints() *dictionary.Disk[int64] { return b.ints }

// Floats returns the saved dictionary of a float field, or nil.
func (b *DiskBundle) Floats() *dictionary.Disk[float64] { return b.floats }

// TokenBigrams returns the token bigram dictionary, or nil.
func (b *DiskBundle) TokenBigrams() *dictionary.Disk[string] { return b.tokenBigrams }

// SavedBigrams returns the saved value bigram dictionary, or nil.
func (b *DiskBundle) SavedBigrams() *dictionary.Disk[string] { return b.savedBigrams }

// termDict picks the dictionary that answers a token query: the cased
// dictionary for case-sensitive queries, otherwise the uncased dictionary
// falling back to the folded side of the cased one.
func (b *DiskBundle) termDict(f postings.Features) (*dictionary.Disk[string], error) {
	if f.CaseSensitive {
		if d := b.strings[DictCased]; d != nil {
			return d, nil
		}
		return nil, lxerrors.New(lxerrors.ErrAbsent, "lookup", b.info.Name+" cased dictionary")
	}
	for _, k := range []DictKind{DictUncased, DictCased} {
		if d := b.strings[k]; d != nil {
			return d, nil
		}
	}
	return nil, lxerrors.New(lxerrors.ErrAbsent, "lookup", b.info.Name+" token dictionary")
}

// Lookup finds term in the token dictionaries. Case-sensitive lookups only
// return entries whose name occurred verbatim. A nil entry means no match.
func (b *DiskBundle) Lookup(term string, f postings.Features) (*entry.Entry[string], error) {
	d, err := b.termDict(f)
	if err != nil {
		return nil, err
	}
	if !f.CaseSensitive {
		term = analysis.Fold(term)
	}
	e, err := d.Get(term)
	if err != nil || e == nil {
		return nil, err
	}
	if f.CaseSensitive && !e.NameOccurred() {
		return nil, nil
	}
	return e, nil
}

// Stemmed finds the stem of term in the stemmed dictionary.
func (b *DiskBundle) Stemmed(term string) (*entry.Entry[string], error) {
	d := b.strings[DictStemmed]
	if d == nil {
		return nil, lxerrors.New(lxerrors.ErrAbsent, "lookup", b.info.Name+" stemmed dictionary")
	}
	return d.Get(analysis.Stem(analysis.Fold(term)))
}

// Wildcard returns the token entries matching pattern. The bigram
// dictionary only indexes the names of its source dictionary, so other
// dictionaries are scanned.
func (b *DiskBundle) Wildcard(pattern string, f postings.Features) ([]*entry.Entry[string], error) {
	d, err := b.termDict(f)
	if err != nil {
		return nil, err
	}
	if !f.CaseSensitive {
		pattern = analysis.Fold(pattern)
	}
	var bigrams *dictionary.Disk[string]
	if src, ok := TokenBigramSource(b.info); ok && b.strings[src] == d {
		bigrams = b.tokenBigrams
	}
	matches, err := dictionary.Wildcard(d, bigrams, pattern)
	if err != nil || !f.CaseSensitive {
		return matches, err
	}
	out := matches[:0]
	for _, e := range matches {
		if e.NameOccurred() {
			out = append(out, e)
		}
	}
	return out, nil
}

// Iterator returns the union of the postings of every token matching
// pattern, which may be a plain term.
func (b *DiskBundle) Iterator(pattern string, f postings.Features) (postings.Iterator, error) {
	matches, err := b.Wildcard(pattern, f)
	if err != nil {
		return nil, err
	}
	its := make([]postings.Iterator, 0, len(matches))
	for _, e := range matches {
		its = append(its, e.Iterator(f))
	}
	return postings.Union(its...), nil
}

func (b *DiskBundle) savedStrings() (*dictionary.Disk[string], bool) {
	if d := b.strings[DictSaved]; d != nil {
		return d, false
	}
	if d := b.strings[DictSavedUncased]; d != nil {
		return d, true
	}
	return nil, false
}

// Saved finds a saved string value. Fields that only keep uncased values
// are searched with the folded value.
func (b *DiskBundle) Saved(value string) (*entry.Entry[string], error) {
	d, folded := b.savedStrings()
	if d == nil {
		return nil, lxerrors.New(lxerrors.ErrAbsent, "lookup", b.info.Name+" saved dictionary")
	}
	if folded {
		value = analysis.Fold(value)
	}
	return d.Get(value)
}

// SavedWildcard matches pattern against saved string values.
func (b *DiskBundle) SavedWildcard(pattern string) ([]*entry.Entry[string], error) {
	src, ok := SavedBigramSource(b.info)
	if !ok || b.strings[src] == nil {
		return nil, lxerrors.New(lxerrors.ErrAbsent, "wildcard", b.info.Name+" saved strings")
	}
	if src == DictSavedUncased {
		pattern = analysis.Fold(pattern)
	}
	return dictionary.Wildcard(b.strings[src], b.savedBigrams, pattern)
}

// DocValues returns the IDs of doc's saved values in the dtv source
// dictionary. A document without values yields nil.
func (b *DiskBundle) DocValues(doc uint32) ([]uint32, error) {
	if b.hdr.DTV == Absent {
		return nil, lxerrors.New(lxerrors.ErrAbsent, "doc values", b.info.Name)
	}
	return readDTV(b.ch, &b.hdr, doc)
}

// Values returns doc's saved values typed by the field: string, int64,
// float64 or time.Time.
func (b *DiskBundle) Values(doc uint32) ([]any, error) {
	ids, err := b.DocValues(doc)
	if err != nil || len(ids) == 0 {
		return nil, err
	}
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		v, err := b.valueByID(id)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (b *DiskBundle) valueByID(id uint32) (any, error) {
	switch {
	case b.ints != nil:
		e, err := b.ints.GetByID(id)
		if err != nil || e == nil {
			return nil, err
		}
		if b.info.Type == TypeDate {
			return dictionary.NameDate(e.Name), nil
		}
		return e.Name, nil
	case b.floats != nil:
		e, err := b.floats.GetByID(id)
		if err != nil || e == nil {
			return nil, err
		}
		return e.Name, nil
	}
	d, _ := b.savedStrings()
	e, err := d.GetByID(id)
	if err != nil || e == nil {
		return nil, err
	}
	return e.Name, nil
}

// VectorLength is the Euclidean length of doc's vector.
func (b *DiskBundle) VectorLength(doc uint32) (float32, error) {
	if b.hdr.VectorLength == Absent {
		return 0, lxerrors.New(lxerrors.ErrAbsent, "vector length", b.info.Name)
	}
	return readLength(b.ch, &b.hdr, doc)
}

// Vector returns the vector entry of doc from the dictionary of kind k.
func (b *DiskBundle) Vector(k DictKind, doc uint32) (*entry.Entry[string], error) {
	if k != DictVector && k != DictStemmedVector || b.strings[k] == nil {
		return nil, lxerrors.Newf(lxerrors.ErrAbsent, "vector", "%s %s", b.info.Name, k)
	}
	return b.strings[k].GetByID(doc)
}
