package field

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// section is an in-memory dictionary file plus two postings channels.
type section struct {
	dict  *buffer.WriteBuffer
	chans [2]*buffer.WriteBuffer
}

func newSection() *section {
	return &section{
		dict:  buffer.NewWriteBuffer(256),
		chans: [2]*buffer.WriteBuffer{buffer.NewWriteBuffer(256), buffer.NewWriteBuffer(256)},
	}
}

func (s *section) outs() []buffer.Output { return []buffer.Output{s.chans[0], s.chans[1]} }

func (s *section) ReadPostings(ch int, off, size int64) (buffer.ReadBuffer, error) {
	return buffer.Read(buffer.MemChannel(s.chans[ch].Bytes()), off, int(size))
}

func dumpBundle(t *testing.T, b *Bundle, opts DumpOptions) *DiskBundle {
	t.Helper()
	s := newSection()
	opts.PageSize = 2
	_, patches, err := b.Dump(s.dict, s.outs(), opts)
	require.NoError(t, err)
	require.NoError(t, buffer.ApplyPatches(s.dict, patches))
	db, err := OpenBundle(b.Info(), buffer.MemChannel(s.dict.Bytes()), 0, entry.Source(s), dictionary.NewPageCache(32, nil))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func entryNames(es []*entry.Entry[string]) []string {
	var out []string
	for _, e := range es {
		out = append(out, e.Name)
	}
	return out
}

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(7)
	h.MaxDocID = 1234
	h.Dicts[DictUncased] = 96
	h.Dicts[DictSaved] = 4096
	h.TokenBigram = 1 << 40
	h.DTV = 5000
	h.DTVPos = 6000

	b := buffer.NewWriteBuffer(8)
	_, err := b.Write(h.Encode())
	require.NoError(t, err)
	assert.Equal(t, HeaderSize, b.Limit())

	r := b.Reader()
	got, err := DecodeHeader(&r)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.True(t, got.Has(DictUncased))
	assert.False(t, got.Has(DictCased))
	assert.Equal(t, Absent, got.VectorLength)
	assert.Equal(t, Absent, got.SavedBigram)
}

func TestHeaderRejectsTruncated(t *testing.T) {
	r := buffer.NewReadBuffer(make([]byte, HeaderSize-1))
	_, err := DecodeHeader(&r)
	assert.ErrorIs(t, err, lxerrors.ErrCorrupt)
}

func TestHeaderBackpatch(t *testing.T) {
	out := buffer.NewWriteBuffer(8)
	_, err := out.Write([]byte("prefix"))
	require.NoError(t, err)
	off, err := ReserveHeader(out, 3)
	require.NoError(t, err)
	_, err = out.Write([]byte("body"))
	require.NoError(t, err)

	h := NewHeader(3)
	h.Dicts[DictCased] = 10
	require.NoError(t, buffer.ApplyPatches(out, []buffer.Patch{h.Patch(off)}))

	r := out.Reader()
	r.SetPosition(int(off))
	got, err := DecodeHeader(&r)
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.Dicts[DictCased])
	assert.Equal(t, "body", string(r.GetBytes(4)))
}

func TestCasedUncasedScenario(t *testing.T) {
	info := Info{ID: 1, Name: "body", Attrs: Cased | Uncased | Stemmed | Positions}
	b := NewBundle(info)
	require.NoError(t, b.Add(1, "d1", "The Cat"))
	require.NoError(t, b.Add(2, "d2", "a cat"))
	db := dumpBundle(t, b, DumpOptions{})

	cat, err := db.Lookup("cat", postings.Features{})
	require.NoError(t, err)
	require.NotNil(t, cat)
	assert.Equal(t, 2, cat.N())

	upper, err := db.Dict(DictCased).Get("Cat")
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.Equal(t, 1, upper.N())
	assert.True(t, upper.NameOccurred())

	the, err := db.Lookup("the", postings.Features{CaseSensitive: true})
	require.NoError(t, err)
	assert.Nil(t, the)
	folded, err := db.Dict(DictCased).Get("the")
	require.NoError(t, err)
	require.NotNil(t, folded)
	assert.False(t, folded.NameOccurred())

	cs, err := db.Lookup("Cat", postings.Features{CaseSensitive: true, Positions: true})
	require.NoError(t, err)
	require.NotNil(t, cs)
	it := cs.Iterator(postings.Features{CaseSensitive: true, Positions: true})
	require.True(t, it.Next())
	assert.Equal(t, uint32(1), it.At())
	assert.Equal(t, []uint32{1}, it.Positions())
	assert.False(t, it.Next())

	stem, err := db.Stemmed("Cats")
	require.NoError(t, err)
	require.NotNil(t, stem)
	assert.Equal(t, 2, stem.N())

	hdr := db.Header()
	assert.Equal(t, uint32(2), hdr.MaxDocID)
	assert.NotEqual(t, Absent, hdr.TokenBigram)
	assert.Equal(t, Absent, hdr.SavedBigram)
	assert.Equal(t, Absent, hdr.DTV)
	assert.Nil(t, db.Dict(DictSaved))
}

func TestTokenWildcard(t *testing.T) {
	b := NewBundle(Info{ID: 2, Name: "title", Attrs: Uncased})
	require.NoError(t, b.Add(1, "", "Cat cart dog"))
	require.NoError(t, b.Add(2, "", "CAR scat"))
	db := dumpBundle(t, b, DumpOptions{})

	got, err := db.Wildcard("CA*", postings.Features{})
	require.NoError(t, err)
	assert.Equal(t, []string{"car", "cart", "cat"}, entryNames(got))

	it, err := db.Iterator("*at", postings.Features{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, postings.Collect(it))
}

func TestAbsentStructures(t *testing.T) {
	b := NewBundle(Info{ID: 3, Name: "title", Attrs: Uncased})
	require.NoError(t, b.Add(1, "", "words"))
	db := dumpBundle(t, b, DumpOptions{})

	assert.Nil(t, db.Dict(DictCased))
	_, err := db.Stemmed("words")
	assert.ErrorIs(t, err, lxerrors.ErrAbsent)
	_, err = db.Lookup("words", postings.Features{CaseSensitive: true})
	assert.ErrorIs(t, err, lxerrors.ErrAbsent)
	_, err = db.DocValues(1)
	assert.ErrorIs(t, err, lxerrors.ErrAbsent)
	_, err = db.VectorLength(1)
	assert.ErrorIs(t, err, lxerrors.ErrAbsent)
}

func TestOpenBundleFieldMismatch(t *testing.T) {
	info := Info{ID: 4, Name: "title", Attrs: Uncased}
	b := NewBundle(info)
	require.NoError(t, b.Add(1, "", "x"))
	s := newSection()
	_, patches, err := b.Dump(s.dict, s.outs(), DumpOptions{})
	require.NoError(t, err)
	require.NoError(t, buffer.ApplyPatches(s.dict, patches))

	other := Info{ID: 5, Name: "title", Attrs: Uncased}
	_, err = OpenBundle(other, buffer.MemChannel(s.dict.Bytes()), 0, s, nil)
	assert.ErrorIs(t, err, lxerrors.ErrSchemaMismatch)
}

func TestSavedValuesAndDTV(t *testing.T) {
	b := NewBundle(Info{ID: 5, Name: "tag", Attrs: Saved | SavedUncased})
	require.NoError(t, b.Add(1, "", "Red", "Blue"))
	require.NoError(t, b.Add(2, "", "red"))
	require.NoError(t, b.Add(4, "", "Green"))
	db := dumpBundle(t, b, DumpOptions{})

	tests := []struct {
		doc  uint32
		want []any
	}{
		{1, []any{"Blue", "Red"}},
		{2, []any{"red"}},
		{3, nil},
		{4, []any{"Green"}},
		{9, nil},
	}
	for _, tt := range tests {
		got, err := db.Values(tt.doc)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "doc %d", tt.doc)
	}

	red, err := db.Saved("Red")
	require.NoError(t, err)
	require.NotNil(t, red)
	assert.Equal(t, []uint32{1}, postings.Collect(red.Iterator(postings.Features{})))

	matches, err := db.SavedWildcard("R*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "red", matches[0].Name)
	assert.Equal(t, []uint32{1, 2}, postings.Collect(matches[0].Iterator(postings.Features{})))
}

func TestTypedSavedValues(t *testing.T) {
	year := NewBundle(Info{ID: 6, Name: "year", Attrs: Saved, Type: TypeInt})
	require.NoError(t, year.Add(1, "", 2001))
	require.NoError(t, year.Add(2, "", int64(1999)))
	require.NoError(t, year.Add(3, "", int32(2010)))
	assert.ErrorIs(t, year.Add(4, "", "2020"), lxerrors.ErrInvalidInput)
	db := dumpBundle(t, year, DumpOptions{})

	var got []int64
	c := db.Ints().Range(2000, 2010, true, false)
	for c.Next() {
		got = append(got, c.Entry().Name)
	}
	require.NoError(t, c.Err())
	assert.Equal(t, []int64{2001}, got)

	vals, err := db.Values(2)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1999)}, vals)

	when := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	date := NewBundle(Info{ID: 7, Name: "published", Attrs: Saved, Type: TypeDate})
	require.NoError(t, date.Add(1, "", when))
	ddb := dumpBundle(t, date, DumpOptions{})
	vals, err = ddb.Values(1)
	require.NoError(t, err)
	assert.Equal(t, []any{when}, vals)

	price := NewBundle(Info{ID: 8, Name: "price", Attrs: Saved, Type: TypeFloat})
	require.NoError(t, price.Add(1, "", 9.5))
	require.NoError(t, price.Add(2, "", float32(0.25)))
	pdb := dumpBundle(t, price, DumpOptions{})
	vals, err = pdb.Values(2)
	require.NoError(t, err)
	assert.Equal(t, []any{0.25}, vals)
}

func TestVectorsAndLengths(t *testing.T) {
	b := NewBundle(Info{ID: 9, Name: "body", Attrs: Uncased | Vector})
	require.NoError(t, b.Add(1, "a", "red red blue"))
	require.NoError(t, b.Add(2, "b", "blue"))
	assert.ErrorIs(t, b.Add(3, "", "green"), lxerrors.ErrInvalidInput)
	db := dumpBundle(t, b, DumpOptions{})

	blue, err := db.Lookup("blue", postings.Features{})
	require.NoError(t, err)
	red, err := db.Lookup("red", postings.Features{})
	require.NoError(t, err)

	v, err := db.Vector(DictVector, 1)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "a", v.Name)
	it := v.Iterator(postings.Features{})
	weights := map[uint32]float32{}
	for it.Next() {
		weights[it.At()] = it.Weight()
	}
	assert.Equal(t, map[uint32]float32{blue.ID: 1, red.ID: 2}, weights)

	l, err := db.VectorLength(1)
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(5), l, 1e-3)
	l, err = db.VectorLength(2)
	require.NoError(t, err)
	assert.InDelta(t, 1, l, 1e-3)
}

func TestDumpCompactsDeletedDocuments(t *testing.T) {
	b := NewBundle(Info{ID: 10, Name: "body", Attrs: Uncased | Saved | Vector})
	require.NoError(t, b.Add(1, "k1", "alpha"))
	require.NoError(t, b.Add(2, "k2", "beta"))
	require.NoError(t, b.Add(3, "k3", "alpha gamma"))

	deleted := roaring.BitmapOf(2)
	docMap := postings.Compacting(3, deleted)
	db := dumpBundle(t, b, DumpOptions{DocMap: docMap, WriterOptions: WriterOptions{MaxDocID: 2}})

	beta, err := db.Lookup("beta", postings.Features{})
	require.NoError(t, err)
	assert.Nil(t, beta)

	alpha, err := db.Lookup("alpha", postings.Features{})
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2}, postings.Collect(alpha.Iterator(postings.Features{})))
	gamma, err := db.Lookup("gamma", postings.Features{})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), gamma.ID)

	vals, err := db.Values(2)
	require.NoError(t, err)
	assert.Equal(t, []any{"alpha gamma"}, vals)

	v, err := db.Vector(DictVector, 2)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, "k3", v.Name)
	assert.Equal(t, []uint32{alpha.ID, gamma.ID}, postings.Collect(v.Iterator(postings.Features{})))
	assert.Equal(t, uint32(2), db.Header().MaxDocID)
}

func TestRegistryDefine(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	body, err := r.Define(ctx, Info{Name: "body", Attrs: Uncased | Positions})
	require.NoError(t, err)
	assert.Equal(t, int32(1), body.ID)

	again, err := r.Define(ctx, Info{Name: "body", Attrs: Uncased | Positions})
	require.NoError(t, err)
	assert.Equal(t, body, again)

	_, err = r.Define(ctx, Info{Name: "body", Attrs: Cased})
	assert.ErrorIs(t, err, lxerrors.ErrSchemaMismatch)

	year, err := r.Define(ctx, Info{Name: "year", Attrs: Saved, Type: TypeInt})
	require.NoError(t, err)
	assert.Equal(t, int32(2), year.ID)

	got, ok := r.FieldByID(2)
	require.True(t, ok)
	assert.Equal(t, "year", got.Name)
	assert.Equal(t, []Info{body, year}, r.Fields())
}

func TestConfigure(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()
	require.NoError(t, Configure(ctx, r, config.Default().Fields))
	published, ok := r.Field("published")
	require.True(t, ok)
	assert.Equal(t, TypeDate, published.Type)
	assert.Equal(t, Saved, published.Attrs)
	assert.Len(t, r.Fields(), len(config.Default().Fields))

	err := Configure(ctx, r, []config.FieldConfig{{Name: "x", Attrs: "cased,bogus"}})
	assert.ErrorIs(t, err, lxerrors.ErrInvalidInput)
	err = Configure(ctx, r, []config.FieldConfig{{Name: "x", Type: "blob", Attrs: "saved"}})
	assert.ErrorIs(t, err, lxerrors.ErrInvalidInput)
	err = Configure(ctx, r, []config.FieldConfig{{Name: "published", Type: "int", Attrs: "saved"}})
	assert.ErrorIs(t, err, lxerrors.ErrSchemaMismatch)
}

func TestInfoValidate(t *testing.T) {
	tests := []struct {
		name string
		info Info
		ok   bool
	}{
		{"plain", Info{Name: "f", Attrs: Uncased}, true},
		{"no name", Info{Attrs: Uncased}, false},
		{"nothing enabled", Info{Name: "f", Attrs: Positions}, false},
		{"analysed int", Info{Name: "f", Attrs: Uncased, Type: TypeInt}, false},
		{"saved int", Info{Name: "f", Attrs: Saved, Type: TypeInt}, true},
		{"vector without tokens", Info{Name: "f", Attrs: Stemmed | Vector}, false},
		{"stemmed vector", Info{Name: "f", Attrs: Stemmed | StemmedVector}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.info.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, lxerrors.ErrInvalidInput)
			}
		})
	}
}

func TestAttributesString(t *testing.T) {
	a := Cased | Saved | DropStopWords
	assert.Equal(t, "cased,saved,drop-stop-words", a.String())
	got, err := ParseAttributes(a.String())
	require.NoError(t, err)
	assert.Equal(t, a, got)
	_, err = ParseAttributes("cased,bogus")
	assert.ErrorIs(t, err, lxerrors.ErrInvalidInput)
}

func TestEntryKinds(t *testing.T) {
	positional := Info{Attrs: Cased | Uncased | Positions}
	assert.Equal(t, entry.KindCasedDFO, positional.EntryKind(DictCased))
	assert.Equal(t, entry.KindDFO, positional.EntryKind(DictUncased))
	plain := Info{Attrs: Cased | Uncased}
	assert.Equal(t, entry.KindCasedIDFreq, plain.EntryKind(DictCased))
	assert.Equal(t, entry.KindIDFreq, plain.EntryKind(DictSaved))
	assert.Equal(t, entry.KindVector, plain.EntryKind(DictStemmedVector))
}
