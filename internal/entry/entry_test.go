package entry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

type memSource struct {
	chans [2]*buffer.WriteBuffer
	reads [2]int
	fail  error
}

func newMemSource() *memSource {
	return &memSource{chans: [2]*buffer.WriteBuffer{buffer.NewWriteBuffer(64), buffer.NewWriteBuffer(64)}}
}

func (s *memSource) outputs() []buffer.Output {
	return []buffer.Output{s.chans[0], s.chans[1]}
}

func (s *memSource) ReadPostings(ch int, off, size int64) (buffer.ReadBuffer, error) {
	if s.fail != nil {
		return buffer.ReadBuffer{}, s.fail
	}
	s.reads[ch]++
	return buffer.Read(buffer.MemChannel(s.chans[ch].Bytes()), off, int(size))
}

func occ(id, pos uint32) postings.Occurrence {
	return postings.Occurrence{ID: id, Position: pos}
}

// writeAndDecode writes e's postings to src and decodes its info back.
func writeAndDecode[N any](t *testing.T, e *Entry[N], src *memSource, m postings.IDMap) *Entry[N] {
	t.Helper()
	ok, err := e.WritePostings(src.outputs(), m)
	require.NoError(t, err)
	require.True(t, ok)
	info := buffer.NewWriteBuffer(32)
	require.NoError(t, e.EncodeInfo(info))
	r := info.Reader()
	got, err := DecodeInfo(e.Kind(), e.Name, &r, src)
	require.NoError(t, err)
	assert.Zero(t, r.Remaining())
	return got
}

func TestNameOccurredFlag(t *testing.T) {
	e := New(KindCasedDFO, "the", 1)
	e.AddInsensitive(occ(1, 0))
	assert.False(t, e.NameOccurred())
	assert.True(t, e.Used())

	e.Add(occ(2, 0))
	assert.True(t, e.NameOccurred())
}

func TestCasedStatisticsPreferInsensitive(t *testing.T) {
	e := New(KindCasedIDFreq, "cat", 1)
	e.Add(occ(2, 1))
	e.AddInsensitive(occ(1, 1))
	e.AddInsensitive(occ(2, 1))
	e.AddInsensitive(occ(2, 4))
	e.Finish()

	assert.Equal(t, 2, e.N())
	assert.Equal(t, uint32(2), e.MaxFDT())
	assert.Equal(t, uint64(3), e.Total())
	assert.Equal(t, 1, e.Count(postings.Features{CaseSensitive: true}))
	assert.Equal(t, 2, e.Count(postings.Features{}))
}

func TestInfoRoundTripAndLazyLoad(t *testing.T) {
	src := newMemSource()
	e := New(KindDFO, "alpha", 7)
	e.Add(postings.Occurrence{ID: 1, Position: 3, Fields: []int{1}})
	e.Add(occ(1, 9))
	e.Add(occ(4, 0))

	got := writeAndDecode(t, e, src, nil)
	assert.Equal(t, uint32(7), got.ID)
	assert.Equal(t, 2, got.N())
	assert.Equal(t, uint32(2), got.MaxFDT())
	assert.Equal(t, uint64(3), got.Total())
	assert.Equal(t, [2]int{0, 0}, src.reads)

	assert.Equal(t, []uint32{1, 4}, postings.Collect(got.Iterator(postings.Features{})))
	assert.Equal(t, [2]int{1, 0}, src.reads)

	it := got.Iterator(postings.Features{Positions: true})
	require.True(t, it.Next())
	assert.Equal(t, []uint32{3, 9}, it.Positions())
	assert.Equal(t, [2]int{1, 1}, src.reads)
}

func TestCasedInfoWithFoldedOnly(t *testing.T) {
	src := newMemSource()
	e := New(KindCasedDFO, "the", 3)
	e.AddInsensitive(occ(1, 0))
	e.AddInsensitive(occ(2, 0))

	got := writeAndDecode(t, e, src, nil)
	assert.False(t, got.NameOccurred())
	assert.Nil(t, got.Written(0))
	assert.Equal(t, 2, got.N())
	assert.Empty(t, postings.Collect(got.Iterator(postings.Features{CaseSensitive: true})))
	assert.Equal(t, []uint32{1, 2}, postings.Collect(got.Iterator(postings.Features{})))
}

func TestSkipInfo(t *testing.T) {
	src := newMemSource()
	a := New(KindCasedIDFreq, "A", 1)
	a.Add(occ(1, 0))
	a.AddInsensitive(occ(1, 0))
	b := New(KindCasedIDFreq, "b", 2)
	b.Add(occ(3, 0))

	info := buffer.NewWriteBuffer(32)
	for _, e := range []*Entry[string]{a, b} {
		_, err := e.WritePostings(src.outputs(), nil)
		require.NoError(t, err)
		require.NoError(t, e.EncodeInfo(info))
	}
	r := info.Reader()
	SkipInfo(KindCasedIDFreq, &r)
	got, err := DecodeInfo(KindCasedIDFreq, "b", &r, src)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got.ID)
	assert.True(t, got.NameOccurred())
}

func TestWritePostingsSkipsDeletedEntries(t *testing.T) {
	src := newMemSource()
	e := New(KindIDFreq, "gone", 1)
	e.Add(occ(2, 0))
	ok, err := e.WritePostings(src.outputs(), postings.IDMap{0, 1, postings.Deleted})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, src.chans[0].Limit())
}

func TestAppendMergesPartitions(t *testing.T) {
	src := newMemSource()
	p1 := New(KindIDFreq, "term", 1)
	for _, id := range []uint32{1, 2, 3} {
		p1.Add(occ(id, 0))
	}
	p2 := New(KindIDFreq, "term", 5)
	p2.Add(occ(1, 0))
	p2.Add(occ(2, 0))
	d1 := writeAndDecode(t, p1, src, nil)
	d2 := writeAndDecode(t, p2, src, nil)

	merged := New(KindIDFreq, "term", 1)
	require.NoError(t, merged.Append(d1, 0, nil))
	require.NoError(t, merged.Append(d2, 4, nil))
	assert.Equal(t, 5, merged.N())
	assert.Equal(t, []uint32{1, 2, 3, 5, 6}, postings.Collect(merged.Iterator(postings.Features{})))
}

func TestAppendDuplicateKey(t *testing.T) {
	a := New(KindDocKey, "doc-1", 1)
	a.Add(occ(1, 0))
	a.Finish()
	b := New(KindDocKey, "doc-1", 1)
	b.Add(occ(1, 0))
	b.Finish()

	merged := New(KindDocKey, "doc-1", 0)
	require.NoError(t, merged.Append(a, 0, nil))
	err := merged.Append(b, 10, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lxerrors.ErrDuplicateKey))
	assert.Contains(t, err.Error(), "doc-1")
}

func TestAppendDeletedKeyIsNotDuplicate(t *testing.T) {
	a := New(KindDocKey, "doc-1", 1)
	a.Add(occ(1, 0))
	a.Finish()
	b := New(KindDocKey, "doc-1", 1)
	b.Add(occ(1, 0))
	b.Finish()

	merged := New(KindDocKey, "doc-1", 0)
	require.NoError(t, merged.Append(a, 0, postings.IDMap{0, postings.Deleted}))
	require.NoError(t, merged.Append(b, 0, nil))
	assert.Equal(t, []uint32{1}, postings.Collect(merged.Iterator(postings.Features{})))
}

func TestAppendKindMismatch(t *testing.T) {
	a := New(KindIDFreq, "x", 1)
	b := New(KindDFO, "x", 1)
	assert.ErrorIs(t, a.Append(b, 0, nil), lxerrors.ErrInvalidInput)
}

func TestIteratorReadFailureIsEmpty(t *testing.T) {
	src := newMemSource()
	e := New(KindIDFreq, "broken", 1)
	e.Add(occ(1, 0))
	got := writeAndDecode(t, e, src, nil)

	src.fail = lxerrors.IO("read", errors.New("disk gone"))
	it := got.Iterator(postings.Features{})
	assert.False(t, it.Next())
	_, err := got.Postings(postings.Features{})
	assert.ErrorIs(t, err, lxerrors.ErrIO)
}

func TestMetaHasNoPostings(t *testing.T) {
	src := newMemSource()
	e := New(KindIDFreq, "m", 4)
	e.Add(occ(3, 0))
	got := writeAndDecode(t, e, src, nil)

	meta := got.Meta()
	assert.Equal(t, "m", meta.Name)
	assert.Equal(t, 1, meta.N())
	_, err := meta.Postings(postings.Features{})
	assert.ErrorIs(t, err, lxerrors.ErrAbsent)
}

func TestVectorRemapReordersFeatures(t *testing.T) {
	e := New(KindVector, "doc-9", 9)
	e.Add(postings.Occurrence{ID: 10, Weight: 1})
	e.Add(postings.Occurrence{ID: 20, Weight: 2})
	m := make(postings.IDMap, 21)
	m[10], m[20] = 2, 1
	require.NoError(t, e.Remap(m))

	it := e.Iterator(postings.Features{})
	require.True(t, it.Next())
	assert.Equal(t, uint32(1), it.At())
	assert.InDelta(t, 2.0, it.Weight(), 0.01)
}
