package postings

import (
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
)

func build(kind Kind, ids ...uint32) *Postings {
	p := New(kind)
	for _, id := range ids {
		p.Add(Occurrence{ID: id, Position: id * 10})
	}
	p.Finish()
	return p
}

func roundTrip(t *testing.T, p *Postings) *Postings {
	t.Helper()
	bufs := make([]*buffer.WriteBuffer, p.Kind().Channels())
	for i := range bufs {
		bufs[i] = buffer.NewWriteBuffer(16)
	}
	require.NoError(t, p.Encode(bufs))
	chans := make([]buffer.ReadBuffer, len(bufs))
	for i, b := range bufs {
		chans[i] = b.Reader()
	}
	return Decode(p.Kind(), p.N(), chans)
}

func TestAddAccumulatesFrequencies(t *testing.T) {
	p := New(KindDFO)
	p.Add(Occurrence{ID: 1, Position: 0, Fields: []int{2}})
	p.Add(Occurrence{ID: 1, Position: 4, Fields: []int{3}})
	p.Add(Occurrence{ID: 3, Position: 1})
	// Out of order IDs are inserted in place.
	p.Add(Occurrence{ID: 2, Position: 7})
	p.Finish()

	assert.Equal(t, 3, p.N())
	assert.Equal(t, uint64(4), p.Total())
	assert.Equal(t, uint32(2), p.MaxFDT())
	assert.Equal(t, []uint32{1, 2, 3}, p.IDs())

	it := p.Iterator(Features{Positions: true, Fields: true})
	require.True(t, it.Next())
	assert.Equal(t, uint32(2), it.Freq())
	assert.Equal(t, []uint32{0, 4}, it.Positions())
	assert.True(t, it.InField(2))
	assert.True(t, it.InField(3))
	assert.False(t, it.InField(1))
}

func TestTotalAtLeastN(t *testing.T) {
	for _, kind := range []Kind{KindID, KindIDFreq, KindDFO, KindVector} {
		p := build(kind, 1, 1, 2, 5, 5, 5)
		assert.Equal(t, 3, p.N(), kind.String())
		assert.GreaterOrEqual(t, p.Total(), uint64(p.N()), kind.String())
	}
}

func TestAddAfterFinishPanics(t *testing.T) {
	p := build(KindIDFreq, 1)
	assert.Panics(t, func() { p.Add(Occurrence{ID: 2}) })
}

func TestFinishTwiceIsIdempotent(t *testing.T) {
	encode := func(p *Postings) [][]byte {
		bufs := []*buffer.WriteBuffer{buffer.NewWriteBuffer(8), buffer.NewWriteBuffer(8)}
		require.NoError(t, p.Encode(bufs))
		return [][]byte{bufs[0].Bytes(), bufs[1].Bytes()}
	}
	a := New(KindDFO)
	b := New(KindDFO)
	for _, p := range []*Postings{a, b} {
		p.Add(Occurrence{ID: 4, Position: 9})
		p.Add(Occurrence{ID: 4, Position: 2})
		p.Add(Occurrence{ID: 8, Position: 1, Fields: []int{0}})
	}
	a.Finish()
	b.Finish()
	b.Finish()
	assert.Equal(t, encode(a), encode(b))
}

func TestEncodeDecodeAllKinds(t *testing.T) {
	for _, kind := range []Kind{KindID, KindIDFreq, KindDFO, KindVector} {
		t.Run(kind.String(), func(t *testing.T) {
			p := New(kind)
			p.Add(Occurrence{ID: 3, Position: 1, Weight: 0.5})
			p.Add(Occurrence{ID: 3, Position: 6, Weight: 0.25})
			p.Add(Occurrence{ID: 1000, Position: 2, Fields: []int{9}, Weight: 2})
			p.Finish()

			got := roundTrip(t, p)
			assert.Equal(t, p.IDs(), got.IDs())
			assert.Equal(t, p.N(), got.N())
			assert.Equal(t, p.MaxFDT(), got.MaxFDT())
			assert.Equal(t, StateLoaded, got.State())

			it := got.Iterator(Features{Positions: true})
			require.True(t, it.Next())
			switch kind {
			case KindID:
				assert.Equal(t, uint32(1), it.Freq())
			case KindDFO:
				assert.Equal(t, []uint32{1, 6}, it.Positions())
			case KindVector:
				assert.InDelta(t, 0.75, it.Weight(), 0.001)
			}
		})
	}
}

func TestDecodeWithoutPositionalChannel(t *testing.T) {
	p := build(KindDFO, 2, 4)
	bufs := []*buffer.WriteBuffer{buffer.NewWriteBuffer(8), buffer.NewWriteBuffer(8)}
	require.NoError(t, p.Encode(bufs))

	got := Decode(KindDFO, 2, []buffer.ReadBuffer{bufs[0].Reader()})
	assert.False(t, got.HasPositions())
	it := got.Iterator(Features{Positions: true})
	require.True(t, it.Next())
	assert.Empty(t, it.Positions())

	got.LoadPositions(bufs[1].Reader())
	assert.True(t, got.HasPositions())
	it = got.Iterator(Features{Positions: true})
	require.True(t, it.Next())
	assert.Equal(t, []uint32{20}, it.Positions())
}

func TestWriteRecordsOffsetsAndReleases(t *testing.T) {
	out0 := buffer.NewWriteBuffer(8)
	out1 := buffer.NewWriteBuffer(8)
	out0.Write([]byte("xx"))

	p := build(KindDFO, 1, 2, 3)
	offsets, sizes, err := p.Write([]buffer.Output{out0, out1})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 0}, offsets)
	assert.Equal(t, int64(out0.Limit()-2), sizes[0])
	assert.Equal(t, int64(out1.Limit()), sizes[1])
	assert.Equal(t, StateWritten, p.State())
	assert.Equal(t, 3, int(p.Total()))
	assert.Nil(t, p.IDs())
}

func TestAppendShiftsAndOrders(t *testing.T) {
	p1 := build(KindIDFreq, 1, 2, 3)
	p2 := build(KindIDFreq, 1, 2)

	require.NoError(t, p1.Append(p2, 4, nil))
	assert.Equal(t, []uint32{1, 2, 3, 5, 6}, p1.IDs())
	assert.Equal(t, 5, p1.N())
}

func TestAppendWithIDMap(t *testing.T) {
	p1 := build(KindDFO, 1, 2)
	p2 := build(KindDFO, 1, 2, 3)
	m := IDMap{0, 1, Deleted, 2}

	require.NoError(t, p1.Append(p2, 2, m))
	assert.Equal(t, []uint32{1, 2, 3, 4}, p1.IDs())

	it := p1.Iterator(Features{Positions: true})
	require.True(t, it.Seek(4))
	// ID 4 came from old ID 3, whose position was 30.
	assert.Equal(t, []uint32{30}, it.Positions())
}

func TestAppendRejectsOverlap(t *testing.T) {
	p1 := build(KindID, 1, 5)
	p2 := build(KindID, 2)
	require.Error(t, p1.Append(p2, 0, nil))
	require.Error(t, p1.Append(build(KindIDFreq, 9), 10, nil))
}

func TestRemapDropsDeleted(t *testing.T) {
	p := build(KindIDFreq, 1, 2, 3, 4, 5)
	deleted := roaring.BitmapOf(3)
	m := Compacting(5, deleted)
	require.Equal(t, 4, m.Live())

	require.NoError(t, p.Remap(m))
	assert.Equal(t, []uint32{1, 2, 3, 4}, p.IDs())
	assert.Equal(t, 4, p.N())
	assert.Equal(t, uint64(4), p.Total())
}

func TestRemapNilIsIdentity(t *testing.T) {
	p := build(KindID, 2, 9)
	require.NoError(t, p.Remap(nil))
	assert.Equal(t, []uint32{2, 9}, p.IDs())
	assert.Nil(t, Compacting(9, roaring.New()))
}

func TestRemapReordersVectorFeatures(t *testing.T) {
	p := New(KindVector)
	p.Add(Occurrence{ID: 1, Weight: 1})
	p.Add(Occurrence{ID: 2, Weight: 2})
	p.Add(Occurrence{ID: 3, Weight: 3})
	p.Finish()

	require.NoError(t, p.Remap(IDMap{0, 3, 1, 2}))
	assert.Equal(t, []uint32{1, 2, 3}, p.IDs())
	it := p.Iterator(Features{})
	require.True(t, it.Next())
	assert.InDelta(t, 2.0, it.Weight(), 0.01)
}

func TestSaturatingTotals(t *testing.T) {
	p := New(KindIDFreq)
	p.Add(Occurrence{ID: 1, Count: ^uint32(0)})
	p.Add(Occurrence{ID: 1, Count: 5})
	p.Finish()
	assert.Equal(t, ^uint32(0), p.MaxFDT())
	assert.Equal(t, ^uint64(0), SatAdd64(^uint64(0)-1, 5))
}
