package buffer

import (
	"math"
	"path/filepath"
	"testing"

	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteEncodeRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 16383, 16384, 1 << 31, math.MaxUint32, 1 << 56, math.MaxUint64}
	b := NewWriteBuffer(1)
	for _, v := range values {
		n := b.ByteEncode(v)
		assert.Equal(t, EncodedLen(v), n, "length of %d", v)
	}
	r := b.Reader()
	for _, v := range values {
		assert.Equal(t, v, r.ByteDecode())
	}
	assert.Equal(t, 0, r.Remaining())
}

func TestByteEncodeZeroIsOneByte(t *testing.T) {
	b := NewWriteBuffer(4)
	require.Equal(t, 1, b.ByteEncode(0))
	assert.Equal(t, []byte{0}, b.Bytes())
}

func TestByteEncodeLayout(t *testing.T) {
	b := NewWriteBuffer(4)
	b.ByteEncode(300)
	// 300 = 0b10_0101100: low group first with the continuation bit set.
	assert.Equal(t, []byte{0xac, 0x02}, b.Bytes())
}

func TestByteEncodeIntRejectsNegative(t *testing.T) {
	b := NewWriteBuffer(4)
	_, err := b.ByteEncodeInt(-1)
	require.Error(t, err)
	assert.True(t, lxerrors.Is(err, lxerrors.ErrNegativeValue))
	assert.Equal(t, 0, b.Limit())

	n, err := b.ByteEncodeInt(5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFixedWidth(t *testing.T) {
	b := NewWriteBuffer(2)
	b.PutInt32(-7)
	b.PutInt64(-1)
	b.PutInt64(1 << 40)
	b.PutFixed(0x0102, 2)
	assert.Equal(t, 4+8+8+2, b.Limit())

	r := b.Reader()
	assert.Equal(t, int32(-7), r.GetInt32())
	assert.Equal(t, int64(-1), r.GetInt64())
	assert.Equal(t, int64(1<<40), r.GetInt64())
	assert.Equal(t, []byte{1, 2}, r.GetBytes(2))
}

func TestStringRoundTrip(t *testing.T) {
	cases := []string{"", "a", "hello world", "naïve café", "日本語テキスト", "😀 emoji"}
	b := NewWriteBuffer(1)
	for _, s := range cases {
		n := b.PutString(s)
		assert.Equal(t, EncodedLen(uint64(len(s)))+len(s), n)
	}
	r := b.Reader()
	for _, s := range cases {
		assert.Equal(t, s, r.GetString())
	}
}

func TestGrowthNeverTruncates(t *testing.T) {
	b := NewWriteBuffer(1)
	for i := 0; i < 10000; i++ {
		b.PutByte(byte(i))
	}
	require.Equal(t, 10000, b.Limit())
	for i, v := range b.Bytes() {
		if v != byte(i) {
			t.Fatalf("byte %d = %d", i, v)
		}
	}
	// Growth factor is capped so a single large write still fits exactly.
	b.Write(make([]byte, 1<<20))
	assert.GreaterOrEqual(t, b.Cap(), b.Limit())
}

func TestBits(t *testing.T) {
	b := NewWriteBuffer(1)
	for _, i := range []int{0, 3, 9, 64} {
		b.SetBit(i)
	}
	assert.True(t, b.TestBit(9))
	assert.False(t, b.TestBit(8))
	assert.Equal(t, 9, b.Limit())
	assert.Equal(t, 0, b.Position())

	r := b.Reader()
	assert.True(t, r.TestBit(64))
	assert.False(t, r.TestBit(1000))
	assert.Equal(t, []int{0, 3, 9, 64}, r.SetBits())
}

func TestDuplicateAndSlice(t *testing.T) {
	b := NewWriteBuffer(8)
	for i := 0; i < 10; i++ {
		b.PutByte(byte(i))
	}
	r := b.Reader()
	r.Skip(2)
	d := r.Duplicate()
	assert.Equal(t, byte(2), d.Get())
	assert.Equal(t, 2, r.Position(), "duplicate must not move the original cursor")

	s := r.Slice(5, 3)
	assert.Equal(t, 3, s.Limit())
	assert.Equal(t, byte(5), s.Get())
	assert.Panics(t, func() {
		s.GetBytes(3)
	})
}

func TestWriteAtBackpatch(t *testing.T) {
	b := NewWriteBuffer(4)
	b.PutInt64(0)
	b.PutString("body")
	end := b.Position()

	patch := NewWriteBuffer(8)
	patch.PutInt64(42)
	require.NoError(t, ApplyPatches(b, []Patch{{Offset: 0, Data: patch.Bytes()}}))
	assert.Equal(t, end, b.Position())

	r := b.Reader()
	assert.Equal(t, int64(42), r.GetInt64())
	assert.Equal(t, "body", r.GetString())
}

func TestFileOutputAndChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chan")
	out, err := CreateFile(path)
	require.NoError(t, err)
	_, err = out.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.Offset())
	_, err = out.WriteAt([]byte("AB"), 2)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	ch, err := OpenFile(path)
	require.NoError(t, err)
	defer ch.Close()
	assert.Equal(t, int64(10), ch.Size())

	rb, err := Read(ch, 1, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("1AB4"), rb.Bytes())

	_, err = Read(ch, 8, 4)
	assert.True(t, lxerrors.Is(err, lxerrors.ErrCorrupt))
}

func BenchmarkByteEncode(b *testing.B) {
	buf := NewWriteBuffer(1 << 16)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if buf.Position() > 1<<15 {
			buf.Reset()
		}
		buf.ByteEncode(uint64(i))
	}
}
