// Package buffer implements the byte-oriented codec every persisted structure
// is built on: growable write buffers, read views over shared storage,
// 7-bit variable-length integers, fixed-width big-endian integers, length
// prefixed UTF-8 strings and bitsets.
package buffer

import (
	"io"

	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

const (
	// DefaultInitialSize is used when a buffer is created with a non-positive size.
	DefaultInitialSize = 256

	// MaxEncodedLen is the longest byte encoding of a uint64.
	MaxEncodedLen = 10

	initialGrowth = 2

	// maxGrowth bounds one reallocation to 16x the current capacity, so a
	// long-lived buffer never over-allocates by more than that factor.
	maxGrowth = 16
)

// WriteBuffer is a growable byte buffer with a cursor. Bytes between 0 and
// Limit are valid; writes at or beyond capacity reallocate.
type WriteBuffer struct {
	data   []byte
	pos    int
	limit  int
	growth int
}

// NewWriteBuffer allocates a buffer with the given initial capacity.
func NewWriteBuffer(size int) *WriteBuffer {
	if size <= 0 {
		size = DefaultInitialSize
	}
	return &WriteBuffer{
		data:   make([]byte, size),
		growth: initialGrowth,
	}
}

func (b *WriteBuffer) Position() int { return b.pos }

// SetPosition moves the cursor. Moving past the limit extends the valid
// region with zero bytes.
func (b *WriteBuffer) SetPosition(pos int) {
	if pos > b.pos {
		b.ensure(pos - b.pos)
	}
	b.pos = pos
	b.touch()
}

func (b *WriteBuffer) Limit() int { return b.limit }

func (b *WriteBuffer) Cap() int { return len(b.data) }

// Offset reports where the next Write lands, so a WriteBuffer can serve as an
// in-memory postings channel.
func (b *WriteBuffer) Offset() int64 { return int64(b.pos) }

// Bytes returns the valid region. The slice aliases the buffer.
func (b *WriteBuffer) Bytes() []byte { return b.data[:b.limit] }

// Reset empties the buffer but keeps its storage.
func (b *WriteBuffer) Reset() {
	clear(b.data[:b.limit])
	b.pos = 0
	b.limit = 0
}

// ensure makes room for n bytes at the cursor. Capacity grows to
// max(needed, capacity*growth) and the growth factor doubles on every
// reallocation, up to maxGrowth.
func (b *WriteBuffer) ensure(n int) {
	need := b.pos + n
	if need <= len(b.data) {
		return
	}
	newCap := len(b.data) * b.growth
	if newCap < need {
		newCap = need
	}
	if b.growth < maxGrowth {
		b.growth *= 2
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.limit])
	b.data = grown
}

func (b *WriteBuffer) touch() {
	if b.pos > b.limit {
		b.limit = b.pos
	}
}

func (b *WriteBuffer) PutByte(v byte) {
	b.ensure(1)
	b.data[b.pos] = v
	b.pos++
	b.touch()
}

// Write copies p at the cursor. It never fails.
func (b *WriteBuffer) Write(p []byte) (int, error) {
	b.ensure(len(p))
	copy(b.data[b.pos:], p)
	b.pos += len(p)
	b.touch()
	return len(p), nil
}

// WriteAt overwrites bytes at off without moving the cursor.
func (b *WriteBuffer) WriteAt(p []byte, off int64) (int, error) {
	save := b.pos
	b.pos = int(off)
	n, err := b.Write(p)
	b.pos = save
	return n, err
}

// WriteTo writes the valid region to w.
func (b *WriteBuffer) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(b.data[:b.limit])
	return int64(n), err
}

// ByteEncode writes n seven bits at a time, least significant group first,
// with bit 7 set on every byte but the last. Zero is a single zero byte.
func (b *WriteBuffer) ByteEncode(n uint64) int {
	b.ensure(MaxEncodedLen)
	written := 0
	for {
		c := byte(n & 0x7f)
		n >>= 7
		if n != 0 {
			c |= 0x80
		}
		b.data[b.pos] = c
		b.pos++
		written++
		if n == 0 {
			break
		}
	}
	b.touch()
	return written
}

// ByteEncodeInt encodes a signed value, which must not be negative.
func (b *WriteBuffer) ByteEncodeInt(n int64) (int, error) {
	if n < 0 {
		return 0, lxerrors.Newf(lxerrors.ErrNegativeValue, "byte encode", "%d", n)
	}
	return b.ByteEncode(uint64(n)), nil
}

// PutFixed packs n big-endian into exactly nBytes bytes.
func (b *WriteBuffer) PutFixed(n uint64, nBytes int) {
	b.ensure(nBytes)
	for i := 0; i < nBytes; i++ {
		b.data[b.pos+i] = byte(n >> (8 * (nBytes - 1 - i)))
	}
	b.pos += nBytes
	b.touch()
}

func (b *WriteBuffer) PutInt32(v int32) { b.PutFixed(uint64(uint32(v)), 4) }

func (b *WriteBuffer) PutInt64(v int64) { b.PutFixed(uint64(v), 8) }

// PutString writes the byte length of s followed by its UTF-8 bytes and
// returns the number of bytes written.
func (b *WriteBuffer) PutString(s string) int {
	n := b.ByteEncode(uint64(len(s)))
	b.ensure(len(s))
	copy(b.data[b.pos:], s)
	b.pos += len(s)
	b.touch()
	return n + len(s)
}

// SetBit sets bit i of the bitset that starts at byte 0 of the buffer,
// growing the buffer when needed. The cursor is not moved.
func (b *WriteBuffer) SetBit(i int) {
	idx := i >> 3
	if idx >= b.limit {
		save := b.pos
		b.pos = b.limit
		b.ensure(idx + 1 - b.limit)
		b.pos = idx + 1
		b.touch()
		b.pos = save
	}
	b.data[idx] |= 1 << (i & 7)
}

// TestBit reports whether bit i of the buffer's bitset is set.
func (b *WriteBuffer) TestBit(i int) bool {
	idx := i >> 3
	if idx >= b.limit {
		return false
	}
	return b.data[idx]&(1<<(i&7)) != 0
}

// Reader returns a read view over the valid region. The view shares storage;
// writing to b afterwards leaves the view undefined.
func (b *WriteBuffer) Reader() ReadBuffer {
	return ReadBuffer{data: b.data[:b.limit]}
}

// EncodedLen reports how many bytes ByteEncode uses for n.
func EncodedLen(n uint64) int {
	l := 1
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}
