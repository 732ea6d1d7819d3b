package buffer

// ReadBuffer is a cursor over an immutable byte view. Copies of a ReadBuffer
// share storage but not cursor state, so Duplicate is a plain value copy.
// Reading past Limit panics.
type ReadBuffer struct {
	data []byte
	pos  int
}

// NewReadBuffer wraps b without copying.
func NewReadBuffer(b []byte) ReadBuffer {
	return ReadBuffer{data: b}
}

func (r *ReadBuffer) Position() int { return r.pos }

func (r *ReadBuffer) SetPosition(pos int) {
	if pos < 0 || pos > len(r.data) {
		panic("buffer: position out of range")
	}
	r.pos = pos
}

func (r *ReadBuffer) Limit() int { return len(r.data) }

func (r *ReadBuffer) Remaining() int { return len(r.data) - r.pos }

// Bytes returns the whole view.
func (r *ReadBuffer) Bytes() []byte { return r.data }

// Duplicate returns a view over the same storage with an independent cursor
// starting at the current position.
func (r *ReadBuffer) Duplicate() ReadBuffer {
	return ReadBuffer{data: r.data, pos: r.pos}
}

// Slice returns a view of n bytes starting at pos, with its own bounds and a
// cursor at zero.
func (r *ReadBuffer) Slice(pos, n int) ReadBuffer {
	return ReadBuffer{data: r.data[pos : pos+n : pos+n]}
}

func (r *ReadBuffer) Get() byte {
	v := r.data[r.pos]
	r.pos++
	return v
}

// GetBytes returns the next n bytes without copying.
func (r *ReadBuffer) GetBytes(n int) []byte {
	v := r.data[r.pos : r.pos+n : r.pos+n]
	r.pos += n
	return v
}

func (r *ReadBuffer) Skip(n int) {
	r.SetPosition(r.pos + n)
}

// ByteDecode reads a value written by WriteBuffer.ByteEncode.
func (r *ReadBuffer) ByteDecode() uint64 {
	var n uint64
	var shift uint
	for {
		c := r.data[r.pos]
		r.pos++
		n |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return n
		}
		shift += 7
	}
}

// ByteDecode32 reads a byte-encoded value that must fit in 32 bits.
func (r *ReadBuffer) ByteDecode32() uint32 {
	return uint32(r.ByteDecode())
}

// SkipEncoded advances past one byte-encoded value.
func (r *ReadBuffer) SkipEncoded() {
	for r.data[r.pos]&0x80 != 0 {
		r.pos++
	}
	r.pos++
}

// GetFixed reads an nBytes big-endian value.
func (r *ReadBuffer) GetFixed(nBytes int) uint64 {
	var n uint64
	for i := 0; i < nBytes; i++ {
		n = n<<8 | uint64(r.data[r.pos+i])
	}
	r.pos += nBytes
	return n
}

func (r *ReadBuffer) GetInt32() int32 { return int32(uint32(r.GetFixed(4))) }

func (r *ReadBuffer) GetInt64() int64 { return int64(r.GetFixed(8)) }

// GetString reads a string written by PutString.
func (r *ReadBuffer) GetString() string {
	n := int(r.ByteDecode())
	s := string(r.data[r.pos : r.pos+n])
	r.pos += n
	return s
}

// TestBit reports whether bit i of the bitset starting at byte 0 of the view
// is set. Bits beyond the view are clear.
func (r *ReadBuffer) TestBit(i int) bool {
	idx := i >> 3
	if idx >= len(r.data) {
		return false
	}
	return r.data[idx]&(1<<(i&7)) != 0
}

// SetBits returns the indices of all set bits in ascending order.
func (r *ReadBuffer) SetBits() []int {
	var out []int
	for idx, c := range r.data {
		for bit := 0; c != 0; bit++ {
			if c&1 != 0 {
				out = append(out, idx*8+bit)
			}
			c >>= 1
		}
	}
	return out
}
