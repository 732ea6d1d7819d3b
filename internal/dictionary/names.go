package dictionary

import (
	"math"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
)

// NameCodec converts dictionary names to and from their on-disk form.
type NameCodec[N any] interface {
	ID() CodecID
	Encode(b *buffer.WriteBuffer, name N) error
	Decode(b *buffer.ReadBuffer) N
	Skip(b *buffer.ReadBuffer)
}

// CodecID identifies a name codec in a dictionary header.
type CodecID int32

const (
	CodecString CodecID = iota + 1
	CodecInt
	CodecFloat
	CodecDate
)

func (c CodecID) String() string {
	switch c {
	case CodecString:
		return "string"
	case CodecInt:
		return "int"
	case CodecFloat:
		return "float"
	case CodecDate:
		return "date"
	default:
		return "unknown"
	}
}

// Strings encodes names as a byte length followed by UTF-8 bytes.
type Strings struct{}

func (Strings) ID() CodecID { return CodecString }

func (Strings) Encode(b *buffer.WriteBuffer, name string) error {
	b.PutString(name)
	return nil
}

func (Strings) Decode(b *buffer.ReadBuffer) string { return b.GetString() }

func (Strings) Skip(b *buffer.ReadBuffer) { b.Skip(int(b.ByteDecode())) }

// Ints encodes int64 names zigzag-mapped so negative values stay encodable.
type Ints struct{}

func (Ints) ID() CodecID { return CodecInt }

func (Ints) Encode(b *buffer.WriteBuffer, name int64) error {
	b.ByteEncode(zigzag(name))
	return nil
}

func (Ints) Decode(b *buffer.ReadBuffer) int64 { return unzigzag(b.ByteDecode()) }

func (Ints) Skip(b *buffer.ReadBuffer) { b.SkipEncoded() }

// Dates are int64 epoch milliseconds encoded like Ints.
type Dates struct{ Ints }

func (Dates) ID() CodecID { return CodecDate }

// DateName converts t to its dictionary name.
func DateName(t time.Time) int64 { return t.UnixMilli() }

// NameDate converts a date name back to a UTC time.
func NameDate(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// Floats encodes float64 names as 8 fixed bytes.
type Floats struct{}

func (Floats) ID() CodecID { return CodecFloat }

func (Floats) Encode(b *buffer.WriteBuffer, name float64) error {
	b.PutFixed(math.Float64bits(name), 8)
	return nil
}

func (Floats) Decode(b *buffer.ReadBuffer) float64 { return math.Float64frombits(b.GetFixed(8)) }

func (Floats) Skip(b *buffer.ReadBuffer) { b.Skip(8) }

func zigzag(v int64) uint64 { return uint64(v<<1) ^ uint64(v>>63) }

func unzigzag(u uint64) int64 { return int64(u>>1) ^ -int64(u&1) }
