package field

import (
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Absent marks a structure the field does not have.
const Absent int64 = -1

// HeaderSize is the encoded size of a Header.
const HeaderSize = 3*4 + NumDictKinds*8 + 5*8

// Header locates every structure of one field inside the partition's
// dictionary file. All offsets are absolute.
type Header struct {
	FieldID  int32
	MaxDocID uint32
	Dicts    [NumDictKinds]int64

	TokenBigram  int64
	SavedBigram  int64
	DTVPos       int64
	DTV          int64
	VectorLength int64
}

// NewHeader returns a header with every structure absent.
func NewHeader(fieldID int32) Header {
	h := Header{
		FieldID:      fieldID,
		TokenBigram:  Absent,
		SavedBigram:  Absent,
		DTVPos:       Absent,
		DTV:          Absent,
		VectorLength: Absent,
	}
	for i := range h.Dicts {
		h.Dicts[i] = Absent
	}
	return h
}

// Has reports whether the dictionary of kind k was written.
func (h *Header) Has(k DictKind) bool {
	return k >= 0 && k < NumDictKinds && h.Dicts[k] != Absent
}

func (h *Header) Encode() []byte {
	b := buffer.NewWriteBuffer(HeaderSize)
	b.PutInt32(h.FieldID)
	b.PutInt32(int32(h.MaxDocID))
	b.PutInt32(NumDictKinds)
	for _, off := range h.Dicts {
		b.PutInt64(off)
	}
	b.PutInt64(h.TokenBigram)
	b.PutInt64(h.SavedBigram)
	b.PutInt64(h.DTVPos)
	b.PutInt64(h.DTV)
	b.PutInt64(h.VectorLength)
	return b.Bytes()
}

func DecodeHeader(r *buffer.ReadBuffer) (Header, error) {
	if r.Remaining() < HeaderSize {
		return Header{}, lxerrors.Newf(lxerrors.ErrCorrupt, "decode field header", "%d bytes", r.Remaining())
	}
	var h Header
	h.FieldID = r.GetInt32()
	h.MaxDocID = uint32(r.GetInt32())
	if n := r.GetInt32(); n != NumDictKinds {
		return Header{}, lxerrors.Newf(lxerrors.ErrCorrupt, "decode field header", "%d dictionary kinds", n)
	}
	for i := range h.Dicts {
		h.Dicts[i] = r.GetInt64()
	}
	h.TokenBigram = r.GetInt64()
	h.SavedBigram = r.GetInt64()
	h.DTVPos = r.GetInt64()
	h.DTV = r.GetInt64()
	h.VectorLength = r.GetInt64()
	return h, nil
}

// ReserveHeader writes a placeholder header to out and returns its offset.
func ReserveHeader(out buffer.Output, fieldID int32) (int64, error) {
	off := out.Offset()
	h := NewHeader(fieldID)
	if _, err := out.Write(h.Encode()); err != nil {
		return 0, lxerrors.IO("reserve field header", err)
	}
	return off, nil
}

// Patch returns the deferred rewrite of the header reserved at off.
func (h *Header) Patch(off int64) buffer.Patch {
	return buffer.Patch{Offset: off, Data: h.Encode()}
}
