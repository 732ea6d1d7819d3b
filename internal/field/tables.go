package field

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// maxEncodedLen32 is the longest byte encoding of a uint32.
const maxEncodedLen32 = 5

// dtvBuilder collects, per document, the IDs of its saved values. Value
// IDs must be added in ascending order.
type dtvBuilder struct {
	docs [][]uint32
}

func newDTVBuilder(maxDoc uint32) *dtvBuilder {
	return &dtvBuilder{docs: make([][]uint32, int(maxDoc)+1)}
}

func (d *dtvBuilder) add(doc, valueID uint32) {
	if int(doc) >= len(d.docs) {
		return
	}
	d.docs[doc] = append(d.docs[doc], valueID)
}

// write emits the records followed by the position table. Record 0 is the
// shared empty record; every document without values points at it. A
// record is the value count followed by the delta coded value IDs.
func (d *dtvBuilder) write(out buffer.Output, bufSize int) (records, positions int64, err error) {
	records = out.Offset()
	recs := buffer.NewWriteBuffer(bufSize)
	pos := buffer.NewWriteBuffer(8 * len(d.docs))
	recs.ByteEncode(0)
	for _, ids := range d.docs {
		if len(ids) == 0 {
			pos.PutInt64(0)
			continue
		}
		pos.PutInt64(int64(recs.Position()))
		recs.ByteEncode(uint64(len(ids)))
		var last uint32
		for _, id := range ids {
			recs.ByteEncode(uint64(id - last))
			last = id
		}
	}
	if _, err := recs.WriteTo(out); err != nil {
		return 0, 0, lxerrors.IO("write dtv records", err)
	}
	positions = out.Offset()
	if _, err := pos.WriteTo(out); err != nil {
		return 0, 0, lxerrors.IO("write dtv positions", err)
	}
	return records, positions, nil
}

// readDTV returns the saved value IDs of doc. h.DTV records end where the
// position table starts.
func readDTV(ch buffer.Channel, h *Header, doc uint32) ([]uint32, error) {
	if doc > h.MaxDocID {
		return nil, nil
	}
	pb, err := buffer.Read(ch, h.DTVPos+8*int64(doc), 8)
	if err != nil {
		return nil, err
	}
	off := h.DTV + pb.GetInt64()
	end := h.DTVPos
	window := min(end-off, int64(buffer.MaxEncodedLen))
	rb, err := buffer.Read(ch, off, int(window))
	if err != nil {
		return nil, err
	}
	n := rb.ByteDecode()
	if n == 0 {
		return nil, nil
	}
	need := int64(rb.Position()) + int64(n)*maxEncodedLen32
	rb, err = buffer.Read(ch, off, int(min(end-off, need)))
	if err != nil {
		return nil, err
	}
	rb.SkipEncoded()
	ids := make([]uint32, n)
	var last uint32
	for i := range ids {
		last += rb.ByteDecode32()
		ids[i] = last
	}
	return ids, nil
}

// lengthTable accumulates document vector lengths.
type lengthTable []float32

func newLengthTable(maxDoc uint32) lengthTable { return make(lengthTable, int(maxDoc)+1) }

func (t lengthTable) set(doc uint32, weights []float32) {
	if int(doc) >= len(t) {
		return
	}
	var sum float64
	for _, w := range weights {
		sum += float64(w) * float64(w)
	}
	t[doc] = float32(math.Sqrt(sum))
}

func (t lengthTable) write(out buffer.Output) (int64, error) {
	off := out.Offset()
	b := buffer.NewWriteBuffer(4 * len(t))
	for _, l := range t {
		b.PutFixed(uint64(math.Float32bits(l)), 4)
	}
	if _, err := b.WriteTo(out); err != nil {
		return 0, lxerrors.IO("write vector lengths", err)
	}
	return off, nil
}

func readLength(ch buffer.Channel, h *Header, doc uint32) (float32, error) {
	if doc > h.MaxDocID {
		return 0, nil
	}
	b, err := buffer.Read(ch, h.VectorLength+4*int64(doc), 4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(uint32(b.GetFixed(4))), nil
}
