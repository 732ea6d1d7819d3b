package postings

import (
	"fmt"

	"github.com/x448/float16"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Encode appends the channel bytes to bufs, one buffer per channel. IDs are
// delta coded from zero. The postings are not modified.
func (p *Postings) Encode(bufs []*buffer.WriteBuffer) error {
	if err := p.checkReadable("encode"); err != nil {
		return err
	}
	if len(bufs) < p.kind.Channels() {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "encode", "%s postings need %d channels, got %d", p.kind, p.kind.Channels(), len(bufs))
	}
	if p.kind == KindDFO && !p.hasPositions {
		return lxerrors.New(lxerrors.ErrInvalidInput, "encode", "dfo postings without positions")
	}
	main := bufs[0]
	var prev uint32
	for i, id := range p.ids {
		main.ByteEncode(uint64(id - prev))
		prev = id
		switch p.kind {
		case KindID:
		case KindIDFreq:
			main.ByteEncode(uint64(p.freqs[i]))
		case KindDFO:
			main.ByteEncode(uint64(p.freqs[i]))
			encodePositions(bufs[1], p.pos[i], p.fields[i])
		case KindVector:
			main.ByteEncode(uint64(p.freqs[i]))
			main.PutFixed(uint64(float16.Fromfloat32(p.weights[i]).Bits()), 2)
		}
	}
	return nil
}

func encodePositions(b *buffer.WriteBuffer, pos []uint32, fields []byte) {
	b.ByteEncode(uint64(len(pos)))
	var prev uint32
	for _, v := range pos {
		b.ByteEncode(uint64(v - prev))
		prev = v
	}
	b.ByteEncode(uint64(len(fields)))
	b.Write(fields)
}

// Write encodes the postings to outs, records where each channel's bytes
// landed and releases the in-memory columns. Statistics stay available.
func (p *Postings) Write(outs []buffer.Output) (offsets, sizes []int64, err error) {
	nch := p.kind.Channels()
	bufs := make([]*buffer.WriteBuffer, nch)
	for c := range bufs {
		bufs[c] = buffer.NewWriteBuffer(len(p.ids)*3 + 16)
	}
	if err := p.Encode(bufs); err != nil {
		return nil, nil, err
	}
	offsets = make([]int64, nch)
	sizes = make([]int64, nch)
	for c := 0; c < nch; c++ {
		offsets[c] = outs[c].Offset()
		if _, err := outs[c].Write(bufs[c].Bytes()); err != nil {
			return nil, nil, fmt.Errorf("writing %s postings channel %d: %w", p.kind, c, err)
		}
		sizes[c] = int64(bufs[c].Limit())
	}
	p.release()
	return offsets, sizes, nil
}

func (p *Postings) release() {
	p.ids, p.freqs, p.pos, p.fields, p.weights = nil, nil, nil, nil, nil
	p.state = StateWritten
}

// Decode materialises n postings of the given kind. chans[0] is required;
// for DFO postings chans[1] is decoded only when present.
func Decode(kind Kind, n int, chans []buffer.ReadBuffer) *Postings {
	p := &Postings{kind: kind, state: StateLoaded}
	p.ids = make([]uint32, n)
	if kind.HasFreq() {
		p.freqs = make([]uint32, n)
	}
	if kind == KindVector {
		p.weights = make([]float32, n)
	}
	main := chans[0].Duplicate()
	var prev uint32
	for i := 0; i < n; i++ {
		prev += main.ByteDecode32()
		p.ids[i] = prev
		if p.freqs != nil {
			p.freqs[i] = main.ByteDecode32()
		}
		if kind == KindVector {
			p.weights[i] = float16.Frombits(uint16(main.GetFixed(2))).Float32()
		}
	}
	if kind == KindDFO {
		p.pos = make([][]uint32, n)
		p.fields = make([][]byte, n)
		if len(chans) > 1 {
			decodePositions(p, chans[1].Duplicate())
			p.hasPositions = true
		}
	}
	p.recount()
	return p
}

func decodePositions(p *Postings, b buffer.ReadBuffer) {
	for i := range p.ids {
		np := int(b.ByteDecode())
		ps := make([]uint32, np)
		var prev uint32
		for j := range ps {
			prev += b.ByteDecode32()
			ps[j] = prev
		}
		p.pos[i] = ps
		nf := int(b.ByteDecode())
		if nf > 0 {
			p.fields[i] = b.GetBytes(nf)
		}
	}
}

// LoadPositions decodes the positional channel into postings that were
// decoded from channel 0 only.
func (p *Postings) LoadPositions(ch buffer.ReadBuffer) {
	if p.kind != KindDFO || p.hasPositions {
		return
	}
	decodePositions(p, ch.Duplicate())
	p.hasPositions = true
}
