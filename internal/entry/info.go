package entry

import (
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Stats is the metadata of one written postings list: its statistics and
// where each channel's bytes live.
type Stats struct {
	N       int
	MaxFDT  uint32
	Total   uint64
	Offsets []int64
	Sizes   []int64
}

// Channels is the number of channels that were written.
func (s *Stats) Channels() int { return len(s.Offsets) }

const (
	flagNameOccurred byte = 1 << iota
	flagPrimary
	flagFolded
)

// EncodeInfo writes the postings info of e: counts, the entry ID and the
// channel offsets and sizes. Bulk postings bytes are never written here.
//
// Layout: n, maxFDT, id, nch, (size, offset)*nch, total. Cased entries
// follow that with a flags byte and, when present, the case-insensitive
// block n, maxFDT, nch, (size, offset)*nch, total.
func (e *Entry[N]) EncodeInfo(b *buffer.WriteBuffer) error {
	main := e.written[0]
	if main == nil {
		main = &Stats{}
	}
	b.ByteEncode(uint64(main.N))
	b.ByteEncode(uint64(main.MaxFDT))
	b.ByteEncode(uint64(e.ID))
	if err := encodeChannels(b, main); err != nil {
		return err
	}
	b.ByteEncode(main.Total)
	if !e.kind.Cased() {
		return nil
	}
	var flags byte
	if e.nameOccurred {
		flags |= flagNameOccurred
	}
	if e.written[0] != nil {
		flags |= flagPrimary
	}
	folded := e.written[1]
	if folded != nil {
		flags |= flagFolded
	}
	b.PutByte(flags)
	if folded == nil {
		return nil
	}
	b.ByteEncode(uint64(folded.N))
	b.ByteEncode(uint64(folded.MaxFDT))
	if err := encodeChannels(b, folded); err != nil {
		return err
	}
	b.ByteEncode(folded.Total)
	return nil
}

func encodeChannels(b *buffer.WriteBuffer, s *Stats) error {
	b.ByteEncode(uint64(len(s.Offsets)))
	for c := range s.Offsets {
		if _, err := b.ByteEncodeInt(s.Sizes[c]); err != nil {
			return err
		}
		if _, err := b.ByteEncodeInt(s.Offsets[c]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeInfo reads postings info written by EncodeInfo and returns an entry
// whose postings are loaded from src on demand.
func DecodeInfo[N any](kind Kind, name N, b *buffer.ReadBuffer, src Source) (*Entry[N], error) {
	e := &Entry[N]{Name: name, kind: kind, src: src}
	main := &Stats{}
	main.N = int(b.ByteDecode())
	main.MaxFDT = b.ByteDecode32()
	e.ID = b.ByteDecode32()
	if err := decodeChannels(b, main); err != nil {
		return nil, err
	}
	main.Total = b.ByteDecode()
	if !kind.Cased() {
		e.written[0] = main
		return e, nil
	}
	flags := b.Get()
	e.nameOccurred = flags&flagNameOccurred != 0
	if flags&flagPrimary != 0 {
		e.written[0] = main
	}
	if flags&flagFolded != 0 {
		folded := &Stats{}
		folded.N = int(b.ByteDecode())
		folded.MaxFDT = b.ByteDecode32()
		if err := decodeChannels(b, folded); err != nil {
			return nil, err
		}
		folded.Total = b.ByteDecode()
		e.written[1] = folded
	}
	return e, nil
}

func decodeChannels(b *buffer.ReadBuffer, s *Stats) error {
	nch := int(b.ByteDecode())
	if nch > 2 {
		return lxerrors.Newf(lxerrors.ErrCorrupt, "decode postings info", "%d channels", nch)
	}
	s.Offsets = make([]int64, nch)
	s.Sizes = make([]int64, nch)
	for c := 0; c < nch; c++ {
		s.Sizes[c] = int64(b.ByteDecode())
		s.Offsets[c] = int64(b.ByteDecode())
	}
	return nil
}

// SkipInfo advances b past one encoded postings info.
func SkipInfo(kind Kind, b *buffer.ReadBuffer) {
	b.SkipEncoded()
	b.SkipEncoded()
	b.SkipEncoded()
	skipChannels(b)
	b.SkipEncoded()
	if !kind.Cased() {
		return
	}
	if b.Get()&flagFolded == 0 {
		return
	}
	b.SkipEncoded()
	b.SkipEncoded()
	skipChannels(b)
	b.SkipEncoded()
}

func skipChannels(b *buffer.ReadBuffer) {
	nch := int(b.ByteDecode())
	for c := 0; c < 2*nch; c++ {
		b.SkipEncoded()
	}
}
