package dictionary

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Section layout, all header fields fixed-width big-endian and every offset
// relative to the section start:
//
//	magic:u32 kind:i32 codec:i32 entries:i32 maxID:i32 pageSize:i32 pages:i32
//	records:i64 pageIndex:i64 idIndex:i64 end:i64
//	records    name + postings info per entry, ascending by name
//	pageIndex  i64 offset of every page's first record
//	idIndex    (id:u32, ordinal:u32) per entry, ascending by id
const (
	SectionMagic uint32 = 0x4c584431 // "LXD1"
	HeaderSize          = 4 + 6*4 + 4*8

	DefaultPageSize = 64
)

type sectionHeader struct {
	kind      entry.Kind
	codec     CodecID
	entries   int
	maxID     uint32
	pageSize  int
	pages     int
	records   int64
	pageIndex int64
	idIndex   int64
	end       int64
}

func (h *sectionHeader) encode() []byte {
	b := buffer.NewWriteBuffer(HeaderSize)
	b.PutFixed(uint64(SectionMagic), 4)
	b.PutInt32(int32(h.kind))
	b.PutInt32(int32(h.codec))
	b.PutInt32(int32(h.entries))
	b.PutInt32(int32(h.maxID))
	b.PutInt32(int32(h.pageSize))
	b.PutInt32(int32(h.pages))
	b.PutInt64(h.records)
	b.PutInt64(h.pageIndex)
	b.PutInt64(h.idIndex)
	b.PutInt64(h.end)
	return b.Bytes()
}

func decodeHeader(r *buffer.ReadBuffer) (sectionHeader, error) {
	var h sectionHeader
	if magic := uint32(r.GetFixed(4)); magic != SectionMagic {
		return h, lxerrors.Newf(lxerrors.ErrCorrupt, "open dictionary", "bad magic %08x", magic)
	}
	h.kind = entry.Kind(r.GetInt32())
	h.codec = CodecID(r.GetInt32())
	h.entries = int(r.GetInt32())
	h.maxID = uint32(r.GetInt32())
	h.pageSize = int(r.GetInt32())
	h.pages = int(r.GetInt32())
	h.records = r.GetInt64()
	h.pageIndex = r.GetInt64()
	h.idIndex = r.GetInt64()
	h.end = r.GetInt64()
	if !h.kind.Valid() || h.pageSize <= 0 || h.entries < 0 {
		return h, lxerrors.Newf(lxerrors.ErrCorrupt, "open dictionary", "header kind=%d pageSize=%d entries=%d", h.kind, h.pageSize, h.entries)
	}
	return h, nil
}

type idOrdinal struct {
	id      uint32
	ordinal uint32
}

// SectionWriter streams entries, already holding their final IDs and
// written postings, into a dictionary section. The header is reserved on
// creation and returned as a patch by Finish.
type SectionWriter[N cmp.Ordered] struct {
	out     buffer.Output
	codec   NameCodec[N]
	hdr     sectionHeader
	base    int64
	scratch *buffer.WriteBuffer
	pages   []int64
	ids     []idOrdinal
	last    N
	written int64
}

// NewSectionWriter reserves a section header at out's current offset.
func NewSectionWriter[N cmp.Ordered](out buffer.Output, kind entry.Kind, codec NameCodec[N], pageSize int) (*SectionWriter[N], error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	w := &SectionWriter[N]{
		out:     out,
		codec:   codec,
		base:    out.Offset(),
		scratch: buffer.NewWriteBuffer(256),
		hdr:     sectionHeader{kind: kind, codec: codec.ID(), pageSize: pageSize},
	}
	if err := w.write(make([]byte, HeaderSize)); err != nil {
		return nil, err
	}
	w.hdr.records = HeaderSize
	return w, nil
}

// Base is the absolute offset of the section.
func (w *SectionWriter[N]) Base() int64 { return w.base }

func (w *SectionWriter[N]) write(p []byte) error {
	if _, err := w.out.Write(p); err != nil {
		return lxerrors.IO("writing dictionary section", err)
	}
	w.written += int64(len(p))
	return nil
}

// Add appends one entry. Names must arrive in strictly ascending order.
func (w *SectionWriter[N]) Add(e *entry.Entry[N]) error {
	if e.Kind() != w.hdr.kind {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "add entry", "%s entry in %s dictionary", e.Kind(), w.hdr.kind)
	}
	if w.hdr.entries > 0 && cmp.Compare(e.Name, w.last) <= 0 {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "add entry", "name %v not after %v", e.Name, w.last)
	}
	if w.hdr.entries%w.hdr.pageSize == 0 {
		w.pages = append(w.pages, w.written)
	}
	w.scratch.Reset()
	if err := w.codec.Encode(w.scratch, e.Name); err != nil {
		return err
	}
	if err := e.EncodeInfo(w.scratch); err != nil {
		return fmt.Errorf("encoding info for %v: %w", e.Name, err)
	}
	if err := w.write(w.scratch.Bytes()); err != nil {
		return err
	}
	w.ids = append(w.ids, idOrdinal{id: e.ID, ordinal: uint32(w.hdr.entries)})
	w.hdr.maxID = max(w.hdr.maxID, e.ID)
	w.hdr.entries++
	w.last = e.Name
	return nil
}

// Len is the number of entries added so far.
func (w *SectionWriter[N]) Len() int { return w.hdr.entries }

// Finish writes the page and ID indexes and returns the header patch.
func (w *SectionWriter[N]) Finish() ([]buffer.Patch, error) {
	w.hdr.pages = len(w.pages)
	w.hdr.pageIndex = w.written
	w.scratch.Reset()
	for _, off := range w.pages {
		w.scratch.PutInt64(off)
	}
	w.hdr.idIndex = w.hdr.pageIndex + int64(w.scratch.Limit())
	slices.SortFunc(w.ids, func(a, b idOrdinal) int { return cmp.Compare(a.id, b.id) })
	for _, p := range w.ids {
		w.scratch.PutFixed(uint64(p.id), 4)
		w.scratch.PutFixed(uint64(p.ordinal), 4)
	}
	if err := w.write(w.scratch.Bytes()); err != nil {
		return nil, err
	}
	w.hdr.end = w.written
	return []buffer.Patch{{Offset: w.base, Data: w.hdr.encode()}}, nil
}
