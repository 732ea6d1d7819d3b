package dictionary

import (
	"cmp"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Disk is a read-only dictionary section. Only the header and the page
// index are held in memory; record pages are read on demand through the
// page cache and the ID index is binary-searched with positional reads.
// A Disk is safe for concurrent use.
type Disk[N cmp.Ordered] struct {
	ch    buffer.Channel
	base  int64
	hdr   sectionHeader
	codec NameCodec[N]
	pages []int64
	src   entry.Source
	cache *PageCache
	owner uint64
}

// Open reads the section header at base. src serves postings bytes for the
// entries the dictionary returns.
func Open[N cmp.Ordered](ch buffer.Channel, base int64, codec NameCodec[N], src entry.Source, cache *PageCache) (*Disk[N], error) {
	hb, err := buffer.Read(ch, base, HeaderSize)
	if err != nil {
		return nil, err
	}
	hdr, err := decodeHeader(&hb)
	if err != nil {
		return nil, err
	}
	if hdr.codec != codec.ID() {
		return nil, lxerrors.Newf(lxerrors.ErrCorrupt, "open dictionary", "codec %s, want %s", hdr.codec, codec.ID())
	}
	pb, err := buffer.Read(ch, base+hdr.pageIndex, hdr.pages*8)
	if err != nil {
		return nil, err
	}
	pages := make([]int64, hdr.pages)
	for i := range pages {
		pages[i] = pb.GetInt64()
	}
	if cache == nil {
		cache = NewPageCache(0, nil)
	}
	return &Disk[N]{
		ch:    ch,
		base:  base,
		hdr:   hdr,
		codec: codec,
		pages: pages,
		src:   src,
		cache: cache,
		owner: newOwner(),
	}, nil
}

func (d *Disk[N]) Kind() entry.Kind { return d.hdr.kind }

// Len is the number of entries.
func (d *Disk[N]) Len() int { return d.hdr.entries }

// MaxID is the largest entry ID.
func (d *Disk[N]) MaxID() uint32 { return d.hdr.maxID }

// Size is the section length in bytes.
func (d *Disk[N]) Size() int64 { return d.hdr.end }

// Close releases the dictionary's cached pages.
func (d *Disk[N]) Close() { d.cache.evict(d.owner) }

func (d *Disk[N]) page(i int) (buffer.ReadBuffer, error) {
	start := d.pages[i]
	end := d.hdr.pageIndex
	if i+1 < len(d.pages) {
		end = d.pages[i+1]
	}
	data, err := d.cache.get(pageKey{owner: d.owner, page: i}, func() ([]byte, error) {
		b, err := buffer.Read(d.ch, d.base+start, int(end-start))
		if err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	})
	if err != nil {
		return buffer.ReadBuffer{}, err
	}
	return buffer.NewReadBuffer(data), nil
}

func (d *Disk[N]) pageLen(i int) int {
	return min(d.hdr.pageSize, d.hdr.entries-i*d.hdr.pageSize)
}

func (d *Disk[N]) skip(r *buffer.ReadBuffer, n int) {
	for ; n > 0; n-- {
		d.codec.Skip(r)
		entry.SkipInfo(d.hdr.kind, r)
	}
}

func (d *Disk[N]) decode(r *buffer.ReadBuffer) (*entry.Entry[N], error) {
	name := d.codec.Decode(r)
	return entry.DecodeInfo(d.hdr.kind, name, r, d.src)
}

// Seek returns the ordinal of the first entry whose name is >= name and
// whether that entry's name equals name.
func (d *Disk[N]) Seek(name N) (int, bool, error) {
	var ferr error
	p := sort.Search(len(d.pages), func(i int) bool {
		if ferr != nil {
			return true
		}
		r, err := d.page(i)
		if err != nil {
			ferr = err
			return true
		}
		return cmp.Compare(d.codec.Decode(&r), name) > 0
	}) - 1
	if ferr != nil {
		return 0, false, ferr
	}
	if p < 0 {
		return 0, false, nil
	}
	r, err := d.page(p)
	if err != nil {
		return 0, false, err
	}
	n := d.pageLen(p)
	for j := 0; j < n; j++ {
		c := cmp.Compare(d.codec.Decode(&r), name)
		if c >= 0 {
			return p*d.hdr.pageSize + j, c == 0, nil
		}
		entry.SkipInfo(d.hdr.kind, &r)
	}
	return p*d.hdr.pageSize + n, false, nil
}

// At returns the entry at the given ordinal, or nil when out of range.
func (d *Disk[N]) At(ordinal int) (*entry.Entry[N], error) {
	if ordinal < 0 || ordinal >= d.hdr.entries {
		return nil, nil
	}
	p := ordinal / d.hdr.pageSize
	r, err := d.page(p)
	if err != nil {
		return nil, err
	}
	d.skip(&r, ordinal%d.hdr.pageSize)
	return d.decode(&r)
}

// Get returns the entry named name, or nil.
func (d *Disk[N]) Get(name N) (*entry.Entry[N], error) {
	ord, ok, err := d.Seek(name)
	if err != nil || !ok {
		return nil, err
	}
	return d.At(ord)
}

// GetByID returns the entry with the given ID, or nil.
func (d *Disk[N]) GetByID(id uint32) (*entry.Entry[N], error) {
	var ferr error
	read := func(i int) idOrdinal {
		b, err := buffer.Read(d.ch, d.base+d.hdr.idIndex+int64(i)*8, 8)
		if err != nil {
			ferr = err
			return idOrdinal{}
		}
		return idOrdinal{id: uint32(b.GetFixed(4)), ordinal: uint32(b.GetFixed(4))}
	}
	i := sort.Search(d.hdr.entries, func(i int) bool {
		return ferr != nil || read(i).id >= id
	})
	if ferr != nil {
		return nil, ferr
	}
	if i >= d.hdr.entries {
		return nil, nil
	}
	p := read(i)
	if ferr != nil {
		return nil, ferr
	}
	if p.id != id {
		return nil, nil
	}
	return d.At(int(p.ordinal))
}

// All iterates every entry in name order.
func (d *Disk[N]) All() *Cursor[N] {
	return &Cursor[N]{d: d, page: -1}
}

// From iterates entries whose name is >= name.
func (d *Disk[N]) From(name N) *Cursor[N] {
	ord, _, err := d.Seek(name)
	return &Cursor[N]{d: d, ord: ord, page: -1, err: err}
}

// Range iterates entries with names between lo and hi. The inclusive flags
// select closed or open bounds.
func (d *Disk[N]) Range(lo, hi N, loInclusive, hiInclusive bool) *Cursor[N] {
	ord, exact, err := d.Seek(lo)
	if exact && !loInclusive {
		ord++
	}
	return &Cursor[N]{
		d:    d,
		ord:  ord,
		page: -1,
		err:  err,
		stop: func(name N) bool {
			c := cmp.Compare(name, hi)
			if hiInclusive {
				return c > 0
			}
			return c >= 0
		},
	}
}

// Cursor walks a Disk dictionary in name order.
type Cursor[N cmp.Ordered] struct {
	d    *Disk[N]
	ord  int
	page int
	r    buffer.ReadBuffer
	stop func(N) bool
	cur  *entry.Entry[N]
	err  error
	done bool
}

// Next advances to the next entry.
func (c *Cursor[N]) Next() bool {
	if c.done || c.err != nil || c.ord >= c.d.hdr.entries {
		return false
	}
	if p := c.ord / c.d.hdr.pageSize; p != c.page {
		r, err := c.d.page(p)
		if err != nil {
			c.err = err
			return false
		}
		c.d.skip(&r, c.ord%c.d.hdr.pageSize)
		c.r, c.page = r, p
	}
	e, err := c.d.decode(&c.r)
	if err != nil {
		c.err = err
		return false
	}
	if c.stop != nil && c.stop(e.Name) {
		c.done = true
		return false
	}
	c.cur = e
	c.ord++
	return true
}

// Entry is the current entry.
func (c *Cursor[N]) Entry() *entry.Entry[N] { return c.cur }

// Ordinal is the position of the current entry.
func (c *Cursor[N]) Ordinal() int { return c.ord - 1 }

func (c *Cursor[N]) Err() error { return c.err }
