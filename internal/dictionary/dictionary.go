// Package dictionary holds term dictionaries: the in-memory Dictionary that
// accumulates entries during indexing, the section format it dumps to and
// the Disk dictionary that reads a section back with paged binary search.
package dictionary

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
)

// Renumber selects how entry IDs are assigned at dump time.
type Renumber uint8

const (
	// RenumberNone keeps indexing-time IDs.
	RenumberNone Renumber = iota
	// RenumberSorted assigns 1..n in sorted name order.
	RenumberSorted
	// RenumberMapped passes each entry ID through DumpOptions.EntryMap. Used
	// by dictionaries whose entry ID is a document ID.
	RenumberMapped
)

// DumpOptions controls Dictionary.Dump.
type DumpOptions struct {
	Renumber Renumber
	// EntryMap renumbers entry IDs under RenumberMapped; entries mapped to
	// postings.Deleted are dropped.
	EntryMap postings.IDMap
	// PostingsMap is applied to every entry's postings before writing.
	PostingsMap postings.IDMap
	PageSize    int
}

// DumpResult describes a finished dump.
type DumpResult[N cmp.Ordered] struct {
	// Entries are the persisted entries in name order with their final IDs.
	Entries []*entry.Entry[N]
	// IDMap maps indexing-time IDs to final IDs. Nil under RenumberNone.
	IDMap   postings.IDMap
	Base    int64
	Patches []buffer.Patch

	kind entry.Kind
}

// NewResult wraps entries that already carry their final IDs, in name
// order, so they can be written like a prepared dump.
func NewResult[N cmp.Ordered](kind entry.Kind, entries []*entry.Entry[N]) *DumpResult[N] {
	return &DumpResult[N]{Entries: entries, kind: kind}
}

// Dictionary is the indexing-time name to entry map.
type Dictionary[N cmp.Ordered] struct {
	kind    entry.Kind
	entries map[N]*entry.Entry[N]
	order   []*entry.Entry[N]
	nextID  uint32
}

// New returns an empty dictionary of entries of the given kind.
func New[N cmp.Ordered](kind entry.Kind) *Dictionary[N] {
	return &Dictionary[N]{
		kind:    kind,
		entries: make(map[N]*entry.Entry[N]),
		nextID:  1,
	}
}

func (d *Dictionary[N]) Kind() entry.Kind { return d.kind }

func (d *Dictionary[N]) Len() int { return len(d.entries) }

// Put returns the entry for name, creating it with the next sequential ID.
func (d *Dictionary[N]) Put(name N) *entry.Entry[N] {
	if e, ok := d.entries[name]; ok {
		return e
	}
	e := entry.New(d.kind, name, d.nextID)
	d.nextID++
	d.entries[name] = e
	d.order = append(d.order, e)
	return e
}

// PutID returns the entry for name, creating it with the given ID. Used
// where the entry ID is assigned outside the dictionary.
func (d *Dictionary[N]) PutID(name N, id uint32) *entry.Entry[N] {
	if e, ok := d.entries[name]; ok {
		return e
	}
	e := entry.New(d.kind, name, id)
	if id >= d.nextID {
		d.nextID = id + 1
	}
	d.entries[name] = e
	d.order = append(d.order, e)
	return e
}

// Get returns the entry for name or nil.
func (d *Dictionary[N]) Get(name N) *entry.Entry[N] { return d.entries[name] }

// MaxID is the largest ID handed out so far.
func (d *Dictionary[N]) MaxID() uint32 { return d.nextID - 1 }

// Sorted returns the entries in name order.
func (d *Dictionary[N]) Sorted() []*entry.Entry[N] {
	out := slices.Clone(d.order)
	slices.SortFunc(out, func(a, b *entry.Entry[N]) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// Dump prepares and writes the dictionary in one step.
func (d *Dictionary[N]) Dump(dict buffer.Output, outs []buffer.Output, codec NameCodec[N], opts DumpOptions) (*DumpResult[N], error) {
	res, err := d.Prepare(opts)
	if err != nil {
		return nil, err
	}
	if err := res.Write(dict, outs, codec, opts.PageSize); err != nil {
		return nil, err
	}
	return res, nil
}

// Prepare runs the first half of a dump. Entries are sorted by name.
// Unused entries, entries whose ID maps to Deleted and entries left empty
// by PostingsMap are dropped. Survivors receive their final IDs (1..n in
// name order under RenumberSorted). Their postings stay in memory until
// Write, so callers may derive secondary structures from them first.
func (d *Dictionary[N]) Prepare(opts DumpOptions) (*DumpResult[N], error) {
	sorted := d.Sorted()
	live := make([]*entry.Entry[N], 0, len(sorted))
	newIDs := make([]uint32, 0, len(sorted))
	for _, e := range sorted {
		if !e.Used() {
			continue
		}
		id := e.ID
		if opts.Renumber == RenumberMapped {
			if id = opts.EntryMap.Map(e.ID); id == postings.Deleted {
				continue
			}
		}
		if err := e.Remap(opts.PostingsMap); err != nil {
			return nil, fmt.Errorf("remapping %v: %w", e.Name, err)
		}
		if e.Empty() {
			continue
		}
		live = append(live, e)
		newIDs = append(newIDs, id)
	}

	res := &DumpResult[N]{Entries: live, kind: d.kind}
	switch opts.Renumber {
	case RenumberSorted:
		res.IDMap = make(postings.IDMap, int(d.MaxID())+1)
		for i, e := range live {
			res.IDMap[e.ID] = uint32(i + 1)
			e.ID = uint32(i + 1)
		}
	case RenumberMapped:
		if opts.EntryMap != nil {
			res.IDMap = make(postings.IDMap, int(d.MaxID())+1)
		}
		for i, e := range live {
			if res.IDMap != nil {
				res.IDMap[e.ID] = newIDs[i]
			}
			e.ID = newIDs[i]
		}
	}
	return res, nil
}

// Write runs the second half of a dump: postings go to outs and the
// section to dict. Base and Patches are set on success.
func (res *DumpResult[N]) Write(dict buffer.Output, outs []buffer.Output, codec NameCodec[N], pageSize int) error {
	sw, err := NewSectionWriter(dict, res.kind, codec, pageSize)
	if err != nil {
		return err
	}
	for _, e := range res.Entries {
		ok, err := e.WritePostings(outs, nil)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := sw.Add(e); err != nil {
			return err
		}
	}
	patches, err := sw.Finish()
	if err != nil {
		return err
	}
	res.Base = sw.Base()
	res.Patches = patches
	return nil
}

// Reset drops every entry.
func (d *Dictionary[N]) Reset() {
	d.entries = make(map[N]*entry.Entry[N])
	d.order = nil
	d.nextID = 1
}
