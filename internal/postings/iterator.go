package postings

import "sort"

// Iterator is a forward-only cursor over postings in ascending ID order.
type Iterator interface {
	// Next advances the iterator and returns true if another ID was found.
	Next() bool
	// Seek advances to the first ID >= id and reports whether one exists.
	Seek(id uint32) bool
	// At returns the current ID. Valid only after Next or Seek returned true.
	At() uint32
	// Freq returns the frequency at the current ID (1 for ID-only postings).
	Freq() uint32
	// Positions returns the positions at the current ID, or nil when they
	// were not requested or are not stored.
	Positions() []uint32
	// InField reports whether the current ID occurred in the given field.
	InField(field int) bool
	// Weight returns the feature weight for vector postings.
	Weight() float32
	// Len is the number of IDs the iterator covers.
	Len() int
	// Err returns the last error of the iterator.
	Err() error
}

type listIterator struct {
	p        *Postings
	i        int
	features Features
}

// Iterator returns a cursor over p. The postings must be sealed or loaded.
func (p *Postings) Iterator(f Features) Iterator {
	return &listIterator{p: p, i: -1, features: f}
}

func (it *listIterator) Next() bool {
	if it.i < len(it.p.ids) {
		it.i++
	}
	return it.i < len(it.p.ids)
}

func (it *listIterator) Seek(id uint32) bool {
	if it.i >= len(it.p.ids) {
		return false
	}
	if it.i >= 0 && it.p.ids[it.i] >= id {
		return true
	}
	start := it.i + 1
	ids := it.p.ids[start:]
	it.i = start + sort.Search(len(ids), func(j int) bool { return ids[j] >= id })
	return it.i < len(it.p.ids)
}

func (it *listIterator) At() uint32 { return it.p.ids[it.i] }

func (it *listIterator) Freq() uint32 {
	if it.p.freqs == nil {
		return 1
	}
	return it.p.freqs[it.i]
}

func (it *listIterator) Positions() []uint32 {
	if !it.features.Positions || it.p.pos == nil {
		return nil
	}
	return it.p.pos[it.i]
}

func (it *listIterator) InField(field int) bool {
	if it.p.fields == nil {
		return false
	}
	b := it.p.fields[it.i]
	idx := field >> 3
	if idx >= len(b) {
		return false
	}
	return b[idx]&(1<<(field&7)) != 0
}

func (it *listIterator) Weight() float32 {
	if it.p.weights == nil {
		return 0
	}
	return it.p.weights[it.i]
}

func (it *listIterator) Len() int { return len(it.p.ids) }

func (it *listIterator) Err() error { return nil }

type emptyIterator struct{ err error }

var empty = emptyIterator{}

// Empty returns an iterator with no postings.
func Empty() Iterator { return empty }

// ErrIterator returns an empty iterator that reports err.
func ErrIterator(err error) Iterator { return emptyIterator{err: err} }

func (emptyIterator) Next() bool { return false }
func (emptyIterator) Seek(uint32) bool { return false }
func (emptyIterator) At() uint32 { return 0 }
func (emptyIterator) Freq() uint32 { return 0 }
func (emptyIterator) Positions() []uint32 { return nil }
func (emptyIterator) InField(int) bool { return false }
func (emptyIterator) Weight() float32 { return 0 }
func (emptyIterator) Len() int { return 0 }
func (e emptyIterator) Err() error { return e.err }

// Collect drains it and returns the IDs it produced.
func Collect(it Iterator) []uint32 {
	var ids []uint32
	for it.Next() {
		ids = append(ids, it.At())
	}
	return ids
}
