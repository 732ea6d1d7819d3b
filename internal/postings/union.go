package postings

import (
	"math"

	"github.com/bboreham/go-loser"
)

// union walks several iterators as one, merging equal IDs and summing their
// frequencies. Positions, fields and weights are not combined.
type union struct {
	its    []Iterator
	tree   *loser.Tree[uint32, Iterator]
	primed bool
	more   bool
	valid  bool
	cur    uint32
	freq   uint32
	n      int
}

// Union returns an iterator over the union of its. Zero iterators give an
// empty iterator and a single iterator is returned unchanged.
func Union(its ...Iterator) Iterator {
	switch len(its) {
	case 0:
		return Empty()
	case 1:
		return its[0]
	}
	n := 0
	for _, it := range its {
		n += it.Len()
	}
	return &union{
		its:  its,
		tree: loser.New[uint32, Iterator](its, math.MaxUint32),
		n:    n,
	}
}

func (u *union) Next() bool {
	if !u.primed {
		u.more = u.tree.Next()
		u.primed = true
	}
	if !u.more {
		u.valid = false
		return false
	}
	u.valid = true
	u.cur = u.tree.At()
	u.freq = u.tree.Winner().Freq()
	for {
		u.more = u.tree.Next()
		if !u.more || u.tree.At() != u.cur {
			break
		}
		u.freq = satAdd32(u.freq, u.tree.Winner().Freq())
	}
	return true
}

func (u *union) Seek(id uint32) bool {
	if u.valid && u.cur >= id {
		return true
	}
	if u.primed && !u.valid {
		return false
	}
	for u.Next() {
		if u.cur >= id {
			return true
		}
	}
	return false
}

func (u *union) At() uint32 { return u.cur }

func (u *union) Freq() uint32 { return u.freq }

func (u *union) Positions() []uint32 { return nil }

func (u *union) InField(int) bool { return false }

func (u *union) Weight() float32 { return 0 }

// Len is an upper bound: the sum of the inputs' lengths.
func (u *union) Len() int { return u.n }

func (u *union) Err() error {
	for _, it := range u.its {
		if err := it.Err(); err != nil {
			return err
		}
	}
	return nil
}
