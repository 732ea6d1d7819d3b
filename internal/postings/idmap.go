package postings

import (
	"math"

	"github.com/RoaringBitmap/roaring"
)

// Deleted is the IDMap value for an ID that no longer exists. ID 0 is never
// assigned, so it doubles as the sentinel.
const Deleted uint32 = 0

// IDMap maps old IDs (the slice index) to new IDs. A nil IDMap is the
// identity.
type IDMap []uint32

// Map returns the new ID for id, or Deleted.
func (m IDMap) Map(id uint32) uint32 {
	if m == nil {
		return id
	}
	if int(id) >= len(m) {
		return Deleted
	}
	return m[id]
}

// Live counts the IDs that survive the mapping.
func (m IDMap) Live() int {
	n := 0
	for id := 1; id < len(m); id++ {
		if m[id] != Deleted {
			n++
		}
	}
	return n
}

// Compacting builds the map that drops every ID in deleted and renumbers
// the rest densely from 1. It returns nil when nothing is deleted.
func Compacting(maxID uint32, deleted *roaring.Bitmap) IDMap {
	if deleted == nil || deleted.IsEmpty() {
		return nil
	}
	m := make(IDMap, int(maxID)+1)
	var next uint32
	for id := uint32(1); id <= maxID; id++ {
		if deleted.Contains(id) {
			continue
		}
		next++
		m[id] = next
	}
	return m
}

func satAdd32(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}
	return a + b
}

func satAdd64(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

// SatAdd64 is the saturating addition used for occurrence totals.
func SatAdd64(a, b uint64) uint64 { return satAdd64(a, b) }
