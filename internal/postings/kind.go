// Package postings holds per-term occurrence lists. A Postings value is built
// from occurrences during indexing, sealed, then written to one or two
// postings channels; on the query side it is decoded from those channels and
// read through an Iterator.
package postings

import "fmt"

// Kind is the closed set of postings layouts.
type Kind uint8

const (
	// KindID records membership only.
	KindID Kind = iota + 1
	// KindIDFreq records an ID and its frequency.
	KindIDFreq
	// KindDFO records ID and frequency in channel 0, positions and field
	// sets in channel 1.
	KindDFO
	// KindVector records feature ID, frequency and a half-precision weight.
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindIDFreq:
		return "id-freq"
	case KindDFO:
		return "dfo"
	case KindVector:
		return "vector"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Channels reports how many physical streams postings of this kind use.
func (k Kind) Channels() int {
	switch k {
	case KindID, KindIDFreq, KindVector:
		return 1
	case KindDFO:
		return 2
	default:
		panic(fmt.Sprintf("postings: unknown kind %d", uint8(k)))
	}
}

// HasFreq reports whether the kind stores per-ID frequencies.
func (k Kind) HasFreq() bool { return k != KindID }

// State tracks where a Postings value is in its lifecycle.
type State uint8

const (
	StateBuilding State = iota
	StateSealed
	StateWritten
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateSealed:
		return "sealed"
	case StateWritten:
		return "written"
	case StateLoaded:
		return "loaded"
	default:
		return "unknown"
	}
}

// Occurrence is one token event routed into a postings list. ID is a
// document ID for document postings and a feature (term) ID for vector
// postings.
type Occurrence struct {
	ID       uint32
	Position uint32
	Fields   []int
	Count    uint32
	Weight   float32
}

// Features says which parts of the postings a query will read.
type Features struct {
	Positions     bool
	Fields        bool
	CaseSensitive bool
}

// NeedsChannel1 reports whether the positional channel must be read.
func (f Features) NeedsChannel1() bool {
	return f.Positions || f.Fields
}
