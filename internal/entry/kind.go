// Package entry binds a dictionary name and ID to its postings. An Entry is
// built during indexing, written to postings channels at dump time and
// decoded back from its postings info on the query side, where the bulk
// postings bytes are read lazily.
package entry

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
)

// Kind is the closed set of entry layouts.
type Kind uint8

const (
	KindID Kind = iota + 1
	KindIDFreq
	KindDFO
	// KindCasedDFO owns a case-sensitive and a case-insensitive DFO list.
	KindCasedDFO
	// KindCasedIDFreq owns a case-sensitive and a case-insensitive ID+freq list.
	KindCasedIDFreq
	// KindVector holds one document's weighted term features.
	KindVector
	// KindDocKey maps a unique document key to its document ID.
	KindDocKey
)

func (k Kind) String() string {
	switch k {
	case KindID:
		return "id"
	case KindIDFreq:
		return "id-freq"
	case KindDFO:
		return "dfo"
	case KindCasedDFO:
		return "cased-dfo"
	case KindCasedIDFreq:
		return "cased-id-freq"
	case KindVector:
		return "vector"
	case KindDocKey:
		return "doc-key"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Postings returns the postings layout used by entries of this kind.
func (k Kind) Postings() postings.Kind {
	switch k {
	case KindID, KindDocKey:
		return postings.KindID
	case KindIDFreq, KindCasedIDFreq:
		return postings.KindIDFreq
	case KindDFO, KindCasedDFO:
		return postings.KindDFO
	case KindVector:
		return postings.KindVector
	default:
		panic(fmt.Sprintf("entry: unknown kind %d", uint8(k)))
	}
}

// Cased reports whether entries carry a case-sensitive/insensitive pair.
func (k Kind) Cased() bool { return k == KindCasedDFO || k == KindCasedIDFreq }

// Unique reports whether a name may appear in only one source partition.
func (k Kind) Unique() bool { return k == KindDocKey || k == KindVector }

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool { return k >= KindID && k <= KindDocKey }
