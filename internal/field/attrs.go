// Package field groups the dictionaries of one field. Attributes decide
// which dictionary kinds exist, the Bundle builds them during indexing and
// dumps them behind a fixed-width Header, and DiskBundle opens them again
// for lookups.
package field

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Attributes is the set of indexing options of a field.
type Attributes uint16

const (
	Cased Attributes = 1 << iota
	Uncased
	Stemmed
	Saved
	SavedUncased
	Vector
	StemmedVector
	// Positions keeps positions and value bits in token postings.
	Positions
	DropStopWords
)

var attrNames = []struct {
	attr Attributes
	name string
}{
	{Cased, "cased"},
	{Uncased, "uncased"},
	{Stemmed, "stemmed"},
	{Saved, "saved"},
	{SavedUncased, "saved-uncased"},
	{Vector, "vector"},
	{StemmedVector, "stemmed-vector"},
	{Positions, "positions"},
	{DropStopWords, "drop-stop-words"},
}

func (a Attributes) Has(b Attributes) bool { return a&b == b }

func (a Attributes) String() string {
	var parts []string
	for _, n := range attrNames {
		if a.Has(n.attr) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, ",")
}

// ParseAttributes reads the comma separated form produced by String.
func ParseAttributes(s string) (Attributes, error) {
	var a Attributes
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		found := false
		for _, n := range attrNames {
			if n.name == part {
				a |= n.attr
				found = true
				break
			}
		}
		if !found {
			return 0, lxerrors.New(lxerrors.ErrInvalidInput, "parse attributes", part)
		}
	}
	return a, nil
}

// ValueType is the type of a field's saved values.
type ValueType uint8

const (
	TypeString ValueType = iota
	TypeInt
	TypeFloat
	TypeDate
)

func (t ValueType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

func ParseValueType(s string) (ValueType, error) {
	for t := TypeString; t <= TypeDate; t++ {
		if t.String() == s {
			return t, nil
		}
	}
	return 0, lxerrors.New(lxerrors.ErrInvalidInput, "parse value type", s)
}

// DictKind identifies one dictionary slot of a field.
type DictKind int

const (
	DictCased DictKind = iota
	DictUncased
	DictStemmed
	DictSaved
	DictSavedUncased
	DictVector
	DictStemmedVector

	NumDictKinds = 7
)

var dictAttrs = [NumDictKinds]Attributes{Cased, Uncased, Stemmed, Saved, SavedUncased, Vector, StemmedVector}

func (k DictKind) String() string {
	switch k {
	case DictCased:
		return "cased"
	case DictUncased:
		return "uncased"
	case DictStemmed:
		return "stemmed"
	case DictSaved:
		return "saved"
	case DictSavedUncased:
		return "saved-uncased"
	case DictVector:
		return "vector"
	case DictStemmedVector:
		return "stemmed-vector"
	default:
		return fmt.Sprintf("dict(%d)", int(k))
	}
}

// Token reports whether the dictionary holds analysed tokens.
func (k DictKind) Token() bool {
	return k == DictCased || k == DictUncased || k == DictStemmed
}

// Info is the definition of one field.
type Info struct {
	ID    int32
	Name  string
	Attrs Attributes
	Type  ValueType
}

// Enables reports whether the field has a dictionary of kind k.
func (i Info) Enables(k DictKind) bool {
	return k >= 0 && k < NumDictKinds && i.Attrs.Has(dictAttrs[k])
}

// EntryKind is the entry layout used by the field's dictionary of kind k.
func (i Info) EntryKind(k DictKind) entry.Kind {
	positional := i.Attrs.Has(Positions)
	switch k {
	case DictCased:
		if positional {
			return entry.KindCasedDFO
		}
		return entry.KindCasedIDFreq
	case DictUncased, DictStemmed:
		if positional {
			return entry.KindDFO
		}
		return entry.KindIDFreq
	case DictSaved, DictSavedUncased:
		return entry.KindIDFreq
	case DictVector, DictStemmedVector:
		return entry.KindVector
	default:
		panic(fmt.Sprintf("field: unknown dictionary kind %d", int(k)))
	}
}

// Tokenized reports whether any token dictionary is enabled.
func (i Info) Tokenized() bool {
	return i.Attrs&(Cased|Uncased|Stemmed) != 0
}

// Validate checks that the attribute set is usable.
func (i Info) Validate() error {
	if i.Name == "" {
		return lxerrors.New(lxerrors.ErrInvalidInput, "validate field", "empty name")
	}
	if i.Type > TypeDate {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "validate field", "%s: %s", i.Name, i.Type)
	}
	enabled := false
	for k := DictKind(0); k < NumDictKinds; k++ {
		enabled = enabled || i.Enables(k)
	}
	if !enabled {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "validate field", "%s: no dictionaries enabled", i.Name)
	}
	textual := Cased | Uncased | Stemmed | SavedUncased | Vector | StemmedVector
	if i.Type != TypeString && i.Attrs&textual != 0 {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "validate field", "%s: %s values cannot be analysed", i.Name, i.Type)
	}
	if i.Attrs.Has(Vector) && i.Attrs&(Cased|Uncased) == 0 {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "validate field", "%s: vector needs a cased or uncased dictionary", i.Name)
	}
	if i.Attrs.Has(StemmedVector) && !i.Attrs.Has(Stemmed) {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "validate field", "%s: stemmed vector needs a stemmed dictionary", i.Name)
	}
	return nil
}

// Lookup resolves field definitions.
type Lookup interface {
	Field(name string) (Info, bool)
	FieldByID(id int32) (Info, bool)
	Fields() []Info
}
