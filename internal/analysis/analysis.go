// Package analysis turns field text into tokens. Words are found with
// UAX #29 segmentation after NFKC normalisation; each token keeps its
// verbatim text so that cased dictionaries can record the form that
// actually occurred, and Fold and Stem derive the case-insensitive and
// stemmed forms.
package analysis

import (
	"strings"
	"unicode"

	"github.com/clipperhouse/uax29/v2/words"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
}

// Token is one word of field text.
type Token struct {
	// Text is the word as it occurred, NFKC normalised.
	Text     string
	Position uint32
	// Value is the index of the field value the word came from.
	Value int
}

// Analyzer splits field values into tokens.
type Analyzer struct {
	// DropStopWords removes common English words.
	DropStopWords bool
}

// Tokenize splits every value of a field, numbering positions across
// values so that phrase positions never span two values.
func (a Analyzer) Tokenize(values ...string) []Token {
	var tokens []Token
	var pos uint32
	for vi, v := range values {
		seg := words.FromString(norm.NFKC.String(v))
		for seg.Next() {
			w := seg.Value()
			if !isWord(w) {
				continue
			}
			if a.DropStopWords && IsStopWord(w) {
				continue
			}
			tokens = append(tokens, Token{Text: w, Position: pos, Value: vi})
			pos++
		}
		// Leave a gap between values.
		pos++
	}
	return tokens
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// IsStopWord reports whether the folded form of w is a stop word.
func IsStopWord(w string) bool {
	_, ok := stopWords[Fold(w)]
	return ok
}

// Fold returns the case-insensitive form of s.
func Fold(s string) string {
	return cases.Fold().String(s)
}

// Stem applies a suffix-stripping stemmer to an already folded word.
func Stem(word string) string {
	suffixes := []struct {
		suffix      string
		replacement string
		minLen      int
	}{
		{"ational", "ate", 2},
		{"tional", "tion", 2},
		{"encies", "ence", 2},
		{"ances", "ance", 2},
		{"ments", "ment", 2},
		{"izing", "ize", 2},
		{"ating", "ate", 2},
		{"iness", "y", 2},
		{"ously", "ous", 2},
		{"ively", "ive", 2},
		{"eness", "ene", 2},
		{"tion", "t", 3},
		{"sion", "s", 3},
		{"ying", "y", 2},
		{"ling", "l", 3},
		{"ies", "y", 2},
		{"ing", "", 3},
		{"ers", "er", 2},
		{"est", "", 3},
		{"ful", "", 3},
		{"ous", "", 3},
		{"ess", "", 3},
		{"ble", "", 3},
		{"ed", "", 3},
		{"er", "", 3},
		{"ly", "", 3},
		{"es", "", 3},
		{"ss", "ss", 2},
		{"s", "", 3},
	}
	for _, rule := range suffixes {
		if strings.HasSuffix(word, rule.suffix) {
			stemmed := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(stemmed) >= rule.minLen {
				return stemmed
			}
		}
	}
	return word
}
