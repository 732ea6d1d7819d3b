package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func texts(tokens []Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.Text)
	}
	return out
}

func TestTokenizeKeepsVerbatimForms(t *testing.T) {
	tokens := Analyzer{}.Tokenize("The Cat, sat!")
	assert.Equal(t, []string{"The", "Cat", "sat"}, texts(tokens))
	assert.Equal(t, uint32(0), tokens[0].Position)
	assert.Equal(t, uint32(2), tokens[2].Position)
}

func TestTokenizeMultipleValues(t *testing.T) {
	tokens := Analyzer{}.Tokenize("red fox", "blue")
	assert.Equal(t, []string{"red", "fox", "blue"}, texts(tokens))
	assert.Equal(t, 1, tokens[2].Value)
	// One position is skipped between values.
	assert.Equal(t, uint32(3), tokens[2].Position)
}

func TestTokenizeDropsStopWords(t *testing.T) {
	tokens := Analyzer{DropStopWords: true}.Tokenize("The cat and THE hat")
	assert.Equal(t, []string{"cat", "hat"}, texts(tokens))
}

func TestTokenizeNormalises(t *testing.T) {
	// U+FB01 is the "fi" ligature.
	tokens := Analyzer{}.Tokenize("ﬁne")
	assert.Equal(t, []string{"fine"}, texts(tokens))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "cat", Fold("CaT"))
	assert.Equal(t, "strasse", Fold("STRAßE"))
	assert.Equal(t, "", Fold(""))
}

func TestStem(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"running", "runn"},
		{"cats", "cat"},
		{"relational", "relate"},
		{"is", "is"},
		{"happiness", "happy"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Stem(tt.in))
		})
	}
}

func BenchmarkTokenize(b *testing.B) {
	samples := map[string]string{
		"short": "The quick brown fox jumps over the lazy dog",
		"long": strings.Repeat(`Information retrieval systems combine tokenization, stemming and stop
			word removal to normalize text into searchable terms. The inverted index maps each
			term to the documents containing it, along with positional information. `, 20),
	}
	a := Analyzer{DropStopWords: true}
	for name, text := range samples {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = a.Tokenize(text)
			}
		})
	}
}
