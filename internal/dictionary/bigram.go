package dictionary

import (
	"slices"
	"strings"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
)

// boundary marks the start and end of a term so anchored patterns
// contribute bigrams for their first and last rune.
const boundary = '\x01'

// Bigrams collects, for every two-rune substring of a set of terms, the IDs
// of the terms containing it.
type Bigrams struct {
	sets map[string]*roaring.Bitmap
}

func NewBigrams() *Bigrams {
	return &Bigrams{sets: make(map[string]*roaring.Bitmap)}
}

// Add records the bigrams of term under id. id must be the term's final ID.
func (b *Bigrams) Add(term string, id uint32) {
	for _, g := range termBigrams(term) {
		set, ok := b.sets[g]
		if !ok {
			set = roaring.New()
			b.sets[g] = set
		}
		set.Add(id)
	}
}

// Len is the number of distinct bigrams.
func (b *Bigrams) Len() int { return len(b.sets) }

// Dictionary converts the collected sets into a dictionary of KindID
// entries whose postings are term IDs. It is dumped with RenumberNone.
func (b *Bigrams) Dictionary() *Dictionary[string] {
	d := New[string](entry.KindID)
	names := make([]string, 0, len(b.sets))
	for g := range b.sets {
		names = append(names, g)
	}
	slices.Sort(names)
	for _, g := range names {
		e := d.Put(g)
		it := b.sets[g].Iterator()
		for it.HasNext() {
			e.Add(postings.Occurrence{ID: it.Next()})
		}
	}
	return d
}

func termBigrams(term string) []string {
	rs := make([]rune, 0, len(term)+2)
	rs = append(rs, boundary)
	rs = append(rs, []rune(term)...)
	rs = append(rs, boundary)
	out := make([]string, 0, len(rs)-1)
	for i := 0; i+1 < len(rs); i++ {
		out = append(out, string(rs[i:i+2]))
	}
	return out
}

// patternBigrams returns the bigrams every match of pattern must contain.
func patternBigrams(pattern string) []string {
	rs := append([]rune{boundary}, []rune(pattern)...)
	rs = append(rs, boundary)
	seen := make(map[string]struct{})
	var out []string
	var run []rune
	flush := func() {
		for i := 0; i+1 < len(run); i++ {
			g := string(run[i : i+2])
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				out = append(out, g)
			}
		}
		run = run[:0]
	}
	for _, r := range rs {
		if r == '*' || r == '?' {
			flush()
			continue
		}
		run = append(run, r)
	}
	flush()
	return out
}

// IsWildcard reports whether s contains wildcard metacharacters.
func IsWildcard(s string) bool { return strings.ContainsAny(s, "*?") }

// Match reports whether name matches pattern, where * matches any run of
// runes and ? matches exactly one.
func Match(pattern, name string) bool {
	p, s := []rune(pattern), []rune(name)
	pi, si := 0, 0
	star, mark := -1, 0
	for si < len(s) {
		switch {
		case pi < len(p) && (p[pi] == '?' || p[pi] == s[si]):
			pi++
			si++
		case pi < len(p) && p[pi] == '*':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(p) && p[pi] == '*' {
		pi++
	}
	return pi == len(p)
}

// Prefix iterates the entries whose names start with prefix.
func Prefix(d *Disk[string], prefix string) *Cursor[string] {
	c := d.From(prefix)
	c.stop = func(name string) bool { return !strings.HasPrefix(name, prefix) }
	return c
}

// Wildcard returns the entries of terms matching pattern in name order.
// Candidates come from intersecting the term ID sets of the pattern's
// bigrams and are verified with Match. Without a bigram dictionary, or for
// patterns with no usable bigram, it scans the literal prefix range.
func Wildcard(terms *Disk[string], bigrams *Disk[string], pattern string) ([]*entry.Entry[string], error) {
	if !IsWildcard(pattern) {
		e, err := terms.Get(pattern)
		if err != nil || e == nil {
			return nil, err
		}
		return []*entry.Entry[string]{e}, nil
	}
	grams := patternBigrams(pattern)
	if bigrams == nil || len(grams) == 0 {
		return scanMatches(terms, pattern)
	}
	var candidates *roaring.Bitmap
	for _, g := range grams {
		e, err := bigrams.Get(g)
		if err != nil {
			return nil, err
		}
		if e == nil {
			return nil, nil
		}
		p, err := e.Postings(postings.Features{})
		if err != nil {
			return nil, err
		}
		set := roaring.New()
		if p != nil {
			set.AddMany(p.IDs())
		}
		if candidates == nil {
			candidates = set
		} else {
			candidates.And(set)
		}
		if candidates.IsEmpty() {
			return nil, nil
		}
	}
	var out []*entry.Entry[string]
	it := candidates.Iterator()
	for it.HasNext() {
		e, err := terms.GetByID(it.Next())
		if err != nil {
			return nil, err
		}
		if e != nil && Match(pattern, e.Name) {
			out = append(out, e)
		}
	}
	return out, nil
}

func scanMatches(terms *Disk[string], pattern string) ([]*entry.Entry[string], error) {
	prefix := pattern[:strings.IndexAny(pattern, "*?")]
	var out []*entry.Entry[string]
	c := Prefix(terms, prefix)
	for c.Next() {
		if Match(pattern, c.Entry().Name) {
			out = append(out, c.Entry())
		}
	}
	return out, c.Err()
}
