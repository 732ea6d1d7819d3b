package postings

import (
	"fmt"
	"slices"
	"sort"

	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Postings is a column-oriented occurrence list kept in ascending ID order.
// Columns that a kind does not use stay nil.
type Postings struct {
	kind  Kind
	state State

	ids     []uint32
	freqs   []uint32
	pos     [][]uint32
	fields  [][]byte
	weights []float32

	total  uint64
	maxFDT uint32

	// positional channel decoded (always true while building).
	hasPositions bool
}

// New returns an empty Postings accepting occurrences.
func New(kind Kind) *Postings {
	p := &Postings{kind: kind, state: StateBuilding, hasPositions: true}
	switch kind {
	case KindID:
	case KindIDFreq:
		p.freqs = []uint32{}
	case KindDFO:
		p.freqs = []uint32{}
		p.pos = [][]uint32{}
		p.fields = [][]byte{}
	case KindVector:
		p.freqs = []uint32{}
		p.weights = []float32{}
	default:
		panic(fmt.Sprintf("postings: unknown kind %d", uint8(kind)))
	}
	return p
}

func (p *Postings) Kind() Kind { return p.kind }

func (p *Postings) State() State { return p.state }

// N is the number of distinct IDs.
func (p *Postings) N() int { return len(p.ids) }

// Total is the number of occurrences, saturated at MaxUint64.
func (p *Postings) Total() uint64 { return p.total }

// MaxFDT is the largest per-ID frequency.
func (p *Postings) MaxFDT() uint32 { return p.maxFDT }

// IDs exposes the ID column. Callers must not modify it.
func (p *Postings) IDs() []uint32 { return p.ids }

// HasPositions reports whether positional data is available.
func (p *Postings) HasPositions() bool { return p.kind == KindDFO && p.hasPositions }

// Add records one occurrence.
func (p *Postings) Add(o Occurrence) {
	if p.state != StateBuilding {
		panic(fmt.Sprintf("postings: add in state %s", p.state))
	}
	count := o.Count
	if count == 0 {
		count = 1
	}
	i := p.row(o.ID)
	p.total = satAdd64(p.total, uint64(count))
	if p.freqs != nil {
		p.freqs[i] = satAdd32(p.freqs[i], count)
	}
	switch p.kind {
	case KindDFO:
		p.pos[i] = append(p.pos[i], o.Position)
		for _, f := range o.Fields {
			p.fields[i] = setBit(p.fields[i], f)
		}
	case KindVector:
		w := o.Weight
		if w == 0 {
			w = float32(count)
		}
		p.weights[i] += w
	}
}

// row returns the index for id, inserting an empty row when needed so the
// ID column stays sorted.
func (p *Postings) row(id uint32) int {
	n := len(p.ids)
	if n > 0 && p.ids[n-1] == id {
		return n - 1
	}
	if n == 0 || id > p.ids[n-1] {
		p.appendRow(id)
		return n
	}
	i := sort.Search(n, func(j int) bool { return p.ids[j] >= id })
	if p.ids[i] == id {
		return i
	}
	p.ids = slices.Insert(p.ids, i, id)
	if p.freqs != nil {
		p.freqs = slices.Insert(p.freqs, i, 0)
	}
	if p.pos != nil {
		p.pos = slices.Insert(p.pos, i, nil)
		p.fields = slices.Insert(p.fields, i, nil)
	}
	if p.weights != nil {
		p.weights = slices.Insert(p.weights, i, 0)
	}
	return i
}

func (p *Postings) appendRow(id uint32) {
	p.ids = append(p.ids, id)
	if p.freqs != nil {
		p.freqs = append(p.freqs, 0)
	}
	if p.pos != nil {
		p.pos = append(p.pos, nil)
		p.fields = append(p.fields, nil)
	}
	if p.weights != nil {
		p.weights = append(p.weights, 0)
	}
}

// Finish seals the postings for writing. Calling it again is a no-op.
func (p *Postings) Finish() {
	if p.state != StateBuilding {
		return
	}
	for _, ps := range p.pos {
		slices.Sort(ps)
	}
	p.recount()
	p.state = StateSealed
}

// recount derives n-dependent statistics from the columns.
func (p *Postings) recount() {
	p.maxFDT = 0
	if p.freqs == nil {
		p.total = uint64(len(p.ids))
		if len(p.ids) > 0 {
			p.maxFDT = 1
		}
		return
	}
	var total uint64
	for _, f := range p.freqs {
		total = satAdd64(total, uint64(f))
		if f > p.maxFDT {
			p.maxFDT = f
		}
	}
	p.total = total
}

func (p *Postings) checkReadable(op string) error {
	switch p.state {
	case StateSealed, StateLoaded:
		return nil
	default:
		return lxerrors.Newf(lxerrors.ErrInvalidInput, op, "postings in state %s", p.state)
	}
}

// Remap rewrites IDs through m, dropping IDs mapped to Deleted. A nil map is
// the identity. Statistics are recomputed.
func (p *Postings) Remap(m IDMap) error {
	if err := p.checkReadable("remap"); err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	out := p.emptyLike()
	sorted := true
	for i, id := range p.ids {
		nid := m.Map(id)
		if nid == Deleted {
			continue
		}
		if n := len(out.ids); n > 0 && nid <= out.ids[n-1] {
			sorted = false
		}
		out.copyRow(p, i, nid)
	}
	if !sorted {
		out.sortRows()
	}
	p.ids, p.freqs, p.pos, p.fields, p.weights = out.ids, out.freqs, out.pos, out.fields, out.weights
	p.recount()
	return nil
}

// Append adds other's rows after this list's rows. Each of other's IDs is
// mapped through m (when non-nil) and then shifted by startID. The shifted
// IDs must all be larger than this list's last ID.
func (p *Postings) Append(other *Postings, startID uint32, m IDMap) error {
	if err := p.checkReadable("append"); err != nil {
		return err
	}
	if err := other.checkReadable("append"); err != nil {
		return err
	}
	if other.kind != p.kind {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "append", "kind %s onto %s", other.kind, p.kind)
	}
	if p.kind == KindDFO && (!p.hasPositions || !other.hasPositions) {
		return lxerrors.New(lxerrors.ErrInvalidInput, "append", "dfo postings without positions")
	}
	for i, id := range other.ids {
		nid := m.Map(id)
		if nid == Deleted {
			continue
		}
		nid += startID
		if n := len(p.ids); n > 0 && nid <= p.ids[n-1] {
			return lxerrors.Newf(lxerrors.ErrInvalidInput, "append", "id %d not after %d", nid, p.ids[n-1])
		}
		p.copyRow(other, i, nid)
	}
	p.recount()
	return nil
}

func (p *Postings) emptyLike() *Postings {
	out := &Postings{kind: p.kind, hasPositions: p.hasPositions}
	if p.freqs != nil {
		out.freqs = make([]uint32, 0, len(p.ids))
	}
	if p.pos != nil {
		out.pos = make([][]uint32, 0, len(p.ids))
		out.fields = make([][]byte, 0, len(p.ids))
	}
	if p.weights != nil {
		out.weights = make([]float32, 0, len(p.ids))
	}
	out.ids = make([]uint32, 0, len(p.ids))
	return out
}

func (p *Postings) copyRow(src *Postings, i int, id uint32) {
	p.ids = append(p.ids, id)
	if p.freqs != nil {
		p.freqs = append(p.freqs, src.freqs[i])
	}
	if p.pos != nil {
		if src.pos != nil {
			p.pos = append(p.pos, slices.Clone(src.pos[i]))
			p.fields = append(p.fields, slices.Clone(src.fields[i]))
		} else {
			p.pos = append(p.pos, nil)
			p.fields = append(p.fields, nil)
		}
	}
	if p.weights != nil {
		p.weights = append(p.weights, src.weights[i])
	}
}

type rowSorter struct{ p *Postings }

func (s rowSorter) Len() int { return len(s.p.ids) }
func (s rowSorter) Less(i, j int) bool { return s.p.ids[i] < s.p.ids[j] }
func (s rowSorter) Swap(i, j int) {
	p := s.p
	p.ids[i], p.ids[j] = p.ids[j], p.ids[i]
	if p.freqs != nil {
		p.freqs[i], p.freqs[j] = p.freqs[j], p.freqs[i]
	}
	if p.pos != nil {
		p.pos[i], p.pos[j] = p.pos[j], p.pos[i]
		p.fields[i], p.fields[j] = p.fields[j], p.fields[i]
	}
	if p.weights != nil {
		p.weights[i], p.weights[j] = p.weights[j], p.weights[i]
	}
}

func (p *Postings) sortRows() {
	sort.Sort(rowSorter{p})
}

// Empty reports whether there are no IDs.
func (p *Postings) Empty() bool { return len(p.ids) == 0 }

// Clone returns a deep copy in the sealed or loaded state of p.
func (p *Postings) Clone() *Postings {
	out := p.emptyLike()
	for i, id := range p.ids {
		out.copyRow(p, i, id)
	}
	out.state = p.state
	out.total = p.total
	out.maxFDT = p.maxFDT
	return out
}

func setBit(b []byte, i int) []byte {
	idx := i >> 3
	if idx >= len(b) {
		b = append(b, make([]byte, idx+1-len(b))...)
	}
	b[idx] |= 1 << (i & 7)
	return b
}
