package entry

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/postings"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

const (
	sidePrimary = 0
	sideFolded  = 1
)

// Source reads the raw bytes of one postings channel range.
type Source interface {
	ReadPostings(channel int, offset, size int64) (buffer.ReadBuffer, error)
}

// Entry is a dictionary term: a name, an ID and its postings. Cased kinds
// keep the case-sensitive postings on the primary side and the
// case-insensitive postings on the folded side.
//
// An Entry is not safe for concurrent use. Query-side entries are decoded
// per lookup, so readers never share one.
type Entry[N any] struct {
	Name N
	ID   uint32

	kind         Kind
	lists        [2]*postings.Postings
	written      [2]*Stats
	nameOccurred bool
	src          Source
}

// New returns an indexing-side entry with no postings yet.
func New[N any](kind Kind, name N, id uint32) *Entry[N] {
	if !kind.Valid() {
		panic(fmt.Sprintf("entry: unknown kind %d", uint8(kind)))
	}
	return &Entry[N]{Name: name, ID: id, kind: kind}
}

func (e *Entry[N]) Kind() Kind { return e.kind }

// NameOccurred reports whether the verbatim name received a case-sensitive
// occurrence. Non-cased entries always report true once used.
func (e *Entry[N]) NameOccurred() bool {
	if !e.kind.Cased() {
		return e.Used()
	}
	return e.nameOccurred
}

// Used reports whether the entry holds any postings data.
func (e *Entry[N]) Used() bool {
	return e.lists[0] != nil || e.lists[1] != nil || e.written[0] != nil || e.written[1] != nil
}

// Empty reports whether no side holds an ID.
func (e *Entry[N]) Empty() bool {
	for side := range e.lists {
		if n, _, _, _ := e.side(side); n > 0 {
			return false
		}
	}
	return true
}

func (e *Entry[N]) list(side int) *postings.Postings {
	if e.lists[side] == nil {
		e.lists[side] = postings.New(e.kind.Postings())
	}
	return e.lists[side]
}

// Add records a verbatim occurrence. For cased entries it goes to the
// case-sensitive postings and marks the name as occurred.
func (e *Entry[N]) Add(o postings.Occurrence) {
	e.list(sidePrimary).Add(o)
	if e.kind.Cased() {
		e.nameOccurred = true
	}
}

// AddInsensitive records an occurrence reached through case folding. It
// only touches the case-insensitive postings, so the case-sensitive side may
// stay empty. On non-cased entries it is the same as Add.
func (e *Entry[N]) AddInsensitive(o postings.Occurrence) {
	if !e.kind.Cased() {
		e.Add(o)
		return
	}
	e.list(sideFolded).Add(o)
}

// Finish seals every postings list of the entry.
func (e *Entry[N]) Finish() {
	for _, p := range e.lists {
		if p != nil {
			p.Finish()
		}
	}
}

func (e *Entry[N]) side(i int) (n int, maxFDT uint32, total uint64, ok bool) {
	if p := e.lists[i]; p != nil && p.State() != postings.StateWritten {
		return p.N(), p.MaxFDT(), p.Total(), true
	}
	if s := e.written[i]; s != nil {
		return s.N, s.MaxFDT, s.Total, true
	}
	return 0, 0, 0, false
}

// preferred is the side whose statistics describe the entry: the
// case-insensitive side when a cased entry has one.
func (e *Entry[N]) preferred() int {
	if e.kind.Cased() {
		if _, _, _, ok := e.side(sideFolded); ok {
			return sideFolded
		}
	}
	return sidePrimary
}

func (e *Entry[N]) sideFor(f postings.Features) int {
	if !e.kind.Cased() || f.CaseSensitive {
		return sidePrimary
	}
	return sideFolded
}

// N is the number of distinct IDs in the entry's postings.
func (e *Entry[N]) N() int {
	n, _, _, _ := e.side(e.preferred())
	return n
}

// MaxFDT is the largest per-ID frequency.
func (e *Entry[N]) MaxFDT() uint32 {
	_, m, _, _ := e.side(e.preferred())
	return m
}

// Total is the number of occurrences.
func (e *Entry[N]) Total() uint64 {
	_, _, t, _ := e.side(e.preferred())
	return t
}

// Count returns n for the side a query with features f would read.
func (e *Entry[N]) Count(f postings.Features) int {
	n, _, _, _ := e.side(e.sideFor(f))
	return n
}

// Written returns the channel metadata recorded for the primary (0) or
// case-insensitive (1) side, or nil.
func (e *Entry[N]) Written(side int) *Stats { return e.written[side] }

// Postings returns the postings a query with features f reads, loading them
// from the entry's source on first use. Only channel 0 is read unless f
// needs positions or fields. A nil result means the side has no postings.
func (e *Entry[N]) Postings(f postings.Features) (*postings.Postings, error) {
	return e.load(e.sideFor(f), f.NeedsChannel1())
}

func (e *Entry[N]) load(side int, positional bool) (*postings.Postings, error) {
	pk := e.kind.Postings()
	p := e.lists[side]
	if p != nil && p.State() != postings.StateWritten {
		if positional && pk == postings.KindDFO && !p.HasPositions() {
			s := e.written[side]
			if s == nil || s.Channels() < 2 || e.src == nil {
				return p, nil
			}
			b, err := e.src.ReadPostings(1, s.Offsets[1], s.Sizes[1])
			if err != nil {
				return nil, e.wrap(err)
			}
			p.LoadPositions(b)
		}
		return p, nil
	}
	s := e.written[side]
	if s == nil || s.N == 0 {
		return nil, nil
	}
	if e.src == nil || s.Channels() == 0 {
		return nil, lxerrors.New(lxerrors.ErrAbsent, "load postings", e.name())
	}
	b0, err := e.src.ReadPostings(0, s.Offsets[0], s.Sizes[0])
	if err != nil {
		return nil, e.wrap(err)
	}
	chans := []buffer.ReadBuffer{b0}
	if positional && pk == postings.KindDFO && s.Channels() > 1 {
		b1, err := e.src.ReadPostings(1, s.Offsets[1], s.Sizes[1])
		if err != nil {
			return nil, e.wrap(err)
		}
		chans = append(chans, b1)
	}
	p = postings.Decode(pk, s.N, chans)
	e.lists[side] = p
	return p, nil
}

func (e *Entry[N]) wrap(err error) error {
	return fmt.Errorf("loading postings for %q: %w", e.name(), err)
}

func (e *Entry[N]) name() string { return fmt.Sprint(e.Name) }

// Iterator returns a cursor over the postings selected by f. A postings read
// failure is logged and yields an empty iterator, so one damaged entry does
// not fail the whole query.
func (e *Entry[N]) Iterator(f postings.Features) postings.Iterator {
	p, err := e.Postings(f)
	if err != nil {
		slog.Default().With("component", "entry").Error("postings read failed",
			"name", e.name(),
			"kind", e.kind.String(),
			"error", err,
		)
		return postings.Empty()
	}
	if p == nil {
		return postings.Empty()
	}
	return p.Iterator(f)
}

// LoadAll materialises every side with every channel.
func (e *Entry[N]) LoadAll() error {
	for side := range e.lists {
		if _, err := e.load(side, true); err != nil {
			return err
		}
	}
	return nil
}

// Remap applies m to every postings list of the entry.
func (e *Entry[N]) Remap(m postings.IDMap) error {
	if err := e.LoadAll(); err != nil {
		return err
	}
	for _, p := range e.lists {
		if p == nil {
			continue
		}
		p.Finish()
		if err := p.Remap(m); err != nil {
			return err
		}
	}
	return nil
}

// Meta returns a copy of the entry's name, ID and metadata without postings.
func (e *Entry[N]) Meta() *Entry[N] {
	out := &Entry[N]{Name: e.Name, ID: e.ID, kind: e.kind, nameOccurred: e.nameOccurred}
	for side, s := range e.written {
		if s != nil {
			c := *s
			out.written[side] = &c
		}
	}
	return out
}

// Append adds other's postings after e's, mapping other's IDs through m and
// shifting them by startID. For unique kinds a second source carrying live
// postings for the same name fails with ErrDuplicateKey.
func (e *Entry[N]) Append(other *Entry[N], startID uint32, m postings.IDMap) error {
	if other.kind != e.kind {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "append entry", "%s onto %s", other.kind, e.kind)
	}
	if err := other.LoadAll(); err != nil {
		return err
	}
	if err := e.LoadAll(); err != nil {
		return err
	}
	if e.kind.Unique() && e.N() > 0 && other.live(m) > 0 {
		return lxerrors.New(lxerrors.ErrDuplicateKey, "append entry", e.name())
	}
	for side, op := range other.lists {
		if op == nil || op.Empty() {
			continue
		}
		p := e.lists[side]
		if p == nil {
			p = postings.New(e.kind.Postings())
			p.Finish()
			e.lists[side] = p
		}
		p.Finish()
		if err := p.Append(op, startID, m); err != nil {
			return fmt.Errorf("appending postings for %q: %w", e.name(), err)
		}
	}
	e.nameOccurred = e.nameOccurred || other.nameOccurred
	return nil
}

func (e *Entry[N]) live(m postings.IDMap) int {
	p := e.lists[sidePrimary]
	if p == nil {
		return 0
	}
	n := 0
	for _, id := range p.IDs() {
		if m.Map(id) != postings.Deleted {
			n++
		}
	}
	return n
}

// WritePostings seals the postings, applies m and writes every non-empty
// side to outs, recording offsets and sizes for EncodeInfo. It returns false
// when nothing was written, in which case the entry must be left out of the
// dictionary.
func (e *Entry[N]) WritePostings(outs []buffer.Output, m postings.IDMap) (bool, error) {
	wrote := false
	for side, p := range e.lists {
		e.written[side] = nil
		if p == nil {
			continue
		}
		p.Finish()
		if err := p.Remap(m); err != nil {
			return false, err
		}
		if p.Empty() {
			e.lists[side] = nil
			continue
		}
		nch := p.Kind().Channels()
		if len(outs) < nch {
			return false, lxerrors.Newf(lxerrors.ErrInvalidInput, "write postings", "%d outputs for %d channels", len(outs), nch)
		}
		st := &Stats{N: p.N(), MaxFDT: p.MaxFDT()}
		offsets, sizes, err := p.Write(outs[:nch])
		if err != nil {
			return false, e.wrap(err)
		}
		st.Total = p.Total()
		st.Offsets = offsets
		st.Sizes = sizes
		e.written[side] = st
		wrote = true
	}
	if e.kind.Cased() && e.written[sidePrimary] == nil {
		e.nameOccurred = false
	}
	return wrote, nil
}
