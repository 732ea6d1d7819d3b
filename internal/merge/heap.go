package merge

import (
	"cmp"
	"container/heap"
	"context"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/dictionary"
	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/entry"
)

// member is one source's entry for a name.
type member[N cmp.Ordered] struct {
	src int
	e   *entry.Entry[N]
}

type head[N cmp.Ordered] struct {
	src int
	cur *dictionary.Cursor[N]
}

// nameHeap orders cursors by their current name, then by source index so
// a group lists its members in source order.
type nameHeap[N cmp.Ordered] []*head[N]

func (h nameHeap[N]) Len() int { return len(h) }

func (h nameHeap[N]) Less(i, j int) bool {
	if c := cmp.Compare(h[i].cur.Entry().Name, h[j].cur.Entry().Name); c != 0 {
		return c < 0
	}
	return h[i].src < h[j].src
}

func (h nameHeap[N]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *nameHeap[N]) Push(x any) { *h = append(*h, x.(*head[N])) }

func (h *nameHeap[N]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeNames walks the dictionaries of every source in name order and
// calls combine once per distinct name with the members holding it. dicts
// is indexed by source; nil entries are skipped. combine returns nil to
// drop the name.
func mergeNames[N cmp.Ordered](ctx context.Context, dicts []*dictionary.Disk[N], combine func(name N, group []member[N]) (*entry.Entry[N], error)) ([]*entry.Entry[N], error) {
	h := make(nameHeap[N], 0, len(dicts))
	for src, d := range dicts {
		if d == nil {
			continue
		}
		c := d.All()
		if c.Next() {
			h = append(h, &head[N]{src: src, cur: c})
		} else if err := c.Err(); err != nil {
			return nil, err
		}
	}
	heap.Init(&h)

	var out []*entry.Entry[N]
	group := make([]member[N], 0, len(dicts))
	for n := 0; h.Len() > 0; n++ {
		if n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		name := h[0].cur.Entry().Name
		group = group[:0]
		for h.Len() > 0 && h[0].cur.Entry().Name == name {
			top := h[0]
			group = append(group, member[N]{src: top.src, e: top.cur.Entry()})
			if top.cur.Next() {
				heap.Fix(&h, 0)
				continue
			}
			if err := top.cur.Err(); err != nil {
				return nil, err
			}
			heap.Pop(&h)
		}
		e, err := combine(name, group)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, e)
		}
	}
	return out, nil
}
