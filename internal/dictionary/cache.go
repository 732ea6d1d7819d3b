package dictionary

import (
	"container/list"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

var nextOwner atomic.Uint64

// newOwner hands out the cache namespace of one open dictionary.
func newOwner() uint64 { return nextOwner.Add(1) }

type pageKey struct {
	owner uint64
	page  int
}

func (k pageKey) String() string {
	return strconv.FormatUint(k.owner, 10) + "/" + strconv.Itoa(k.page)
}

type cached struct {
	key  pageKey
	data []byte
}

// PageCache is a bounded LRU of raw dictionary pages shared by the
// dictionaries of a partition. Concurrent misses on the same page load it
// once. Pages are immutable, so readers share the bytes and wrap them in
// their own ReadBuffer.
type PageCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[pageKey]*list.Element
	group    singleflight.Group
	metrics  *metrics.Metrics
}

// NewPageCache returns a cache holding up to capacity pages. A
// non-positive capacity disables caching but keeps load deduplication.
func NewPageCache(capacity int, m *metrics.Metrics) *PageCache {
	return &PageCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[pageKey]*list.Element),
		metrics:  metrics.Or(m),
	}
}

func (c *PageCache) get(key pageKey, load func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.lookup(key); ok {
		c.metrics.PageCacheHitsTotal.Inc()
		return data, nil
	}
	c.metrics.PageCacheMissesTotal.Inc()
	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		if data, ok := c.lookup(key); ok {
			return data, nil
		}
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.store(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *PageCache) lookup(key pageKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*cached).data, true
}

func (c *PageCache) store(key pageKey, data []byte) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&cached{key: key, data: data})
	for c.ll.Len() > c.capacity {
		el := c.ll.Back()
		c.ll.Remove(el)
		delete(c.items, el.Value.(*cached).key)
	}
}

// Len is the number of cached pages.
func (c *PageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// evict drops every page of one owner.
func (c *PageCache) evict(owner uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if key.owner == owner {
			c.ll.Remove(el)
			delete(c.items, key)
		}
	}
}
