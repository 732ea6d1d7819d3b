// Package postcache caches raw postings ranges read from partition
// channels. Memory keeps a bounded LRU in process; Redis shares ranges
// between processes reading the same data directory. Concurrent misses for
// one range load it once.
package postcache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/resilience"
)

type item struct {
	key  partition.PostingsKey
	data []byte
}

// Memory is an in-process LRU bounded by total bytes.
type Memory struct {
	maxBytes int64

	mu    sync.Mutex
	bytes int64
	ll    *list.List
	items map[partition.PostingsKey]*list.Element

	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

func NewMemory(maxBytes int64) *Memory {
	return &Memory{
		maxBytes: maxBytes,
		ll:       list.New(),
		items:    make(map[partition.PostingsKey]*list.Element),
	}
}

func (c *Memory) Load(key partition.PostingsKey, load func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.get(key); ok {
		c.hits.Add(1)
		return data, nil
	}
	c.misses.Add(1)
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if data, ok := c.get(key); ok {
			return data, nil
		}
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.put(key, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (c *Memory) get(key partition.PostingsKey) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*item).data, true
}

func (c *Memory) put(key partition.PostingsKey, data []byte) {
	if int64(len(data)) > c.maxBytes {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return
	}
	c.items[key] = c.ll.PushFront(&item{key: key, data: data})
	c.bytes += int64(len(data))
	for c.bytes > c.maxBytes {
		c.removeElement(c.ll.Back())
	}
}

func (c *Memory) removeElement(el *list.Element) {
	it := c.ll.Remove(el).(*item)
	delete(c.items, it.key)
	c.bytes -= int64(len(it.data))
}

// Forget drops every range of the partition in dir.
func (c *Memory) Forget(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, el := range c.items {
		if key.Partition == dir {
			c.removeElement(el)
		}
	}
}

// Len is the number of cached ranges.
func (c *Memory) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

func (c *Memory) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

const keyPrefix = "lx:post:"

// Redis stores ranges in Redis with a TTL. Redis failures are logged and
// fall through to the loader, so the cache never fails a read the disk
// could serve. Repeated failures open a breaker and Redis is skipped until
// it recovers.
type Redis struct {
	client  *pkgredis.Client
	ttl     time.Duration
	timeout time.Duration
	breaker *resilience.Breaker
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewRedis(client *pkgredis.Client, cfg config.RedisConfig) *Redis {
	return &Redis{
		client:  client,
		ttl:     cfg.CacheTTL,
		timeout: 2 * time.Second,
		breaker: resilience.NewBreaker("redis-postings", 5, 30*time.Second),
		logger:  slog.Default().With("component", "postings-cache"),
	}
}

func partitionTag(dir string) string {
	sum := sha256.Sum256([]byte(dir))
	return hex.EncodeToString(sum[:8])
}

func (c *Redis) buildKey(key partition.PostingsKey) string {
	return keyPrefix + partitionTag(key.Partition) + ":" + strconv.Itoa(key.Channel) + ":" +
		strconv.FormatInt(key.Offset, 10) + ":" + strconv.FormatInt(key.Size, 10)
}

func (c *Redis) get(key string) ([]byte, bool) {
	var data []byte
	miss := false
	err := c.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		var err error
		data, err = c.client.GetBytes(ctx, key)
		if pkgredis.IsNilError(err) {
			miss = true
			return nil
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, resilience.ErrOpen) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, !miss
}

func (c *Redis) set(key string, data []byte) {
	err := c.breaker.Do(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		return c.client.Set(ctx, key, data, c.ttl)
	})
	if err != nil && !errors.Is(err, resilience.ErrOpen) {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

func (c *Redis) Load(key partition.PostingsKey, load func() ([]byte, error)) ([]byte, error) {
	rk := c.buildKey(key)
	if data, ok := c.get(rk); ok {
		c.hits.Add(1)
		return data, nil
	}
	c.misses.Add(1)
	v, err, _ := c.group.Do(rk, func() (any, error) {
		data, err := load()
		if err != nil {
			return nil, err
		}
		c.set(rk, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Forget deletes every range of the partition in dir.
func (c *Redis) Forget(dir string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*c.timeout)
	defer cancel()
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+partitionTag(dir)+":*")
	if err != nil {
		c.logger.Error("cache invalidate failed", "partition", dir, "error", err)
		return
	}
	c.logger.Info("cache invalidate", "partition", dir, "keys_deleted", deleted)
}

func (c *Redis) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Tiered consults each cache in order, filling the earlier tiers from the
// later ones.
type Tiered []partition.PostingsCache

func (t Tiered) Load(key partition.PostingsKey, load func() ([]byte, error)) ([]byte, error) {
	if len(t) == 0 {
		return load()
	}
	return t[0].Load(key, func() ([]byte, error) {
		return t[1:].Load(key, load)
	})
}

// Forget forwards to every tier that supports it.
func (t Tiered) Forget(dir string) {
	for _, c := range t {
		if f, ok := c.(interface{ Forget(string) }); ok {
			f.Forget(dir)
		}
	}
}
