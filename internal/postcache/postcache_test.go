package postcache

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/config"
	pkgredis "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/redis"
)

func key(dir string, off int64) partition.PostingsKey {
	return partition.PostingsKey{Partition: dir, Channel: 0, Offset: off, Size: 4}
}

func constLoader(calls *atomic.Int64, data string) func() ([]byte, error) {
	return func() ([]byte, error) {
		calls.Add(1)
		return []byte(data), nil
	}
}

func TestMemoryHitAndMiss(t *testing.T) {
	c := NewMemory(1024)
	var calls atomic.Int64

	got, err := c.Load(key("p-1", 0), constLoader(&calls, "abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	got, err = c.Load(key("p-1", 0), constLoader(&calls, "zzzz"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))

	assert.Equal(t, int64(1), calls.Load())
	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemory(8)
	var calls atomic.Int64
	_, _ = c.Load(key("p", 0), constLoader(&calls, "aaaa"))
	_, _ = c.Load(key("p", 4), constLoader(&calls, "bbbb"))
	_, _ = c.Load(key("p", 0), constLoader(&calls, "aaaa"))
	_, _ = c.Load(key("p", 8), constLoader(&calls, "cccc"))
	assert.Equal(t, 2, c.Len())

	before := calls.Load()
	_, _ = c.Load(key("p", 0), constLoader(&calls, "aaaa"))
	assert.Equal(t, before, calls.Load(), "recently used range evicted")
	_, _ = c.Load(key("p", 4), constLoader(&calls, "bbbb"))
	assert.Equal(t, before+1, calls.Load())
}

func TestMemorySkipsOversized(t *testing.T) {
	c := NewMemory(2)
	var calls atomic.Int64
	got, err := c.Load(key("p", 0), constLoader(&calls, "abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryLoadErrorNotCached(t *testing.T) {
	c := NewMemory(64)
	boom := errors.New("boom")
	_, err := c.Load(key("p", 0), func() ([]byte, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCoalescesConcurrentMisses(t *testing.T) {
	c := NewMemory(1024)
	var calls atomic.Int64
	release := make(chan struct{})
	load := func() ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("data"), nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Load(key("p", 0), load)
			assert.NoError(t, err)
			assert.Equal(t, "data", string(got))
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	assert.Equal(t, int64(1), calls.Load())
}

func TestMemoryForget(t *testing.T) {
	c := NewMemory(1024)
	var calls atomic.Int64
	_, _ = c.Load(key("p-1", 0), constLoader(&calls, "aaaa"))
	_, _ = c.Load(key("p-2", 0), constLoader(&calls, "bbbb"))
	c.Forget("p-1")
	assert.Equal(t, 1, c.Len())
	_, _ = c.Load(key("p-2", 0), constLoader(&calls, "bbbb"))
	assert.Equal(t, int64(2), calls.Load())
}

func TestTieredFillsFront(t *testing.T) {
	front, back := NewMemory(64), NewMemory(64)
	tiers := Tiered{front, back}
	var calls atomic.Int64

	_, err := tiers.Load(key("p", 0), constLoader(&calls, "abcd"))
	require.NoError(t, err)
	assert.Equal(t, 1, front.Len())
	assert.Equal(t, 1, back.Len())

	front.Forget("p")
	got, err := tiers.Load(key("p", 0), constLoader(&calls, "zzzz"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Equal(t, int64(1), calls.Load())

	tiers.Forget("p")
	assert.Equal(t, 0, back.Len())
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("LX_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LX_TEST_REDIS_ADDR not set")
	}
	cfg := config.RedisConfig{Addr: addr, PoolSize: 2, CacheTTL: time.Minute}
	client, err := pkgredis.NewClient(cfg)
	require.NoError(t, err)
	defer client.Close()

	c := NewRedis(client, cfg)
	dir := t.TempDir()
	defer c.Forget(dir)
	var calls atomic.Int64

	got, err := c.Load(key(dir, 0), constLoader(&calls, "abcd"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	got, err = c.Load(key(dir, 0), constLoader(&calls, "zzzz"))
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(got))
	assert.Equal(t, int64(1), calls.Load())

	c.Forget(dir)
	got, err = c.Load(key(dir, 0), constLoader(&calls, "zzzz"))
	require.NoError(t, err)
	assert.Equal(t, "zzzz", string(got))
}
