package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"

	"ixperf/internal/cache"
)

const cacheStripes = 64

// Cached puts a read-through LRU in front of another index. Point reads are
// served from the cache when possible; writes go to the backend first and
// then update the cache. Scans always hit the backend.
//
// Operations on one key are serialized through a stripe lock so a cache
// fill can never install a value older than a concurrent write.
type Cached struct {
	Index
	lru     *cache.LRU
	stripes [cacheStripes]sync.Mutex
}

var _ Index = (*Cached)(nil)

// NewCached wraps backend with an LRU holding up to capacity entries
func NewCached(backend Index, capacity int) *Cached {
	return &Cached{Index: backend, lru: cache.NewLRU(capacity)}
}

func (c *Cached) stripe(key []byte) *sync.Mutex {
	return &c.stripes[xxhash.Sum64(key)%cacheStripes]
}

func (c *Cached) Get(key []byte) ([]byte, error) {
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	if value, ok := c.lru.Get(key); ok {
		return value, nil
	}
	value, err := c.Index.Get(key)
	if err != nil {
		return nil, err
	}
	c.lru.Put(key, value)
	return value, nil
}

func (c *Cached) Set(key, value []byte) ([]byte, bool, error) {
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	prev, existed, err := c.Index.Set(key, value)
	if err != nil {
		c.lru.Delete(key)
		return nil, false, err
	}
	c.lru.Put(key, value)
	return prev, existed, nil
}

func (c *Cached) Delete(key []byte) ([]byte, error) {
	mu := c.stripe(key)
	mu.Lock()
	defer mu.Unlock()

	c.lru.Delete(key)
	return c.Index.Delete(key)
}

// CacheStats reports hit and eviction counts of the cache
func (c *Cached) CacheStats() cache.Stats {
	return c.lru.Stats()
}

func (c *Cached) Close() error {
	c.lru.Clear()
	return c.Index.Close()
}
