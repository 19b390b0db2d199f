// Package cache provides the LRU used to put a read cache in front of an
// index under test.
package cache

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Stats provides statistics about cache operations
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Size      int     `json:"size"`
	Capacity  int     `json:"capacity"`
	HitRatio  float64 `json:"hit_ratio"`
}

// LRU is a fixed-capacity least recently used cache of byte values.
// Values are copied on the way in and out.
type LRU struct {
	capacity int
	items    *lru.Cache[string, []byte]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// DefaultCapacity applies when NewLRU is given a non-positive capacity
const DefaultCapacity = 1000

func NewLRU(capacity int) *LRU {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	items, err := lru.New[string, []byte](capacity)
	if err != nil {
		// lru.New only rejects non-positive sizes
		panic(fmt.Sprintf("cache: %v", err))
	}
	return &LRU{capacity: capacity, items: items}
}

// Get returns a copy of the cached value and marks it most recently used
func (c *LRU) Get(key []byte) ([]byte, bool) {
	value, ok := c.items.Get(string(key))
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return clone(value), true
}

// Put stores value under key, evicting the least recently used entry when
// the cache is full
func (c *LRU) Put(key, value []byte) {
	// Add reports capacity evictions only; Remove and Purge are not counted
	if c.items.Add(string(key), clone(value)) {
		c.evictions.Add(1)
	}
}

// Delete drops key and reports whether it was cached
func (c *LRU) Delete(key []byte) bool {
	return c.items.Remove(string(key))
}

// Clear removes every entry and resets the statistics
func (c *LRU) Clear() {
	c.items.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
	c.evictions.Store(0)
}

func (c *LRU) Len() int {
	return c.items.Len()
}

func (c *LRU) Stats() Stats {
	s := Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.items.Len(),
		Capacity:  c.capacity,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRatio = float64(s.Hits) / float64(total)
	}
	return s
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
