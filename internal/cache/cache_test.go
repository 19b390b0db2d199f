package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRUBasicOperations(t *testing.T) {
	c := NewLRU(3)

	c.Put([]byte("k1"), []byte("v1"))
	c.Put([]byte("k2"), []byte("v2"))

	value, ok := c.Get([]byte("k1"))
	if !ok || string(value) != "v1" {
		t.Errorf("Expected k1=v1, got ok=%v value=%s", ok, value)
	}
	if _, ok := c.Get([]byte("missing")); ok {
		t.Error("Expected a miss for an unknown key")
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestLRUEvictionOrder(t *testing.T) {
	tests := []struct {
		name    string
		touch   string
		evicted string
	}{
		{"oldest evicted", "", "k1"},
		{"recently read survives", "k1", "k2"},
		{"recently written survives", "k2", "k1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewLRU(2)
			c.Put([]byte("k1"), []byte("v1"))
			c.Put([]byte("k2"), []byte("v2"))
			switch tt.touch {
			case "k1":
				c.Get([]byte("k1"))
			case "k2":
				c.Put([]byte("k2"), []byte("v2'"))
			}
			c.Put([]byte("k3"), []byte("v3"))

			if _, ok := c.Get([]byte(tt.evicted)); ok {
				t.Errorf("Expected %s to be evicted", tt.evicted)
			}
			if c.Stats().Evictions != 1 {
				t.Errorf("Expected one eviction, got %d", c.Stats().Evictions)
			}
		})
	}
}

func TestLRUUpdateAndDelete(t *testing.T) {
	c := NewLRU(2)
	c.Put([]byte("k"), []byte("old"))
	c.Put([]byte("k"), []byte("new"))

	if value, _ := c.Get([]byte("k")); string(value) != "new" {
		t.Errorf("Expected updated value, got %s", value)
	}
	if c.Len() != 1 {
		t.Errorf("Update should not add an entry, got %d", c.Len())
	}
	if !c.Delete([]byte("k")) {
		t.Error("Expected delete to report a cached key")
	}
	if c.Delete([]byte("k")) {
		t.Error("Expected second delete to report a miss")
	}
}

func TestLRUStatsAndClear(t *testing.T) {
	c := NewLRU(0)
	c.Put([]byte("k"), []byte("v"))
	c.Get([]byte("k"))
	c.Get([]byte("k"))
	c.Get([]byte("x"))

	s := c.Stats()
	if s.Hits != 2 || s.Misses != 1 || s.Size != 1 || s.Capacity != DefaultCapacity {
		t.Errorf("Unexpected stats %+v", s)
	}
	if s.HitRatio < 0.66 || s.HitRatio > 0.67 {
		t.Errorf("Expected hit ratio 2/3, got %f", s.HitRatio)
	}

	c.Clear()
	if s := c.Stats(); s.Hits != 0 || s.Size != 0 {
		t.Errorf("Expected cleared stats, got %+v", s)
	}
}

func TestLRUCopiesValues(t *testing.T) {
	c := NewLRU(1)
	original := []byte("original")
	c.Put([]byte("k"), original)
	original[0] = 'X'

	got, _ := c.Get([]byte("k"))
	if got[0] == 'X' {
		t.Error("Cache shares storage with the caller's value")
	}
	got[1] = 'Y'
	again, _ := c.Get([]byte("k"))
	if again[1] == 'Y' {
		t.Error("Cache shares storage with a returned value")
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	c := NewLRU(64)
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := []byte(fmt.Sprintf("k%d", (i*7+w)%100))
				if i%3 == 0 {
					c.Put(key, key)
				} else if value, ok := c.Get(key); ok && string(value) != string(key) {
					t.Errorf("Corrupted value for %s: %s", key, value)
				}
			}
		}(w)
	}
	wg.Wait()

	if c.Len() > 64 {
		t.Errorf("Cache exceeded its capacity: %d", c.Len())
	}
}

func TestLRUEvictionsCountOnlyCapacity(t *testing.T) {
	c := NewLRU(2)
	for i := 0; i < 5; i++ {
		c.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}
	if got := c.Stats().Evictions; got != 3 {
		t.Errorf("Expected 3 capacity evictions, got %d", got)
	}

	c.Delete([]byte("k4"))
	if got := c.Stats().Evictions; got != 3 {
		t.Errorf("Delete must not count as an eviction, got %d", got)
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry after delete, got %d", c.Len())
	}

	c.Clear()
	if s := c.Stats(); s.Evictions != 0 || s.Size != 0 {
		t.Errorf("Expected cleared stats, got %+v", s)
	}
}
