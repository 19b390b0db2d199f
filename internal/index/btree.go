package index

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

// DefaultDegree is the btree node degree used when none is configured
const DefaultDegree = 32

type entry struct {
	key   []byte
	value []byte
}

func lessEntry(a, b entry) bool {
	return bytes.Compare(a.key, b.key) < 0
}

func newTree(degree int) *btree.BTreeG[entry] {
	if degree < 2 {
		degree = DefaultDegree
	}
	return btree.NewG(degree, lessEntry)
}

// scanTree walks t between low and high in the requested direction
func scanTree(t *btree.BTreeG[entry], low, high Bound, reverse bool, yield func(key, value []byte) bool) {
	if Empty(low, high) {
		return
	}

	if !reverse {
		visit := func(e entry) bool {
			if !AboveLow(e.key, low) {
				return true
			}
			if !BelowHigh(e.key, high) {
				return false
			}
			return yield(e.key, e.value)
		}
		if low.Kind == Unbounded {
			t.Ascend(visit)
		} else {
			t.AscendGreaterOrEqual(entry{key: low.Key}, visit)
		}
		return
	}

	visit := func(e entry) bool {
		if !BelowHigh(e.key, high) {
			return true
		}
		if !AboveLow(e.key, low) {
			return false
		}
		return yield(e.key, e.value)
	}
	if high.Kind == Unbounded {
		t.Descend(visit)
	} else {
		t.DescendLessOrEqual(entry{key: high.Key}, visit)
	}
}

// BTree is an in-memory ordered map guarded by a read/write lock. It is the
// reference index the harness is validated against.
type BTree struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[entry]
}

var _ Index = (*BTree)(nil)

// NewBTree creates an empty BTree index
func NewBTree(degree int) *BTree {
	return &BTree{tree: newTree(degree)}
}

func (b *BTree) Set(key, value []byte) ([]byte, bool, error) {
	e := entry{key: clone(key), value: clone(value)}

	b.mu.Lock()
	prev, existed := b.tree.ReplaceOrInsert(e)
	b.mu.Unlock()

	return prev.value, existed, nil
}

func (b *BTree) Delete(key []byte) ([]byte, error) {
	b.mu.Lock()
	prev, ok := b.tree.Delete(entry{key: key})
	b.mu.Unlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	return prev.value, nil
}

func (b *BTree) Get(key []byte) ([]byte, error) {
	b.mu.RLock()
	e, ok := b.tree.Get(entry{key: key})
	b.mu.RUnlock()

	if !ok {
		return nil, ErrKeyNotFound
	}
	return e.value, nil
}

func (b *BTree) Iterate(yield func(key, value []byte) bool) error {
	return b.Range(Unbound(), Unbound(), yield)
}

func (b *BTree) Range(low, high Bound, yield func(key, value []byte) bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scanTree(b.tree, low, high, false, yield)
	return nil
}

func (b *BTree) Reverse(low, high Bound, yield func(key, value []byte) bool) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	scanTree(b.tree, low, high, true, yield)
	return nil
}

func (b *BTree) Len() (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.Len(), nil
}

func (b *BTree) Close() error {
	return nil
}
