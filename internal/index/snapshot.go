package index

import (
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// Snapshot is a copy-on-write index. Every write clones the current tree
// (lazily, node by node), applies the change and publishes the new tree.
// Readers capture the published tree once per operation and never block
// writers.
type Snapshot struct {
	writeMu sync.Mutex
	current atomic.Pointer[btree.BTreeG[entry]]
}

var _ Index = (*Snapshot)(nil)

// NewSnapshot creates an empty copy-on-write index
func NewSnapshot(degree int) *Snapshot {
	s := &Snapshot{}
	s.current.Store(newTree(degree))
	return s
}

// update publishes the result of fn applied to a clone of the current tree
func (s *Snapshot) update(fn func(t *btree.BTreeG[entry])) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.current.Load().Clone()
	fn(next)
	s.current.Store(next)
}

func (s *Snapshot) Set(key, value []byte) ([]byte, bool, error) {
	e := entry{key: clone(key), value: clone(value)}

	var prev entry
	var existed bool
	s.update(func(t *btree.BTreeG[entry]) {
		prev, existed = t.ReplaceOrInsert(e)
	})
	return prev.value, existed, nil
}

func (s *Snapshot) Delete(key []byte) ([]byte, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// Misses leave the published tree untouched.
	cur := s.current.Load()
	if _, ok := cur.Get(entry{key: key}); !ok {
		return nil, ErrKeyNotFound
	}
	next := cur.Clone()
	prev, _ := next.Delete(entry{key: key})
	s.current.Store(next)
	return prev.value, nil
}

func (s *Snapshot) Get(key []byte) ([]byte, error) {
	e, ok := s.current.Load().Get(entry{key: key})
	if !ok {
		return nil, ErrKeyNotFound
	}
	return e.value, nil
}

func (s *Snapshot) Iterate(yield func(key, value []byte) bool) error {
	return s.Range(Unbound(), Unbound(), yield)
}

func (s *Snapshot) Range(low, high Bound, yield func(key, value []byte) bool) error {
	scanTree(s.current.Load(), low, high, false, yield)
	return nil
}

func (s *Snapshot) Reverse(low, high Bound, yield func(key, value []byte) bool) error {
	scanTree(s.current.Load(), low, high, true, yield)
	return nil
}

func (s *Snapshot) Len() (int, error) {
	return s.current.Load().Len(), nil
}

func (s *Snapshot) Close() error {
	return nil
}
