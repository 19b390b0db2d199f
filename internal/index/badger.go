package index

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds how often a read-modify-write transaction is
// retried after badger reports a conflict with a concurrent writer.
const maxConflictRetries = 16

type BadgerOptions struct {
	DataPath   string
	InMemory   bool
	SyncWrites bool
}

// Badger adapts an embedded badger database to the Index interface.
// Badger keeps keys in lexicographic order, so range scans map directly
// onto its iterators.
type Badger struct {
	db *badger.DB
}

var _ Index = (*Badger)(nil)

func NewBadger(opts BadgerOptions) (*Badger, error) {
	bopts := badger.DefaultOptions(opts.DataPath)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithSyncWrites(opts.SyncWrites)
	bopts = bopts.WithLogger(nil) // Disable badger's default logger

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &Badger{db: db}, nil
}

// update runs fn in a read-write transaction, retrying on conflicts
func (b *Badger) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = b.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *Badger) Set(key, value []byte) ([]byte, bool, error) {
	var prev []byte
	var existed bool

	err := b.update(func(txn *badger.Txn) error {
		prev, existed = nil, false
		item, err := txn.Get(key)
		switch {
		case err == nil:
			existed = true
			if prev, err = item.ValueCopy(nil); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(clone(key), clone(value))
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger set: %w", err)
	}
	return prev, existed, nil
}

func (b *Badger) Delete(key []byte) ([]byte, error) {
	var prev []byte

	err := b.update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		if prev, err = item.ValueCopy(nil); err != nil {
			return err
		}
		return txn.Delete(clone(key))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger delete: %w", err)
	}
	return prev, nil
}

func (b *Badger) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}

		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return value, err
}

func (b *Badger) Iterate(yield func(key, value []byte) bool) error {
	return b.Range(Unbound(), Unbound(), yield)
}

func (b *Badger) Range(low, high Bound, yield func(key, value []byte) bool) error {
	return b.scan(low, high, false, yield)
}

func (b *Badger) Reverse(low, high Bound, yield func(key, value []byte) bool) error {
	return b.scan(low, high, true, yield)
}

func (b *Badger) scan(low, high Bound, reverse bool, yield func(key, value []byte) bool) error {
	if Empty(low, high) {
		return nil
	}

	return b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		opts.Reverse = reverse
		it := txn.NewIterator(opts)
		defer it.Close()

		// In reverse mode Seek lands on the largest key <= the seek key.
		start, first := low, AboveLow
		stop, last := high, BelowHigh
		if reverse {
			start, first = high, BelowHigh
			stop, last = low, AboveLow
		}

		if start.Kind == Unbounded {
			it.Rewind()
		} else {
			it.Seek(start.Key)
		}

		for ; it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if !first(key, start) {
				continue
			}
			if !last(key, stop) {
				return nil
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if !yield(key, value) {
				return nil
			}
		}
		return nil
	})
}

func (b *Badger) Len() (int, error) {
	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (b *Badger) Close() error {
	return b.db.Close()
}
