// Package index defines the capability interface every index under test
// implements, along with reference adapters.
package index

import (
	"bytes"
	"errors"
	"fmt"
)

var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrUnknownIndex = errors.New("unknown index type")
	ErrClosed       = errors.New("index closed")
)

// Index is the set of operations the harness drives. Implementations may be
// shared across executor goroutines and are responsible for their own locking.
type Index interface {
	// Set stores value under key and reports the previous value, if any.
	Set(key, value []byte) (prev []byte, existed bool, err error)
	// Delete removes key. A missing key returns ErrKeyNotFound.
	Delete(key []byte) (prev []byte, err error)
	// Get returns the value for key or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)
	// Iterate visits every entry in ascending key order.
	Iterate(yield func(key, value []byte) bool) error
	// Range visits entries between low and high in ascending order.
	Range(low, high Bound, yield func(key, value []byte) bool) error
	// Reverse visits entries between low and high in descending order.
	Reverse(low, high Bound, yield func(key, value []byte) bool) error
	// Len returns the number of live entries.
	Len() (int, error)
	Close() error
}

// BoundKind selects how a Bound constrains a range
type BoundKind int

const (
	Unbounded BoundKind = iota
	Included
	Excluded
)

func (k BoundKind) String() string {
	switch k {
	case Included:
		return "included"
	case Excluded:
		return "excluded"
	default:
		return "unbounded"
	}
}

// Bound is one end of a range scan
type Bound struct {
	Kind BoundKind
	Key  []byte
}

func Include(key []byte) Bound { return Bound{Kind: Included, Key: key} }
func Exclude(key []byte) Bound { return Bound{Kind: Excluded, Key: key} }
func Unbound() Bound { return Bound{Kind: Unbounded} }

func (b Bound) String() string {
	if b.Kind == Unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%s(%x)", b.Kind, b.Key)
}

// AboveLow reports whether key satisfies the low bound
func AboveLow(key []byte, low Bound) bool {
	switch low.Kind {
	case Included:
		return bytes.Compare(key, low.Key) >= 0
	case Excluded:
		return bytes.Compare(key, low.Key) > 0
	default:
		return true
	}
}

// BelowHigh reports whether key satisfies the high bound
func BelowHigh(key []byte, high Bound) bool {
	switch high.Kind {
	case Included:
		return bytes.Compare(key, high.Key) <= 0
	case Excluded:
		return bytes.Compare(key, high.Key) < 0
	default:
		return true
	}
}

// Empty reports whether no key can satisfy both bounds. Inverted pairs and
// degenerate pairs such as Excluded(k)..Excluded(k) are empty.
func Empty(low, high Bound) bool {
	if low.Kind == Unbounded || high.Kind == Unbounded {
		return false
	}
	cmp := bytes.Compare(low.Key, high.Key)
	if cmp > 0 {
		return true
	}
	return cmp == 0 && (low.Kind == Excluded || high.Kind == Excluded)
}

// Contains reports whether key lies within low..high
func Contains(key []byte, low, high Bound) bool {
	return AboveLow(key, low) && BelowHigh(key, high)
}

// Count drains a scan and returns the number of entries it produced
func Count(scan func(yield func(key, value []byte) bool) error) (uint64, error) {
	var n uint64
	err := scan(func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
