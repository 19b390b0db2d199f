package workload

import (
	"fmt"

	"ixperf/internal/config"
	"ixperf/internal/stats"
)

// Quotas is the number of commands of each kind a stream must produce
type Quotas struct {
	Load    uint64 `json:"load,omitempty"`
	Set     uint64 `json:"set,omitempty"`
	Delete  uint64 `json:"delete,omitempty"`
	Get     uint64 `json:"get,omitempty"`
	Iterate uint64 `json:"iterate,omitempty"`
	Range   uint64 `json:"range,omitempty"`
	Reverse uint64 `json:"reverse,omitempty"`
}

// LoadQuotas is the initial-load share of a generator configuration
func LoadQuotas(g config.GeneratorConfig) Quotas {
	return Quotas{Load: g.Loads}
}

// IncrementalQuotas is the read/write mix of a generator configuration
func IncrementalQuotas(g config.GeneratorConfig) Quotas {
	return Quotas{
		Set:     g.Sets,
		Delete:  g.Deletes,
		Get:     g.Gets,
		Iterate: g.Iterates,
		Range:   g.Ranges,
		Reverse: g.Reverses,
	}
}

// slot returns the quota field for kind
func (q *Quotas) slot(kind stats.Kind) *uint64 {
	switch kind {
	case stats.KindLoad:
		return &q.Load
	case stats.KindSet:
		return &q.Set
	case stats.KindDelete:
		return &q.Delete
	case stats.KindGet:
		return &q.Get
	case stats.KindIterate:
		return &q.Iterate
	case stats.KindRange:
		return &q.Range
	case stats.KindReverse:
		return &q.Reverse
	default:
		panic(fmt.Sprintf("workload: unknown kind %d", kind))
	}
}

// Of returns the quota for kind
func (q Quotas) Of(kind stats.Kind) uint64 {
	return *q.slot(kind)
}

func (q Quotas) Total() uint64 {
	return q.Load + q.Writes() + q.Reads()
}

// Reads counts get, iterate, range and reverse commands
func (q Quotas) Reads() uint64 {
	return q.Get + q.Iterate + q.Range + q.Reverse
}

// Writes counts set and delete commands. Loads are accounted separately.
func (q Quotas) Writes() uint64 {
	return q.Set + q.Delete
}

func (q Quotas) ReadsOnly() Quotas {
	return Quotas{Get: q.Get, Iterate: q.Iterate, Range: q.Range, Reverse: q.Reverse}
}

func (q Quotas) WritesOnly() Quotas {
	return Quotas{Load: q.Load, Set: q.Set, Delete: q.Delete}
}

// Split divides every quota across n tasks. Remainders go to the lowest
// task ids, so the shares always sum to q.
func (q Quotas) Split(n int) []Quotas {
	if n <= 0 {
		return nil
	}
	shares := make([]Quotas, n)
	for _, kind := range stats.Kinds {
		total := q.Of(kind)
		each, rem := total/uint64(n), total%uint64(n)
		for i := range shares {
			share := each
			if uint64(i) < rem {
				share++
			}
			*shares[i].slot(kind) = share
		}
	}
	return shares
}

func (q Quotas) String() string {
	return fmt.Sprintf("load=%d set=%d delete=%d get=%d iterate=%d range=%d reverse=%d",
		q.Load, q.Set, q.Delete, q.Get, q.Iterate, q.Range, q.Reverse)
}
