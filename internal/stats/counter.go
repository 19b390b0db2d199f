package stats

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSampleEvery is the timing cadence for cheap point operations
const DefaultSampleEvery = 8

// Kind identifies an operation kind
type Kind int

const (
	KindLoad Kind = iota
	KindSet
	KindDelete
	KindGet
	KindIterate
	KindRange
	KindReverse
)

// Kinds lists every operation kind in report order
var Kinds = []Kind{KindLoad, KindSet, KindDelete, KindGet, KindIterate, KindRange, KindReverse}

func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "load"
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	case KindGet:
		return "get"
	case KindIterate:
		return "iter"
	case KindRange:
		return "range"
	case KindReverse:
		return "reverse"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// OutcomeLabel names what the outcome counter means for this kind
func (k Kind) OutcomeLabel() string {
	switch k {
	case KindLoad, KindSet:
		return "updates"
	case KindDelete, KindGet:
		return "misses"
	default:
		return "items"
	}
}

// IsWrite reports whether the kind mutates the index
func (k Kind) IsWrite() bool {
	return k == KindLoad || k == KindSet || k == KindDelete
}

// Counter tracks invocations, outcomes and sampled latency for one kind
type Counter struct {
	kind     Kind
	every    uint64
	hist     *Histogram
	count    uint64
	outcomes uint64

	timing  bool
	started time.Time
}

// NewCounter creates a counter. every <= 0 selects DefaultSampleEvery.
func NewCounter(kind Kind, layout Layout, every int) *Counter {
	if every <= 0 {
		every = DefaultSampleEvery
	}
	return &Counter{
		kind:  kind,
		every: uint64(every),
		hist:  NewHistogram(layout),
	}
}

// SampleStart marks the beginning of one invocation. Heavy operations are
// always timed; others only on every Nth invocation.
func (c *Counter) SampleStart(heavy bool) {
	c.count++
	c.timing = heavy || c.count%c.every == 0
	if c.timing {
		c.started = time.Now()
	}
}

// SampleEnd completes the invocation started by SampleStart
func (c *Counter) SampleEnd(outcomeDelta uint64) {
	if c.timing {
		c.hist.Record(time.Since(c.started))
		c.timing = false
	}
	c.outcomes += outcomeDelta
}

// Merge folds other into c. On a layout mismatch c is left unchanged.
func (c *Counter) Merge(other *Counter) error {
	if other == nil {
		return nil
	}
	if err := c.hist.Merge(other.hist); err != nil {
		return err
	}
	c.count += other.count
	c.outcomes += other.outcomes
	return nil
}

// Reset clears all counts
func (c *Counter) Reset() {
	c.count = 0
	c.outcomes = 0
	c.timing = false
	c.hist.Reset()
}

func (c *Counter) Kind() Kind { return c.kind }
func (c *Counter) Count() uint64 { return c.count }
func (c *Counter) Outcomes() uint64 { return c.outcomes }
func (c *Counter) Histogram() *Histogram { return c.hist }
func (c *Counter) Percentiles() []Percentile { return c.hist.Percentiles() }

// Summary renders the counter on one line; empty when nothing ran.
func (c *Counter) Summary() string {
	return c.snapshot().Text()
}

func (c *Counter) snapshot() CounterSnapshot {
	s := CounterSnapshot{
		Kind:     c.kind.String(),
		Ops:      c.count,
		Outcomes: c.outcomes,
		Label:    c.kind.OutcomeLabel(),
		Samples:  c.hist.Samples(),
	}
	if mean, ok := c.hist.Mean(); ok {
		s.Min = c.hist.Min()
		s.Max = c.hist.Max()
		s.Mean = mean
		s.Percentiles = c.hist.Percentiles()
	}
	return s
}

func formatPercentiles(ps []Percentile) string {
	parts := make([]string, 0, len(ps))
	for _, p := range ps {
		parts = append(parts, fmt.Sprintf("%d=%v", p.Pct, p.Latency))
	}
	return strings.Join(parts, " ")
}
