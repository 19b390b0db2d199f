package stats

import (
	"fmt"
	"time"
)

// Options configures every counter of an Aggregator
type Options struct {
	Layout      Layout
	SampleEvery int
}

// DefaultOptions returns the default histogram layout and sampling cadence
func DefaultOptions() Options {
	return Options{Layout: DefaultLayout(), SampleEvery: DefaultSampleEvery}
}

// Aggregator is the set of counters owned by one task for one phase.
// It must only be mutated by its owner; merging happens after the owner
// is done or hands it over.
type Aggregator struct {
	Load    *Counter
	Set     *Counter
	Delete  *Counter
	Get     *Counter
	Iterate *Counter
	Range   *Counter
	Reverse *Counter

	opts  Options
	start time.Time
}

// NewAggregator creates an empty aggregator starting now
func NewAggregator(opts Options) *Aggregator {
	opts.Layout = opts.Layout.normalize()
	if opts.SampleEvery <= 0 {
		opts.SampleEvery = DefaultSampleEvery
	}
	newCounter := func(kind Kind) *Counter {
		return NewCounter(kind, opts.Layout, opts.SampleEvery)
	}
	return &Aggregator{
		Load:    newCounter(KindLoad),
		Set:     newCounter(KindSet),
		Delete:  newCounter(KindDelete),
		Get:     newCounter(KindGet),
		Iterate: newCounter(KindIterate),
		Range:   newCounter(KindRange),
		Reverse: newCounter(KindReverse),
		opts:    opts,
		start:   time.Now(),
	}
}

// Counter returns the counter for kind
func (a *Aggregator) Counter(kind Kind) *Counter {
	switch kind {
	case KindLoad:
		return a.Load
	case KindSet:
		return a.Set
	case KindDelete:
		return a.Delete
	case KindGet:
		return a.Get
	case KindIterate:
		return a.Iterate
	case KindRange:
		return a.Range
	case KindReverse:
		return a.Reverse
	default:
		return nil
	}
}

func (a *Aggregator) counters() []*Counter {
	return []*Counter{a.Load, a.Set, a.Delete, a.Get, a.Iterate, a.Range, a.Reverse}
}

// Merge folds other into a, counter by counter. The merged start time is the
// earlier of the two. Layouts are checked before anything is folded, so a
// failed merge leaves a unchanged.
func (a *Aggregator) Merge(other *Aggregator) error {
	if other == nil {
		return nil
	}
	for _, kind := range Kinds {
		if oc := other.Counter(kind); oc != nil {
			if err := a.Counter(kind).hist.checkLayout(oc.hist); err != nil {
				return fmt.Errorf("%s: %w", kind, err)
			}
		}
	}
	for _, kind := range Kinds {
		if err := a.Counter(kind).Merge(other.Counter(kind)); err != nil {
			return err
		}
	}
	if other.start.Before(a.start) {
		a.start = other.start
	}
	return nil
}

// Reset clears every counter and restarts the clock
func (a *Aggregator) Reset() {
	for _, c := range a.counters() {
		c.Reset()
	}
	a.start = time.Now()
}

func (a *Aggregator) Options() Options { return a.opts }
func (a *Aggregator) Start() time.Time { return a.start }
func (a *Aggregator) Elapsed() time.Duration { return time.Since(a.start) }

// IsElapsed reports whether interval has passed since the aggregator started.
func (a *Aggregator) IsElapsed(interval time.Duration) bool {
	return interval > 0 && time.Since(a.start) >= interval
}

// Total returns the number of invocations across all kinds
func (a *Aggregator) Total() uint64 {
	var n uint64
	for _, c := range a.counters() {
		n += c.Count()
	}
	return n
}

// TotalReads counts get, iterate, range and reverse invocations
func (a *Aggregator) TotalReads() uint64 {
	return a.Get.Count() + a.Iterate.Count() + a.Range.Count() + a.Reverse.Count()
}

// TotalWrites counts load, set and delete invocations
func (a *Aggregator) TotalWrites() uint64 {
	return a.Load.Count() + a.Set.Count() + a.Delete.Count()
}

// ExpectedEntries derives the index size implied by write outcomes, assuming
// the index started empty.
func (a *Aggregator) ExpectedEntries() int64 {
	inserted := int64(a.Load.Count()-a.Load.Outcomes()) + int64(a.Set.Count()-a.Set.Outcomes())
	deleted := int64(a.Delete.Count() - a.Delete.Outcomes())
	return inserted - deleted
}

// Snapshot captures the aggregator as plain data
func (a *Aggregator) Snapshot() Snapshot {
	s := Snapshot{
		Start:   a.start,
		Elapsed: time.Since(a.start),
	}
	for _, c := range a.counters() {
		s.Counters = append(s.Counters, c.snapshot())
	}
	return s
}

// String renders the aggregator in human-readable form
func (a *Aggregator) String() string {
	return a.Snapshot().Text()
}
