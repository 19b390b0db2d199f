package stats

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// DefaultBuckets covers 100ms of latency at DefaultBucketWidth.
	DefaultBuckets     = 1_000_000
	DefaultBucketWidth = 100 * time.Nanosecond

	// percentileFloor is the first percentile reported in detail.
	percentileFloor = 90
)

// ErrLayoutMismatch is returned when merging histograms of different shape
var ErrLayoutMismatch = errors.New("histogram layout mismatch")

// Layout describes the bucket geometry of a Histogram
type Layout struct {
	Buckets int           `json:"buckets" yaml:"buckets"`
	Width   time.Duration `json:"width" yaml:"width"`
}

// DefaultLayout returns the standard 1,000,000 x 100ns layout
func DefaultLayout() Layout {
	return Layout{Buckets: DefaultBuckets, Width: DefaultBucketWidth}
}

func (l Layout) normalize() Layout {
	if l.Buckets <= 0 {
		l.Buckets = DefaultBuckets
	}
	if l.Width <= 0 {
		l.Width = DefaultBucketWidth
	}
	return l
}

// Range returns the largest latency that does not land in the overflow bucket.
func (l Layout) Range() time.Duration {
	return time.Duration(l.Buckets) * l.Width
}

// Percentile is one entry of the tail distribution
type Percentile struct {
	Pct     int           `json:"pct" yaml:"pct"`
	Latency time.Duration `json:"latency" yaml:"latency"`
}

// Histogram records latencies into fixed-width buckets.
//
// Latencies beyond the layout range are folded into the last bucket, which
// biases the top percentile downwards. Bucket storage is allocated on first
// use so that counters which never sample stay small.
//
// A Histogram is not safe for concurrent use; each task owns its own.
type Histogram struct {
	layout  Layout
	samples uint64
	total   time.Duration
	min     time.Duration
	max     time.Duration
	buckets []uint64
}

// NewHistogram creates an empty histogram with the given layout
func NewHistogram(layout Layout) *Histogram {
	h := &Histogram{layout: layout.normalize()}
	h.Reset()
	return h
}

// Record adds one latency sample
func (h *Histogram) Record(elapsed time.Duration) {
	if elapsed < 0 {
		elapsed = 0
	}
	if h.buckets == nil {
		h.buckets = make([]uint64, h.layout.Buckets)
	}

	h.samples++
	h.total += elapsed
	if elapsed < h.min {
		h.min = elapsed
	}
	if elapsed > h.max {
		h.max = elapsed
	}

	idx := int64(elapsed / h.layout.Width)
	if idx >= int64(h.layout.Buckets) {
		idx = int64(h.layout.Buckets) - 1
	}
	h.buckets[idx]++
}

// Mean returns the average latency. ok is false when nothing was recorded.
func (h *Histogram) Mean() (mean time.Duration, ok bool) {
	if h.samples == 0 {
		return 0, false
	}
	return h.total / time.Duration(h.samples), true
}

// Percentiles reports the tail of the distribution above the 90th percentile.
// An entry is emitted each time the accumulated whole percentage exceeds the
// previously emitted one; latencies are bucket lower bounds.
func (h *Histogram) Percentiles() []Percentile {
	if h.samples == 0 {
		return nil
	}

	var out []Percentile
	threshold := uint64(percentileFloor)
	var acc uint64
	for i, count := range h.buckets {
		if count == 0 {
			continue
		}
		acc += count
		pct := acc * 100 / h.samples
		if pct > threshold {
			out = append(out, Percentile{
				Pct:     int(pct),
				Latency: time.Duration(i) * h.layout.Width,
			})
			threshold = pct
		}
		if acc == h.samples {
			break
		}
	}
	return out
}

// Merge folds other into h. Both histograms must share the same layout.
func (h *Histogram) Merge(other *Histogram) error {
	if other == nil {
		return nil
	}
	if err := h.checkLayout(other); err != nil {
		return err
	}
	if other.samples == 0 {
		return nil
	}

	h.samples += other.samples
	h.total += other.total
	h.min = min(h.min, other.min)
	h.max = max(h.max, other.max)

	if h.buckets == nil {
		h.buckets = make([]uint64, h.layout.Buckets)
	}
	for i, count := range other.buckets {
		if count != 0 {
			h.buckets[i] += count
		}
	}
	return nil
}

func (h *Histogram) checkLayout(other *Histogram) error {
	if h.layout != other.layout {
		return fmt.Errorf("%w: %d x %v vs %d x %v", ErrLayoutMismatch,
			h.layout.Buckets, h.layout.Width, other.layout.Buckets, other.layout.Width)
	}
	return nil
}

// Reset returns the histogram to its empty state, keeping bucket storage.
func (h *Histogram) Reset() {
	h.samples = 0
	h.total = 0
	h.min = time.Duration(math.MaxInt64)
	h.max = time.Duration(math.MinInt64)
	clear(h.buckets)
}

// Clone returns an independent copy
func (h *Histogram) Clone() *Histogram {
	c := *h
	if h.buckets != nil {
		c.buckets = make([]uint64, len(h.buckets))
		copy(c.buckets, h.buckets)
	}
	return &c
}

func (h *Histogram) Layout() Layout { return h.layout }
func (h *Histogram) Samples() uint64 { return h.samples }
func (h *Histogram) Total() time.Duration { return h.total }

// Min returns the smallest sample, or the sentinel maximum duration when empty.
func (h *Histogram) Min() time.Duration { return h.min }

// Max returns the largest sample, or the sentinel minimum duration when empty.
func (h *Histogram) Max() time.Duration { return h.max }

// Bucket returns the count stored at index i
func (h *Histogram) Bucket(i int) uint64 {
	if h.buckets == nil || i < 0 || i >= len(h.buckets) {
		return 0
	}
	return h.buckets[i]
}

// BucketSum returns the sum of all bucket counts
func (h *Histogram) BucketSum() uint64 {
	var sum uint64
	for _, count := range h.buckets {
		sum += count
	}
	return sum
}

// Equal reports whether two histograms hold identical data
func (h *Histogram) Equal(other *Histogram) bool {
	if h.layout != other.layout || h.samples != other.samples || h.total != other.total ||
		h.min != other.min || h.max != other.max {
		return false
	}
	for i := 0; i < h.layout.Buckets; i++ {
		if h.Bucket(i) != other.Bucket(i) {
			return false
		}
	}
	return true
}
