package stats

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CounterSnapshot is the persisted form of one Counter
type CounterSnapshot struct {
	Kind        string        `json:"kind" yaml:"kind"`
	Ops         uint64        `json:"ops" yaml:"ops"`
	Outcomes    uint64        `json:"outcomes" yaml:"outcomes"`
	Label       string        `json:"label" yaml:"label"`
	Samples     uint64        `json:"samples" yaml:"samples"`
	Min         time.Duration `json:"min" yaml:"min"`
	Max         time.Duration `json:"max" yaml:"max"`
	Mean        time.Duration `json:"mean" yaml:"mean"`
	Percentiles []Percentile  `json:"percentiles,omitempty" yaml:"percentiles,omitempty"`
}

// Snapshot is the persisted form of an Aggregator. Every render is a pure
// function of it.
type Snapshot struct {
	Start    time.Time         `json:"start" yaml:"start"`
	Elapsed  time.Duration     `json:"elapsed" yaml:"elapsed"`
	Counters []CounterSnapshot `json:"counters" yaml:"counters"`
}

// Text renders one counter as `set = { ops=.., updates=.., latency={..} }`.
func (c CounterSnapshot) Text() string {
	if c.Ops == 0 {
		return ""
	}
	return fmt.Sprintf("%s = { ops=%d, %s=%d, latency=%s }",
		c.Kind, c.Ops, c.Label, c.Outcomes, c.latencyText())
}

func (c CounterSnapshot) latencyText() string {
	if c.Samples == 0 {
		return "{}"
	}
	return fmt.Sprintf("{ samples=%d, min=%v, max=%v, mean=%v, percentiles={ %s } }",
		c.Samples, c.Min, c.Max, c.Mean, formatPercentiles(c.Percentiles))
}

// Structured renders the counter as space separated key=value pairs
func (c CounterSnapshot) Structured() string {
	if c.Ops == 0 {
		return ""
	}
	fields := []string{
		fmt.Sprintf("%s.ops=%d", c.Kind, c.Ops),
		fmt.Sprintf("%s.%s=%d", c.Kind, c.Label, c.Outcomes),
		fmt.Sprintf("%s.samples=%d", c.Kind, c.Samples),
	}
	if c.Samples > 0 {
		fields = append(fields,
			fmt.Sprintf("%s.latency.min=%d", c.Kind, c.Min.Nanoseconds()),
			fmt.Sprintf("%s.latency.max=%d", c.Kind, c.Max.Nanoseconds()),
			fmt.Sprintf("%s.latency.mean=%d", c.Kind, c.Mean.Nanoseconds()),
		)
		for _, p := range c.Percentiles {
			fields = append(fields, fmt.Sprintf("%s.latency.p%d=%d", c.Kind, p.Pct, p.Latency.Nanoseconds()))
		}
	}
	return strings.Join(fields, " ")
}

// Counter returns the snapshot of kind, if present
func (s Snapshot) Counter(kind Kind) (CounterSnapshot, bool) {
	name := kind.String()
	for _, c := range s.Counters {
		if c.Kind == name {
			return c, true
		}
	}
	return CounterSnapshot{}, false
}

// Total returns the number of invocations across all counters
func (s Snapshot) Total() uint64 {
	var n uint64
	for _, c := range s.Counters {
		n += c.Ops
	}
	return n
}

// Text renders every non-empty counter, one per line
func (s Snapshot) Text() string {
	var b strings.Builder
	for _, c := range s.Counters {
		if line := c.Text(); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Structured renders every non-empty counter as key=value lines
func (s Snapshot) Structured() string {
	var b strings.Builder
	for _, c := range s.Counters {
		if line := c.Structured(); line != "" {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// JSON encodes the snapshot for persistence
func (s Snapshot) JSON() ([]byte, error) {
	return json.Marshal(s)
}

// ParseSnapshot decodes a snapshot produced by JSON
func ParseSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode stats snapshot: %w", err)
	}
	return s, nil
}

// Throughput returns ops per second. ok is false when either input is zero.
func Throughput(ops uint64, elapsed time.Duration) (rate float64, ok bool) {
	if ops == 0 || elapsed <= 0 {
		return 0, false
	}
	return float64(ops) / elapsed.Seconds(), true
}
