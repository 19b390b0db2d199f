// Package performance compares persisted run reports against a baseline and
// flags throughput and latency regressions per phase and operation kind.
package performance

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"ixperf/internal/pipeline"
	"ixperf/internal/stats"
)

var ErrRegression = errors.New("performance regression detected")

// Thresholds are the largest acceptable changes, in percent
type Thresholds struct {
	Throughput float64 `json:"throughput"` // Max acceptable throughput decrease (%)
	Latency    float64 `json:"latency"`    // Max acceptable mean/p99 latency increase (%)
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Throughput: 5.0,
		Latency:    10.0,
	}
}

type Direction string

const (
	Improved  Direction = "improved"
	Regressed Direction = "regressed"
	Unchanged Direction = "unchanged"
)

// MetricComparison contains the comparison of a single metric
type MetricComparison struct {
	Phase         string    `json:"phase"`
	Metric        string    `json:"metric"`
	BaselineValue float64   `json:"baseline_value"`
	CurrentValue  float64   `json:"current_value"`
	ChangePercent float64   `json:"change_percent"`
	Direction     Direction `json:"direction"`
	Threshold     float64   `json:"threshold"`
}

// Comparison is the outcome of comparing two reports
type Comparison struct {
	BaselineSeed uint64              `json:"baseline_seed"`
	CurrentSeed  uint64              `json:"current_seed"`
	Metrics      []*MetricComparison `json:"metrics"`
	Severity     string              `json:"severity"` // "none", "minor", "major", "critical"
	Warnings     []string            `json:"warnings,omitempty"`
}

// Regressions returns the metrics that got worse beyond their threshold
func (c *Comparison) Regressions() []*MetricComparison {
	var out []*MetricComparison
	for _, m := range c.Metrics {
		if m.Direction == Regressed {
			out = append(out, m)
		}
	}
	return out
}

// Err returns ErrRegression when any metric regressed
func (c *Comparison) Err() error {
	regressed := c.Regressions()
	if len(regressed) == 0 {
		return nil
	}
	names := make([]string, len(regressed))
	for i, m := range regressed {
		names[i] = m.Phase + "." + m.Metric
	}
	return fmt.Errorf("%w: %s", ErrRegression, strings.Join(names, ", "))
}

// Text renders one line per compared metric
func (c *Comparison) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "baseline seed=%d current seed=%d severity=%s\n", c.BaselineSeed, c.CurrentSeed, c.Severity)
	for _, w := range c.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	for _, m := range c.Metrics {
		fmt.Fprintf(&b, "%-14s %-22s %14.2f -> %14.2f  %+7.2f%%  %s\n",
			m.Phase, m.Metric, m.BaselineValue, m.CurrentValue, m.ChangePercent, m.Direction)
	}
	return b.String()
}

// Compare matches the phases of current against baseline by name. Phases
// or operation kinds present in only one report are skipped with a warning.
func Compare(baseline, current pipeline.ReportSnapshot, th Thresholds) *Comparison {
	c := &Comparison{
		BaselineSeed: baseline.Seed,
		CurrentSeed:  current.Seed,
	}
	if baseline.Seed != current.Seed {
		c.Warnings = append(c.Warnings, "reports use different seeds, workloads differ")
	}
	if baseline.Index != current.Index {
		c.Warnings = append(c.Warnings, fmt.Sprintf("comparing index %s against %s", current.Index, baseline.Index))
	}

	for _, cur := range current.Phases {
		base, ok := findPhase(baseline, cur.Name)
		if !ok {
			c.Warnings = append(c.Warnings, fmt.Sprintf("phase %s missing from baseline", cur.Name))
			continue
		}
		c.add(cur.Name, "throughput", base.Throughput, cur.Throughput, th.Throughput, true)

		for _, kind := range stats.Kinds {
			bc, bok := base.Stats.Counter(kind)
			cc, cok := cur.Stats.Counter(kind)
			if !bok || !cok || bc.Samples == 0 || cc.Samples == 0 {
				continue
			}
			c.add(cur.Name, kind.String()+".latency.mean", nanos(bc.Mean), nanos(cc.Mean), th.Latency, false)
			if bp, cp, ok := p99(bc, cc); ok {
				c.add(cur.Name, kind.String()+".latency.p99", nanos(bp), nanos(cp), th.Latency, false)
			}
		}
	}

	sort.SliceStable(c.Metrics, func(i, j int) bool {
		return c.Metrics[i].Phase < c.Metrics[j].Phase
	})
	c.Severity = severity(c.Metrics)
	return c
}

func findPhase(r pipeline.ReportSnapshot, name string) (pipeline.PhaseSnapshot, bool) {
	for _, p := range r.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return pipeline.PhaseSnapshot{}, false
}

// p99 reads the 99th percentile of both counters. Percentile entries are
// only emitted when the accumulated share grows, so the first entry at or
// above 99 is the bucket where the 99th percentile falls.
func p99(base, cur stats.CounterSnapshot) (time.Duration, time.Duration, bool) {
	find := func(ps []stats.Percentile) (time.Duration, bool) {
		for _, p := range ps {
			if p.Pct >= 99 {
				return p.Latency, true
			}
		}
		return 0, false
	}
	b, bok := find(base.Percentiles)
	c, cok := find(cur.Percentiles)
	return b, c, bok && cok
}

func nanos(d time.Duration) float64 {
	return float64(d.Nanoseconds())
}

// add compares a single metric. higherIsBetter selects which sign of the
// change counts as an improvement.
func (c *Comparison) add(phase, metric string, baseline, current, threshold float64, higherIsBetter bool) {
	var change float64
	if baseline != 0 {
		change = (current - baseline) / baseline * 100
	}

	direction := Unchanged
	if math.Abs(change) > threshold {
		if (change > 0) == higherIsBetter {
			direction = Improved
		} else {
			direction = Regressed
		}
	}

	c.Metrics = append(c.Metrics, &MetricComparison{
		Phase:         phase,
		Metric:        metric,
		BaselineValue: baseline,
		CurrentValue:  current,
		ChangePercent: change,
		Direction:     direction,
		Threshold:     threshold,
	})
}

// severity grades the worst regression relative to its threshold
func severity(metrics []*MetricComparison) string {
	worst := 0.0
	for _, m := range metrics {
		if m.Direction != Regressed || m.Threshold == 0 {
			continue
		}
		worst = math.Max(worst, math.Abs(m.ChangePercent)/m.Threshold)
	}

	switch {
	case worst == 0:
		return "none"
	case worst < 2:
		return "minor"
	case worst < 5:
		return "major"
	default:
		return "critical"
	}
}
