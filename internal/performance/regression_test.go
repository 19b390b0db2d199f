package performance

import (
	"errors"
	"strings"
	"testing"
	"time"

	"ixperf/internal/pipeline"
	"ixperf/internal/stats"
)

func phase(name string, throughput float64, mean, p99 time.Duration) pipeline.PhaseSnapshot {
	return pipeline.PhaseSnapshot{
		Name:       name,
		Tasks:      1,
		Throughput: throughput,
		Stats: stats.Snapshot{
			Counters: []stats.CounterSnapshot{{
				Kind:    stats.KindGet.String(),
				Ops:     100,
				Label:   stats.KindGet.OutcomeLabel(),
				Samples: 100,
				Mean:    mean,
				Percentiles: []stats.Percentile{
					{Pct: 50, Latency: mean},
					{Pct: 99, Latency: p99},
				},
			}},
		},
	}
}

func report(seed uint64, phases ...pipeline.PhaseSnapshot) pipeline.ReportSnapshot {
	return pipeline.ReportSnapshot{Seed: seed, Index: "btree", Phases: phases}
}

func metric(t *testing.T, c *Comparison, name string) *MetricComparison {
	t.Helper()
	for _, m := range c.Metrics {
		if m.Metric == name {
			return m
		}
	}
	t.Fatalf("Metric %s not compared", name)
	return nil
}

func TestCompare(t *testing.T) {
	baseline := report(7, phase(pipeline.PhaseIncremental, 1000, time.Microsecond, 4*time.Microsecond))

	tests := []struct {
		name       string
		current    pipeline.ReportSnapshot
		throughput Direction
		mean       Direction
		severity   string
	}{
		{
			name:       "unchanged",
			current:    report(7, phase(pipeline.PhaseIncremental, 1020, time.Microsecond, 4*time.Microsecond)),
			throughput: Unchanged,
			mean:       Unchanged,
			severity:   "none",
		},
		{
			name:       "faster",
			current:    report(7, phase(pipeline.PhaseIncremental, 1500, 500*time.Nanosecond, 2*time.Microsecond)),
			throughput: Improved,
			mean:       Improved,
			severity:   "none",
		},
		{
			name:       "slower throughput",
			current:    report(7, phase(pipeline.PhaseIncremental, 940, time.Microsecond, 4*time.Microsecond)),
			throughput: Regressed,
			mean:       Unchanged,
			severity:   "minor",
		},
		{
			name:       "latency tripled",
			current:    report(7, phase(pipeline.PhaseIncremental, 1000, 3*time.Microsecond, 4*time.Microsecond)),
			throughput: Unchanged,
			mean:       Regressed,
			severity:   "critical",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Compare(baseline, tt.current, DefaultThresholds())

			if got := metric(t, c, "throughput").Direction; got != tt.throughput {
				t.Errorf("throughput direction = %s, want %s", got, tt.throughput)
			}
			if got := metric(t, c, "get.latency.mean").Direction; got != tt.mean {
				t.Errorf("mean latency direction = %s, want %s", got, tt.mean)
			}
			if c.Severity != tt.severity {
				t.Errorf("Severity = %s, want %s", c.Severity, tt.severity)
			}

			regressed := tt.throughput == Regressed || tt.mean == Regressed
			if err := c.Err(); errors.Is(err, ErrRegression) != regressed {
				t.Errorf("Err() = %v, regression expected %v", err, regressed)
			}
		})
	}
}

func TestCompareWarnsOnMismatchedReports(t *testing.T) {
	baseline := report(1, phase(pipeline.PhaseInitialLoad, 1000, time.Microsecond, time.Microsecond))
	current := report(2, phase(pipeline.PhaseIncremental, 1000, time.Microsecond, time.Microsecond))
	current.Index = "badger"

	c := Compare(baseline, current, DefaultThresholds())
	if len(c.Metrics) != 0 {
		t.Errorf("Expected no comparable metrics, got %d", len(c.Metrics))
	}
	if len(c.Warnings) != 3 {
		t.Errorf("Expected seed, index and phase warnings, got %v", c.Warnings)
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil", c.Err())
	}
}

func TestComparisonText(t *testing.T) {
	baseline := report(7, phase(pipeline.PhaseIncremental, 1000, time.Microsecond, 4*time.Microsecond))
	current := report(7, phase(pipeline.PhaseIncremental, 500, time.Microsecond, 4*time.Microsecond))

	text := Compare(baseline, current, DefaultThresholds()).Text()
	for _, want := range []string{"severity=critical", "throughput", "get.latency.p99", "regressed"} {
		if !strings.Contains(text, want) {
			t.Errorf("Text() missing %q:\n%s", want, text)
		}
	}
}
