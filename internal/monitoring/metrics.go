package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ixperf/internal/pipeline"
	"ixperf/internal/stats"
)

const namespace = "ixperf"

// Metrics exports pipeline statistics to Prometheus. It is a
// pipeline.Reporter: counters grow by every task window, gauges hold the
// latest observed latency.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	meanLat    *prometheus.GaugeVec
	maxLat     *prometheus.GaugeVec
	samples    *prometheus.CounterVec

	throughput *prometheus.GaugeVec
	elapsed    *prometheus.GaugeVec
	phases     prometheus.Counter
}

var opLabels = []string{"phase", "op"}

// NewMetrics registers the ixperf collectors on a private registry, so
// several runs in one process do not collide
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Index operations executed",
		}, opLabels),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Operation outcomes: updates for writes, misses for point reads, items for scans",
		}, opLabels),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "latency_samples_total",
			Help:      "Operations whose latency was timed",
		}, opLabels),
		meanLat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_mean_seconds",
			Help:      "Mean sampled latency of the latest window",
		}, opLabels),
		maxLat: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "latency_max_seconds",
			Help:      "Maximum sampled latency of the latest window",
		}, opLabels),
		throughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_throughput_ops",
			Help:      "Operations per second of a finished phase",
		}, []string{"phase"}),
		elapsed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase_elapsed_seconds",
			Help:      "Wall time of a finished phase",
		}, []string{"phase"}),
		phases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phases_completed_total",
			Help:      "Phases that finished without error",
		}),
	}

	m.registry.MustRegister(
		m.operations, m.outcomes, m.samples,
		m.meanLat, m.maxLat,
		m.throughput, m.elapsed, m.phases,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the private registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) TaskStats(phase string, _ pipeline.Task, window stats.Snapshot) {
	for _, c := range window.Counters {
		if c.Ops == 0 {
			continue
		}
		m.operations.WithLabelValues(phase, c.Kind).Add(float64(c.Ops))
		m.outcomes.WithLabelValues(phase, c.Kind).Add(float64(c.Outcomes))
		m.observeLatency(phase, c)
	}
}

func (m *Metrics) PhaseDone(result *pipeline.PhaseResult) {
	snap := result.Snapshot()
	for _, c := range snap.Stats.Counters {
		if c.Ops > 0 {
			m.setLatency(snap.Name, c)
		}
	}
	m.elapsed.WithLabelValues(snap.Name).Set(snap.Elapsed.Seconds())
	m.throughput.WithLabelValues(snap.Name).Set(snap.Throughput)
	m.phases.Inc()
}

func (m *Metrics) observeLatency(phase string, c stats.CounterSnapshot) {
	if c.Samples == 0 {
		return
	}
	m.samples.WithLabelValues(phase, c.Kind).Add(float64(c.Samples))
	m.setLatency(phase, c)
}

func (m *Metrics) setLatency(phase string, c stats.CounterSnapshot) {
	if c.Samples == 0 {
		return
	}
	m.meanLat.WithLabelValues(phase, c.Kind).Set(c.Mean.Seconds())
	m.maxLat.WithLabelValues(phase, c.Kind).Set(c.Max.Seconds())
}
