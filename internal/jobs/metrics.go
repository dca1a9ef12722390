package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tinytelemetry/queryview/internal/model"
)

// Metrics holds job instrumentation on a private registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry  *prometheus.Registry
	jobs      *prometheus.CounterVec
	active    prometheus.Gauge
	duration  prometheus.Histogram
	cacheHits *prometheus.CounterVec
}

// NewMetrics registers the job collectors plus the Go and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryview",
			Name:      "jobs_total",
			Help:      "Query jobs by lifecycle event.",
		}, []string{"status"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "queryview",
			Name:      "jobs_running",
			Help:      "Query jobs currently executing.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "queryview",
			Name:      "job_duration_seconds",
			Help:      "Runtime of finished query jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "queryview",
			Name:      "result_cache_lookups_total",
			Help:      "Result cache lookups by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.jobs, m.active, m.duration, m.cacheHits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for an HTTP handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) submitted() {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues("submitted").Inc()
}

func (m *Metrics) running(delta float64) {
	if m == nil {
		return
	}
	m.active.Add(delta)
}

func (m *Metrics) finished(status model.ExecutionStatus, seconds float64) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(string(status)).Inc()
	if status == model.StatusDone {
		m.duration.Observe(seconds)
	}
}

func (m *Metrics) cacheLookup(hit bool) {
	if m == nil {
		return
	}
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cacheHits.WithLabelValues(outcome).Inc()
}
