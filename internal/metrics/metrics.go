package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps Prometheus collectors for cloudforge.
type Metrics struct {
	registry              *prometheus.Registry
	runDurationSeconds    prometheus.Histogram
	runsTotal             *prometheus.CounterVec
	schemaFetchesTotal    *prometheus.CounterVec
	cacheOperationsTotal  *prometheus.CounterVec
	findingsTotal         *prometheus.CounterVec
	resourcesGauge        prometheus.Gauge
	lastSuccessfulRunTime prometheus.Gauge
}

// New initializes a Metrics registry with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		runDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cloudforge_run_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudforge_runs_total",
			Help: "Total pipeline runs by final status.",
		}, []string{"status"}),
		schemaFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudforge_schema_fetches_total",
			Help: "Total schema service lookups by outcome.",
		}, []string{"outcome"}),
		cacheOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudforge_cache_operations_total",
			Help: "Cache hits, misses, and evictions per cache.",
		}, []string{"cache", "operation"}),
		findingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cloudforge_validation_findings_total",
			Help: "Validation findings emitted by severity.",
		}, []string{"severity"}),
		resourcesGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudforge_resources_synthesized",
			Help: "Resources synthesized in the most recent run.",
		}),
		lastSuccessfulRunTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cloudforge_last_successful_run_timestamp",
			Help: "Unix timestamp of the last run that did not fail.",
		}),
	}

	registry.MustRegister(
		m.runDurationSeconds,
		m.runsTotal,
		m.schemaFetchesTotal,
		m.cacheOperationsTotal,
		m.findingsTotal,
		m.resourcesGauge,
		m.lastSuccessfulRunTime,
	)

	return m
}

// Handler returns a Prometheus HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRunDuration records the duration of a completed run.
func (m *Metrics) ObserveRunDuration(duration time.Duration) {
	if m == nil {
		return
	}
	m.runDurationSeconds.Observe(duration.Seconds())
}

// IncRunsTotal increments the run counter for the given final status.
func (m *Metrics) IncRunsTotal(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// IncSchemaFetches increments the schema lookup counter. Outcome is one of
// "fetched", "cached", "fallback", or "not-found".
func (m *Metrics) IncSchemaFetches(outcome string) {
	if m == nil {
		return
	}
	m.schemaFetchesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheStats sets cache counters from a hit/miss/eviction snapshot.
// Counters only grow, so callers pass deltas since the last report.
func (m *Metrics) RecordCacheStats(cache string, hits, misses, evictions uint64) {
	if m == nil {
		return
	}
	m.cacheOperationsTotal.WithLabelValues(cache, "hit").Add(float64(hits))
	m.cacheOperationsTotal.WithLabelValues(cache, "miss").Add(float64(misses))
	m.cacheOperationsTotal.WithLabelValues(cache, "eviction").Add(float64(evictions))
}

// IncFindings adds to the findings counter for one severity.
func (m *Metrics) IncFindings(severity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.findingsTotal.WithLabelValues(severity).Add(float64(count))
}

// SetResourcesSynthesized records the size of the latest run's output.
func (m *Metrics) SetResourcesSynthesized(count int) {
	if m == nil {
		return
	}
	m.resourcesGauge.Set(float64(count))
}

// SetLastSuccessfulRunTimestamp sets the last non-failed run time.
func (m *Metrics) SetLastSuccessfulRunTimestamp(t time.Time) {
	if m == nil {
		return
	}
	m.lastSuccessfulRunTime.Set(float64(t.Unix()))
}
