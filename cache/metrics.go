package cache

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records cache behavior to Prometheus.
type Metrics struct {
	hits      *prometheus.CounterVec
	misses    *prometheus.CounterVec
	evictions *prometheus.CounterVec
	errors    *prometheus.CounterVec
	entries   *prometheus.GaugeVec
	duration  *prometheus.HistogramVec
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// GetMetrics returns the process-wide cache metrics, registering the
// collectors on the default registry on first use.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			hits: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "hits_total",
				Help:      "Number of cache hits.",
			}, []string{"backend"}),
			misses: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "misses_total",
				Help:      "Number of cache misses.",
			}, []string{"backend"}),
			evictions: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "evictions_total",
				Help:      "Number of entries evicted before expiry.",
			}, []string{"backend"}),
			errors: promauto.NewCounterVec(prometheus.CounterOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "errors_total",
				Help:      "Number of failed cache operations.",
			}, []string{"backend", "operation"}),
			entries: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Current number of cached entries.",
			}, []string{"backend"}),
			duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "httpcliauth",
				Subsystem: "cache",
				Name:      "operation_duration_seconds",
				Help:      "Cache operation latency.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"backend", "operation"}),
		}
	})
	return metricsInstance
}

// RecordHit increments the hit counter.
func (m *Metrics) RecordHit(backend string) {
	if m == nil {
		return
	}
	m.hits.WithLabelValues(backend).Inc()
}

// RecordMiss increments the miss counter.
func (m *Metrics) RecordMiss(backend string) {
	if m == nil {
		return
	}
	m.misses.WithLabelValues(backend).Inc()
}

// RecordEviction increments the eviction counter.
func (m *Metrics) RecordEviction(backend string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(backend).Inc()
}

// RecordError increments the error counter for an operation.
func (m *Metrics) RecordError(backend, operation string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(backend, operation).Inc()
}

// SetEntries updates the entry count gauge.
func (m *Metrics) SetEntries(backend string, n int) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(backend).Set(float64(n))
}

// ObserveDuration records an operation latency.
func (m *Metrics) ObserveDuration(backend, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(backend, operation).Observe(d.Seconds())
}
