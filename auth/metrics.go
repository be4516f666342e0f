package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records authentication behavior to Prometheus. Each instance
// owns its registry so that tests and embedding applications can scrape
// or discard it independently.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	tokenFetchesTotal  *prometheus.CounterVec
	tokenExpiry        *prometheus.GaugeVec
	cacheHitsTotal     prometheus.Counter
	cacheMissesTotal   prometheus.Counter
	errorsTotal        *prometheus.CounterVec
	breakerTransitions *prometheus.CounterVec
}

// Token fetch outcomes.
const (
	FetchOutcomeSuccess         = "success"
	FetchOutcomeRejected        = "rejected"
	FetchOutcomeInvalidResponse = "invalid_response"
	FetchOutcomeTransportError  = "transport_error"
)

// NewMetrics creates metrics registered on a dedicated registry.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Number of requests decorated per client and provider.",
		}, []string{"client", "provider", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "request_duration_seconds",
			Help:      "Time spent decorating a request, including token acquisition.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"client", "provider"}),
		tokenFetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_fetches_total",
			Help:      "Number of token endpoint calls by outcome.",
		}, []string{"outcome"}),
		tokenExpiry: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_expiry_timestamp_seconds",
			Help:      "Unix time at which the most recently fetched token expires.",
		}, []string{"client_id"}),
		cacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_cache_hits_total",
			Help:      "Number of token cache hits.",
		}),
		cacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "token_cache_misses_total",
			Help:      "Number of token cache misses.",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "errors_total",
			Help:      "Number of decoration failures per client and reason.",
		}, []string{"client", "provider", "reason"}),
		breakerTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Number of circuit breaker state transitions.",
		}, []string{"name", "from", "to"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.tokenFetchesTotal,
		m.tokenExpiry,
		m.cacheHitsTotal,
		m.cacheMissesTotal,
		m.errorsTotal,
		m.breakerTransitions,
	)

	return m
}

// NopMetrics creates metrics whose registry is never scraped.
func NopMetrics() *Metrics {
	return NewMetrics("nop")
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest records one decorated request.
func (m *Metrics) RecordRequest(client, provider, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(client, provider, status).Inc()
	m.requestDuration.WithLabelValues(client, provider).Observe(duration.Seconds())
}

// RecordTokenFetch records one token endpoint call.
func (m *Metrics) RecordTokenFetch(outcome string) {
	if m == nil {
		return
	}
	m.tokenFetchesTotal.WithLabelValues(outcome).Inc()
}

// SetTokenExpiry records when the most recently fetched token for the
// client expires.
func (m *Metrics) SetTokenExpiry(clientID string, expiresAt time.Time) {
	if m == nil {
		return
	}
	m.tokenExpiry.WithLabelValues(clientID).Set(float64(expiresAt.Unix()))
}

// RecordCacheHit records a token cache hit.
func (m *Metrics) RecordCacheHit() {
	if m == nil {
		return
	}
	m.cacheHitsTotal.Inc()
}

// RecordCacheMiss records a token cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m == nil {
		return
	}
	m.cacheMissesTotal.Inc()
}

// RecordError records a decoration failure.
func (m *Metrics) RecordError(client, provider, reason string) {
	if m == nil {
		return
	}
	m.errorsTotal.WithLabelValues(client, provider, reason).Inc()
}

// RecordBreakerTransition records a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(name, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(name, from, to).Inc()
}
