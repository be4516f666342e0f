package auth

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

// Circuit breaker defaults when the configuration leaves them unset.
const (
	defaultBreakerMaxFailures = 5
	defaultBreakerTimeout     = 30 * time.Second
)

// CircuitBreaker wraps gobreaker.CircuitBreaker around token endpoint
// calls. Only transport failures count against it; a reachable endpoint
// that rejects credentials keeps the circuit closed.
type CircuitBreaker struct {
	name    string
	cb      *gobreaker.CircuitBreaker
	logger  observability.Logger
	metrics *Metrics
}

// NewCircuitBreaker creates a circuit breaker for the named token
// endpoint. The circuit opens after maxFailures consecutive failures and
// probes again after timeout.
func NewCircuitBreaker(name string, cfg *config.CircuitBreakerConfig, opts ...StrategyOption) *CircuitBreaker {
	b := &CircuitBreaker{
		name:    name,
		logger:  observability.NopLogger(),
		metrics: NopMetrics(),
	}

	for _, opt := range opts {
		opt(b)
	}

	maxFailures := uint32(defaultBreakerMaxFailures)
	timeout := defaultBreakerTimeout
	if cfg != nil {
		if cfg.MaxFailures > 0 {
			maxFailures = safeIntToUint32(cfg.MaxFailures)
		}
		if cfg.Timeout.Duration() > 0 {
			timeout = cfg.Timeout.Duration()
		}
	}

	settings := gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
			b.metrics.RecordBreakerTransition(name, from.String(), to.String())
		},
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}

// Execute runs fn through the circuit breaker.
func (b *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	return b.cb.Execute(fn)
}

// State returns the current state of the circuit breaker.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}
