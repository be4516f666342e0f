package auth

import (
	"net/http"

	"github.com/dozer75/httpcliauth/observability"
	"github.com/dozer75/httpcliauth/secrets"
)

// StrategyOption configures strategies, the token provider, the selector
// and the circuit breaker. Options not applicable to the target are
// ignored.
type StrategyOption func(interface{})

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) StrategyOption {
	return func(target interface{}) {
		switch t := target.(type) {
		case *APIKeyStrategy:
			t.logger = logger
		case *BasicStrategy:
			t.logger = logger
		case *OAuth2Strategy:
			t.logger = logger
		case *TokenProvider:
			t.logger = logger
		case *Selector:
			t.logger = logger
		case *CircuitBreaker:
			t.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) StrategyOption {
	return func(target interface{}) {
		switch t := target.(type) {
		case *APIKeyStrategy:
			t.metrics = m
		case *BasicStrategy:
			t.metrics = m
		case *OAuth2Strategy:
			t.metrics = m
		case *TokenProvider:
			t.metrics = m
		case *Selector:
			t.metrics = m
		case *CircuitBreaker:
			t.metrics = m
		}
	}
}

// WithHTTPClient sets the HTTP client used for token endpoint calls.
func WithHTTPClient(client *http.Client) StrategyOption {
	return func(target interface{}) {
		if t, ok := target.(*TokenProvider); ok && client != nil {
			t.httpClient = client
		}
	}
}

// WithTokenProvider injects a shared token provider. The receiver does
// not close an injected provider.
func WithTokenProvider(provider *TokenProvider) StrategyOption {
	return func(target interface{}) {
		switch t := target.(type) {
		case *OAuth2Strategy:
			t.provider = provider
		case *Selector:
			t.provider = provider
		}
	}
}

// WithTokenCache injects the token cache used for acquired tokens. A
// cache injected into a selector is shared by every OAuth2 strategy it
// builds and is not closed by the selector.
func WithTokenCache(tc *TokenCache) StrategyOption {
	return func(target interface{}) {
		if tc == nil {
			return
		}
		switch t := target.(type) {
		case *TokenProvider:
			t.cache = tc
		case *Selector:
			t.tokenCache = tc
		}
	}
}

// WithCircuitBreaker wraps token endpoint calls in a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) StrategyOption {
	return func(target interface{}) {
		if t, ok := target.(*TokenProvider); ok {
			t.breaker = cb
		}
	}
}

// WithSecretSource sets the source used to resolve secret references in
// client configurations.
func WithSecretSource(src secrets.Source) StrategyOption {
	return func(target interface{}) {
		if t, ok := target.(*Selector); ok {
			t.secrets = src
		}
	}
}
