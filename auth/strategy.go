package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

// Strategy decorates outgoing HTTP requests with authentication. A
// strategy is built once from a resolved client configuration and is
// safe for concurrent use.
type Strategy interface {
	// Name returns the client configuration name this strategy was
	// built for.
	Name() string

	// Type returns the authentication provider identifier.
	Type() string

	// Apply decorates the request in place. The request is not sent.
	Apply(ctx context.Context, req *http.Request) error

	// Refresh discards any cached credentials and acquires fresh ones.
	// A no-op for strategies without cached state.
	Refresh(ctx context.Context) error

	// Close releases resources owned by the strategy.
	Close() error
}

// NoAuthStrategy leaves requests untouched.
type NoAuthStrategy struct {
	name string
}

// NewNoAuthStrategy creates a pass-through strategy.
func NewNoAuthStrategy(name string) *NoAuthStrategy {
	return &NoAuthStrategy{name: name}
}

func (s *NoAuthStrategy) Name() string {
	return s.name
}

func (s *NoAuthStrategy) Type() string {
	return config.ProviderNone
}

func (s *NoAuthStrategy) Apply(context.Context, *http.Request) error {
	return nil
}

func (s *NoAuthStrategy) Refresh(context.Context) error {
	return nil
}

func (s *NoAuthStrategy) Close() error {
	return nil
}

// APIKeyStrategy adds a static key header to every request. The header
// is added, not replaced, so an existing same-named header survives.
type APIKeyStrategy struct {
	name    string
	header  string
	value   string
	logger  observability.Logger
	metrics *Metrics
}

// NewAPIKeyStrategy creates an API key strategy. Header and value must
// not be blank.
func NewAPIKeyStrategy(name string, cfg *config.APIKeyConfig, opts ...StrategyOption) (*APIKeyStrategy, error) {
	if cfg == nil {
		return nil, NewConfigError("apiKey", "ApiKey configuration is required")
	}
	if config.IsBlank(cfg.Header) {
		return nil, NewConfigError("apiKey.header", "header must be specified")
	}
	if config.IsBlank(cfg.Value) {
		return nil, NewConfigError("apiKey.value", "value must be specified")
	}

	s := &APIKeyStrategy{
		name:    name,
		header:  cfg.Header,
		value:   cfg.Value,
		logger:  observability.NopLogger(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Debug("api key strategy initialized",
		observability.String("client", name),
		observability.String("header", cfg.Header),
	)

	return s, nil
}

func (s *APIKeyStrategy) Name() string {
	return s.name
}

func (s *APIKeyStrategy) Type() string {
	return config.ProviderAPIKey
}

func (s *APIKeyStrategy) Apply(_ context.Context, req *http.Request) error {
	start := time.Now()
	req.Header.Add(s.header, s.value)
	s.metrics.RecordRequest(s.name, config.ProviderAPIKey, "success", time.Since(start))
	return nil
}

func (s *APIKeyStrategy) Refresh(context.Context) error {
	return nil
}

func (s *APIKeyStrategy) Close() error {
	return nil
}

// BasicStrategy sets an RFC 7617 Authorization header.
type BasicStrategy struct {
	name     string
	username string
	password string
	logger   observability.Logger
	metrics  *Metrics
}

// NewBasicStrategy creates a Basic authentication strategy. Username and
// password must not be blank.
func NewBasicStrategy(name string, cfg *config.BasicAuthConfig, opts ...StrategyOption) (*BasicStrategy, error) {
	if cfg == nil {
		return nil, NewConfigError("basic", "Basic configuration is required")
	}
	if config.IsBlank(cfg.Username) {
		return nil, NewConfigError("basic.username", "username must be specified")
	}
	if config.IsBlank(cfg.Password) {
		return nil, NewConfigError("basic.password", "password must be specified")
	}

	s := &BasicStrategy{
		name:     name,
		username: cfg.Username,
		password: cfg.Password,
		logger:   observability.NopLogger(),
		metrics:  NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger.Debug("basic auth strategy initialized",
		observability.String("client", name),
	)

	return s, nil
}

func (s *BasicStrategy) Name() string {
	return s.name
}

func (s *BasicStrategy) Type() string {
	return config.ProviderBasic
}

func (s *BasicStrategy) Apply(_ context.Context, req *http.Request) error {
	start := time.Now()
	req.SetBasicAuth(s.username, s.password)
	s.metrics.RecordRequest(s.name, config.ProviderBasic, "success", time.Since(start))
	return nil
}

func (s *BasicStrategy) Refresh(context.Context) error {
	return nil
}

func (s *BasicStrategy) Close() error {
	return nil
}

var (
	_ Strategy = (*NoAuthStrategy)(nil)
	_ Strategy = (*APIKeyStrategy)(nil)
	_ Strategy = (*BasicStrategy)(nil)
)
