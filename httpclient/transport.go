// Package httpclient connects authentication strategies to net/http.
// A Transport authenticates every outgoing request before the base
// transport sends it, so an *http.Client built around it needs no
// per-call handling.
package httpclient

import (
	"context"
	"net/http"

	"github.com/dozer75/httpcliauth/auth"
	"github.com/dozer75/httpcliauth/observability"
)

// Transport is an http.RoundTripper that applies an authentication
// strategy to every request. The incoming request is never modified;
// the strategy decorates a clone.
type Transport struct {
	base     http.RoundTripper
	strategy auth.Strategy
	logger   observability.Logger
}

// Option configures a Transport.
type Option func(*Transport)

// WithBaseTransport sets the transport that performs the request.
// Defaults to http.DefaultTransport.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(t *Transport) {
		if base != nil {
			t.base = base
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// NewTransport creates a transport that authenticates requests with the
// given strategy.
func NewTransport(strategy auth.Strategy, opts ...Option) *Transport {
	t := &Transport{
		base:     http.DefaultTransport,
		strategy: strategy,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper. When the strategy fails, the
// request is not sent and the strategy's error is returned.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if err := t.strategy.Apply(req.Context(), clone); err != nil {
		return nil, err
	}

	t.logger.Debug("request authenticated",
		observability.String("client", t.strategy.Name()),
		observability.String("method", req.Method),
		observability.String("url", req.URL.String()),
	)

	return t.base.RoundTrip(clone)
}

// NewClient returns an http.Client whose requests authenticate with the
// named client configuration.
func NewClient(ctx context.Context, selector *auth.Selector, name string, opts ...Option) (*http.Client, error) {
	strategy, err := selector.Resolve(ctx, name)
	if err != nil {
		return nil, err
	}
	return &http.Client{Transport: NewTransport(strategy, opts...)}, nil
}

var _ http.RoundTripper = (*Transport)(nil)
