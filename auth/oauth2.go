package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

// OAuth2Strategy acquires access tokens through the client credentials
// flow and sets the Authorization header on outgoing requests. Token
// caching and endpoint calls are delegated to a TokenProvider, which may
// be shared between strategies.
type OAuth2Strategy struct {
	name         string
	cfg          *config.OAuth2Config
	provider     *TokenProvider
	ownsProvider bool
	logger       observability.Logger
	metrics      *Metrics
}

// NewOAuth2Strategy creates an OAuth2 strategy. The grant type must be
// clientCredentials; the remaining configuration is validated by the
// token provider on every call.
func NewOAuth2Strategy(name string, cfg *config.OAuth2Config, opts ...StrategyOption) (*OAuth2Strategy, error) {
	if cfg == nil {
		return nil, NewConfigError("oauth2", "OAuth2 configuration is required")
	}
	if config.IsBlank(cfg.GrantType) {
		return nil, NewConfigError("grantType", "GrantType must be specified")
	}
	if cfg.GrantType != config.GrantTypeClientCredentials {
		return nil, NewConfigError("grantType", fmt.Sprintf("GrantType %s is not supported", cfg.GrantType))
	}

	s := &OAuth2Strategy{
		name:    name,
		cfg:     cfg.Clone(),
		logger:  observability.NopLogger(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.provider == nil {
		providerOpts := []StrategyOption{
			WithLogger(s.logger),
			WithMetrics(s.metrics),
		}
		if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
			providerOpts = append(providerOpts, WithCircuitBreaker(
				NewCircuitBreaker(name, cb, WithLogger(s.logger), WithMetrics(s.metrics)),
			))
		}
		s.provider = NewTokenProvider(providerOpts...)
		s.ownsProvider = true
	}

	s.logger.Debug("oauth2 strategy initialized",
		observability.String("client", name),
		observability.String("tokenEndpoint", cfg.TokenEndpoint),
	)

	return s, nil
}

func (s *OAuth2Strategy) Name() string {
	return s.name
}

func (s *OAuth2Strategy) Type() string {
	return config.ProviderOAuth2
}

// Apply sets the Authorization header from a cached or freshly acquired
// token. Configuration errors and transport failures propagate as-is; a
// token endpoint answer without a usable token is wrapped in a
// ProviderError carrying ErrNoValidToken.
func (s *OAuth2Strategy) Apply(ctx context.Context, req *http.Request) error {
	start := time.Now()

	token, err := s.provider.GetClientCredentialsToken(ctx, s.cfg)
	if err != nil {
		s.metrics.RecordError(s.name, config.ProviderOAuth2, errorReason(err))
		s.metrics.RecordRequest(s.name, config.ProviderOAuth2, "error", time.Since(start))
		if errors.Is(err, ErrNoValidToken) {
			return NewProviderErrorWithCause(s.name, "apply", "could not acquire access token", err)
		}
		return err
	}

	req.Header.Set("Authorization", token.TokenType+" "+token.AccessToken)
	s.metrics.RecordRequest(s.name, config.ProviderOAuth2, "success", time.Since(start))
	return nil
}

// Refresh drops the cached token and acquires a fresh one.
func (s *OAuth2Strategy) Refresh(ctx context.Context) error {
	if err := s.provider.InvalidateToken(ctx, s.cfg); err != nil {
		return err
	}
	_, err := s.provider.GetClientCredentialsToken(ctx, s.cfg)
	return err
}

// Close releases the token provider when the strategy created it itself.
func (s *OAuth2Strategy) Close() error {
	if s.ownsProvider {
		return s.provider.Close()
	}
	return nil
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidConfig):
		return "config"
	case errors.Is(err, ErrNoValidToken):
		return "no_valid_token"
	default:
		return "transport"
	}
}

var _ Strategy = (*OAuth2Strategy)(nil)
