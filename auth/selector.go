package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/dozer75/httpcliauth/cache"
	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
	"github.com/dozer75/httpcliauth/secrets"
)

// Selector resolves named client configurations into authentication
// strategies. Strategies are built on first use and memoized until the
// configuration is reloaded. The token cache is shared between all
// OAuth2 strategies, so a reload does not discard tokens that are still
// valid.
type Selector struct {
	mu         sync.RWMutex
	cfg        *config.Config
	strategies map[string]Strategy

	tokenCache *TokenCache
	ownsCache  bool
	provider   *TokenProvider
	secrets    secrets.Source
	logger     observability.Logger
	metrics    *Metrics
}

// NewSelector creates a selector over the given configuration.
func NewSelector(cfg *config.Config, opts ...StrategyOption) *Selector {
	if cfg == nil {
		cfg = &config.Config{}
	}

	s := &Selector{
		cfg:        cfg,
		strategies: make(map[string]Strategy),
		secrets:    secrets.NewResolver(nil),
		logger:     observability.NopLogger(),
		metrics:    NopMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Resolve returns the strategy for the named client configuration,
// building it on first use. Secret references in the configuration are
// resolved once, at build time.
func (s *Selector) Resolve(ctx context.Context, name string) (Strategy, error) {
	s.mu.RLock()
	st, ok := s.strategies[name]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.strategies[name]; ok {
		return st, nil
	}

	cc, ok := s.cfg.Client(name)
	if !ok {
		return nil, NewConfigError(name, "authentication configuration section not found")
	}

	resolved, err := secrets.ResolveClientConfig(ctx, s.secrets, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve secrets for client %s: %w", name, err)
	}

	st, err = s.build(name, resolved)
	if err != nil {
		return nil, err
	}

	s.strategies[name] = st
	s.logger.Info("authentication strategy resolved",
		observability.String("client", name),
		observability.String("provider", st.Type()),
	)

	return st, nil
}

// MustResolve is Resolve that panics on error, for wiring done at
// startup.
func (s *Selector) MustResolve(ctx context.Context, name string) Strategy {
	st, err := s.Resolve(ctx, name)
	if err != nil {
		panic(err)
	}
	return st
}

func (s *Selector) build(name string, cc *config.ClientConfig) (Strategy, error) {
	provider := cc.GetEffectiveProvider()

	switch provider {
	case config.ProviderNone:
		return NewNoAuthStrategy(name), nil
	case config.ProviderAPIKey:
		return NewAPIKeyStrategy(name, cc.ApiKey, WithLogger(s.logger), WithMetrics(s.metrics))
	case config.ProviderBasic:
		return NewBasicStrategy(name, cc.Basic, WithLogger(s.logger), WithMetrics(s.metrics))
	case config.ProviderOAuth2:
		return s.buildOAuth2(name, cc.OAuth2)
	default:
		return nil, NewConfigError("authenticationProvider", fmt.Sprintf("unsupported authentication provider: %s", provider))
	}
}

func (s *Selector) buildOAuth2(name string, cfg *config.OAuth2Config) (Strategy, error) {
	provider := s.provider
	if provider == nil {
		if err := s.ensureTokenCache(); err != nil {
			return nil, err
		}

		providerOpts := []StrategyOption{
			WithLogger(s.logger),
			WithMetrics(s.metrics),
			WithTokenCache(s.tokenCache),
		}
		if cb := cfg.CircuitBreaker; cb != nil && cb.Enabled {
			providerOpts = append(providerOpts, WithCircuitBreaker(
				NewCircuitBreaker(name, cb, WithLogger(s.logger), WithMetrics(s.metrics)),
			))
		}
		provider = NewTokenProvider(providerOpts...)
	}

	return NewOAuth2Strategy(name, cfg,
		WithLogger(s.logger),
		WithMetrics(s.metrics),
		WithTokenProvider(provider),
	)
}

// ensureTokenCache builds the shared token cache from the cache section
// of the configuration present at first OAuth2 use. Callers hold mu.
func (s *Selector) ensureTokenCache() error {
	if s.tokenCache != nil {
		return nil
	}

	cacheCfg := s.cfg.Cache
	if cacheCfg == nil {
		cacheCfg = &config.CacheConfig{Enabled: true}
	}

	cacheOpts := []cache.Option{cache.WithLogger(s.logger)}
	if s.secrets != nil {
		cacheOpts = append(cacheOpts, cache.WithSecretSource(s.secrets))
	}

	backend, err := cache.New(cacheCfg, cacheOpts...)
	if err != nil {
		return fmt.Errorf("failed to create token cache: %w", err)
	}

	s.tokenCache = NewTokenCache(backend)
	s.ownsCache = true
	return nil
}

// Reload replaces the configuration and discards built strategies.
// Cached tokens survive; the next Resolve rebuilds strategies from the
// new configuration. The signature matches config.ReloadCallback so a
// selector can subscribe to a config registry directly.
func (s *Selector) Reload(cfg *config.Config) {
	if cfg == nil {
		cfg = &config.Config{}
	}

	s.mu.Lock()
	old := s.strategies
	s.strategies = make(map[string]Strategy)
	s.cfg = cfg
	s.mu.Unlock()

	for name, st := range old {
		if err := st.Close(); err != nil {
			s.logger.Warn("failed to close strategy during reload",
				observability.String("client", name),
				observability.Error(err),
			)
		}
	}

	s.logger.Info("authentication configuration reloaded",
		observability.Int("clients", len(cfg.Clients)),
	)
}

// Close releases all built strategies and the token cache when the
// selector created it itself.
func (s *Selector) Close() error {
	s.mu.Lock()
	strategies := s.strategies
	s.strategies = make(map[string]Strategy)
	tc := s.tokenCache
	ownsCache := s.ownsCache
	s.tokenCache = nil
	s.ownsCache = false
	s.mu.Unlock()

	var firstErr error
	for name, st := range strategies {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close strategy %s: %w", name, err)
		}
	}

	if ownsCache && tc != nil {
		if err := tc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
