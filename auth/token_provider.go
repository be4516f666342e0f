package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dozer75/httpcliauth/cache"
	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

// oauthGrantClientCredentials is the grant_type value on the wire.
const oauthGrantClientCredentials = "client_credentials"

// DefaultTokenRequestTimeout bounds token endpoint calls made with the
// default HTTP client.
const DefaultTokenRequestTimeout = 30 * time.Second

// Log message templates for token acquisition.
const (
	msgTokenFoundInCache  = "Token for %s with client id %s found in cache, using this."
	msgRequestingToken    = "Could not find existing token in cache, requesting token from endpoint %s with client id %s."
	msgTokenCached        = "Token retrieved from %s with client id %s and cached for %s seconds."
	msgTokenMissingExpiry = "Token retrieved from %s with client id %s, but not cached since it is missing expires_in information."
	msgTokenCacheDisabled = "Token retrieved from %s with client id %s, but the token cache is disabled."
	msgAuthFailedStatus   = "Could not authenticate against %s, the returned status code was %d. Response body: %s."
	msgInvalidOAuthResult = "The result from %s is not a valid OAuth2 result."
)

// TokenProvider acquires OAuth2 access tokens through the client
// credentials flow and caches them until shortly before expiry. It is
// safe for concurrent use; concurrent cache misses for the same
// configuration each call the token endpoint and the last response wins.
type TokenProvider struct {
	cache      *TokenCache
	ownsCache  bool
	httpClient *http.Client
	breaker    *CircuitBreaker
	logger     observability.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

// NewTokenProvider creates a token provider. Without WithTokenCache an
// in-memory cache is created and owned by the provider.
func NewTokenProvider(opts ...StrategyOption) *TokenProvider {
	p := &TokenProvider{
		httpClient: &http.Client{Timeout: DefaultTokenRequestTimeout},
		logger:     observability.NopLogger(),
		metrics:    NopMetrics(),
		tracer:     otel.Tracer("httpcliauth/auth"),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.cache == nil {
		backend, _ := cache.New(&config.CacheConfig{Enabled: true}, cache.WithLogger(p.logger))
		p.cache = NewTokenCache(backend)
		p.ownsCache = true
	}

	return p
}

// Close releases the token cache when the provider created it itself.
func (p *TokenProvider) Close() error {
	if p.ownsCache {
		return p.cache.Close()
	}
	return nil
}

// GetClientCredentialsToken returns an access token for the given OAuth2
// configuration, from cache when possible. Configuration errors are
// returned synchronously and never logged. A token endpoint answer that
// yields no usable token is logged once and reported as ErrNoValidToken;
// transport failures and cancellation propagate unlogged.
func (p *TokenProvider) GetClientCredentialsToken(ctx context.Context, cfg *config.OAuth2Config) (*AccessTokenResponse, error) {
	if err := validateClientCredentialsConfig(cfg); err != nil {
		return nil, err
	}

	endpoint := cfg.TokenEndpoint
	clientID := cfg.ClientCredentials.ClientID
	key := cacheKey(cfg.GrantType, endpoint, clientID)

	logFields := []observability.Field{
		observability.String("tokenEndpoint", endpoint),
		observability.String("clientId", clientID),
	}

	if !cfg.DisableTokenCache {
		cached, err := p.cache.Get(ctx, key)
		if err == nil {
			p.metrics.RecordCacheHit()
			p.logger.Info(fmt.Sprintf(msgTokenFoundInCache, endpoint, clientID), logFields...)
			normalizeTokenType(cfg, cached)
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			p.logger.Warn("token cache lookup failed", append(logFields, observability.Error(err))...)
		}
		p.metrics.RecordCacheMiss()
		p.logger.Debug(fmt.Sprintf(msgRequestingToken, endpoint, clientID), logFields...)
	}

	token, err := p.fetchToken(ctx, cfg, endpoint, clientID)
	if err != nil {
		return nil, err
	}

	if token.ExpiresIn != nil && *token.ExpiresIn > 0 {
		p.metrics.SetTokenExpiry(clientID, time.Now().Add(time.Duration(*token.ExpiresIn)*time.Second))
	}

	switch {
	case cfg.DisableTokenCache:
		p.logger.Info(fmt.Sprintf(msgTokenCacheDisabled, endpoint, clientID), logFields...)
	case token.ExpiresIn != nil && *token.ExpiresIn > 0:
		ttl, seconds := cacheTTL(*token.ExpiresIn)
		if err := p.cache.Set(ctx, key, token, ttl); err != nil {
			p.logger.Warn("failed to store token in cache", append(logFields, observability.Error(err))...)
		} else {
			p.logger.Info(fmt.Sprintf(msgTokenCached, endpoint, clientID, formatSeconds(seconds)), logFields...)
		}
	default:
		p.logger.Info(fmt.Sprintf(msgTokenMissingExpiry, endpoint, clientID), logFields...)
	}

	normalizeTokenType(cfg, token)
	return token, nil
}

// InvalidateToken removes the cached token for the configuration.
func (p *TokenProvider) InvalidateToken(ctx context.Context, cfg *config.OAuth2Config) error {
	if err := validateClientCredentialsConfig(cfg); err != nil {
		return err
	}
	return p.cache.Delete(ctx, cacheKey(cfg.GrantType, cfg.TokenEndpoint, cfg.ClientCredentials.ClientID))
}

// validateClientCredentialsConfig checks the preconditions in a fixed
// order: grant type, credentials section, client id, client secret,
// token endpoint.
func validateClientCredentialsConfig(cfg *config.OAuth2Config) error {
	if cfg == nil {
		return NewConfigError("oauth2", "OAuth2 configuration is required")
	}
	if cfg.GrantType != config.GrantTypeClientCredentials {
		return NewConfigError("grantType", fmt.Sprintf("grant type must be %s", config.GrantTypeClientCredentials))
	}
	if cfg.ClientCredentials == nil {
		return NewConfigError("clientCredentials", "client credentials configuration is required")
	}
	if config.IsBlank(cfg.ClientCredentials.ClientID) {
		return NewConfigError("clientCredentials.clientId", "clientId must be specified")
	}
	if config.IsBlank(cfg.ClientCredentials.ClientSecret) {
		return NewConfigError("clientCredentials.clientSecret", "clientSecret must be specified")
	}
	if config.IsBlank(cfg.TokenEndpoint) {
		return NewConfigError("tokenEndpoint", "tokenEndpoint must be specified")
	}
	return nil
}

// normalizeTokenType fills in the Authorization scheme: the configured
// override wins, then the endpoint's token_type, then Bearer.
func normalizeTokenType(cfg *config.OAuth2Config, token *AccessTokenResponse) {
	if scheme := cfg.GetEffectiveAuthorizationScheme(); scheme != "" {
		token.TokenType = scheme
		return
	}
	if config.IsBlank(token.TokenType) {
		token.TokenType = config.DefaultTokenType
	}
}

func (p *TokenProvider) fetchToken(ctx context.Context, cfg *config.OAuth2Config, endpoint, clientID string) (*AccessTokenResponse, error) {
	ctx, span := p.tracer.Start(ctx, "auth.token_request",
		trace.WithAttributes(
			attribute.String("oauth2.token_endpoint", endpoint),
			attribute.String("oauth2.client_id", clientID),
		))
	defer span.End()

	req, err := buildTokenRequest(ctx, cfg, endpoint)
	if err != nil {
		return nil, err
	}

	resp, err := p.do(req)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordTokenFetch(FetchOutcomeTransportError)
		return nil, fmt.Errorf("token request to %s failed: %w", endpoint, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		p.metrics.RecordTokenFetch(FetchOutcomeTransportError)
		return nil, fmt.Errorf("failed to read token response from %s: %w", endpoint, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		p.metrics.RecordTokenFetch(FetchOutcomeRejected)
		p.logAuthenticationFailure(endpoint, clientID, resp.StatusCode, body)
		return nil, ErrNoValidToken
	}

	var token AccessTokenResponse
	if err := json.Unmarshal(body, &token); err != nil || config.IsBlank(token.AccessToken) {
		p.metrics.RecordTokenFetch(FetchOutcomeInvalidResponse)
		p.logger.Error(fmt.Sprintf(msgInvalidOAuthResult, endpoint),
			observability.String("tokenEndpoint", endpoint),
			observability.String("clientId", clientID),
		)
		return nil, ErrNoValidToken
	}

	p.metrics.RecordTokenFetch(FetchOutcomeSuccess)
	return &token, nil
}

// logAuthenticationFailure logs a rejected token request. A 400 response
// carrying a parseable error body with a non-blank error code gets the
// consolidated OAuth2 message; everything else gets the generic one with
// the raw body.
func (p *TokenProvider) logAuthenticationFailure(endpoint, clientID string, statusCode int, body []byte) {
	fields := []observability.Field{
		observability.String("tokenEndpoint", endpoint),
		observability.String("clientId", clientID),
		observability.Int("statusCode", statusCode),
	}

	if statusCode == http.StatusBadRequest {
		var oauthErr ErrorResponse
		if err := json.Unmarshal(body, &oauthErr); err == nil && !config.IsBlank(oauthErr.Error) {
			p.logger.Error(oauthErrorMessage(endpoint, clientID, &oauthErr), fields...)
			return
		}
	}

	p.logger.Error(fmt.Sprintf(msgAuthFailedStatus, endpoint, statusCode, string(body)), fields...)
}

// oauthErrorMessage builds the consolidated error line. Optional parts
// appear only when present in the response.
func oauthErrorMessage(endpoint, clientID string, oauthErr *ErrorResponse) string {
	var b strings.Builder
	b.WriteString("Could not authenticate against ")
	b.WriteString(endpoint)
	if clientID != "" {
		b.WriteString(" with client id ")
		b.WriteString(clientID)
	}
	b.WriteString(". Error code: ")
	b.WriteString(oauthErr.Error)
	if oauthErr.ErrorDescription != "" {
		b.WriteString(", description: ")
		b.WriteString(oauthErr.ErrorDescription)
	}
	if oauthErr.ErrorURI != "" {
		b.WriteString(" (")
		b.WriteString(oauthErr.ErrorURI)
		b.WriteString(")")
	}
	b.WriteString(".")
	return b.String()
}

// buildTokenRequest assembles the form-encoded POST. Credentials go in
// the body unless useBasicAuthHeader moves them to an Authorization
// header. Additional body fields and query parameters override
// same-named values produced by the flow.
func buildTokenRequest(ctx context.Context, cfg *config.OAuth2Config, endpoint string) (*http.Request, error) {
	cc := cfg.ClientCredentials
	params := cfg.AdditionalParameters

	requestURL := endpoint
	if params != nil && len(params.QueryString) > 0 {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid token endpoint %s: %w", endpoint, err)
		}
		q := u.Query()
		for k, v := range params.QueryString {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		requestURL = u.String()
	}

	form := url.Values{}
	form.Set("grant_type", oauthGrantClientCredentials)
	if !cc.UseBasicAuthHeader {
		form.Set("client_id", cc.ClientID)
		form.Set("client_secret", cc.ClientSecret)
	}
	if scope := cfg.GetEffectiveScope(); scope != "" {
		form.Set("scope", scope)
	}
	if params != nil {
		for k, v := range params.Body {
			form.Set(k, v)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build token request for %s: %w", endpoint, err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cc.UseBasicAuthHeader {
		req.SetBasicAuth(cc.ClientID, cc.ClientSecret)
	}
	if params != nil {
		for k, v := range params.Header {
			req.Header.Set(k, v)
		}
	}

	return req, nil
}

func (p *TokenProvider) do(req *http.Request) (*http.Response, error) {
	if p.breaker != nil {
		result, err := p.breaker.Execute(func() (interface{}, error) {
			return p.httpClient.Do(req)
		})
		if err != nil {
			return nil, err
		}
		return result.(*http.Response), nil
	}
	return p.httpClient.Do(req)
}
