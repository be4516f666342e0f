// Package config defines the configuration model for outgoing HTTP
// authentication. A configuration file holds one or more named client
// sections, each selecting an authentication provider and carrying the
// provider-specific settings, plus shared cache and logging sections.
package config

import (
	"fmt"
	"sort"
	"strings"
)

// Authentication provider identifiers used in client configuration sections.
const (
	ProviderNone   = "None"
	ProviderAPIKey = "ApiKey"
	ProviderBasic  = "Basic"
	ProviderOAuth2 = "OAuth2"
)

// GrantTypeClientCredentials is the only OAuth2 grant type supported for
// outgoing requests. The configuration value is distinct from the wire
// value (grant_type=client_credentials) sent to the token endpoint.
const GrantTypeClientCredentials = "clientCredentials"

// DefaultTokenType is the Authorization scheme applied when the token
// endpoint omits token_type and no authorizationScheme override is set.
const DefaultTokenType = "Bearer"

var validProviders = map[string]bool{
	ProviderNone:   true,
	ProviderAPIKey: true,
	ProviderBasic:  true,
	ProviderOAuth2: true,
}

// Config is the root configuration: named client sections plus the shared
// cache, logging and secret source settings.
type Config struct {
	// Clients maps a configuration name to its authentication settings.
	Clients map[string]*ClientConfig `yaml:"clients" json:"clients"`

	// Cache configures the shared token cache.
	Cache *CacheConfig `yaml:"cache,omitempty" json:"cache,omitempty"`

	// Logging configures structured logging.
	Logging *LoggingConfig `yaml:"logging,omitempty" json:"logging,omitempty"`

	// Secrets configures resolution of secret references such as
	// env://NAME and vault://mount/path#key.
	Secrets *SecretsConfig `yaml:"secrets,omitempty" json:"secrets,omitempty"`
}

// ClientConfig is one named authentication section. The provider selects
// which of the nested configurations is consulted; the others are ignored.
type ClientConfig struct {
	// AuthenticationProvider selects the strategy: None, ApiKey, Basic
	// or OAuth2. An empty value behaves as None.
	AuthenticationProvider string `yaml:"authenticationProvider" json:"authenticationProvider"`

	// ApiKey holds the static header settings for the ApiKey provider.
	ApiKey *APIKeyConfig `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`

	// Basic holds the credentials for the Basic provider.
	Basic *BasicAuthConfig `yaml:"basic,omitempty" json:"basic,omitempty"`

	// OAuth2 holds the token endpoint settings for the OAuth2 provider.
	OAuth2 *OAuth2Config `yaml:"oauth2,omitempty" json:"oauth2,omitempty"`
}

// APIKeyConfig attaches a static header to every outgoing request.
type APIKeyConfig struct {
	// Header is the header name the key is sent in.
	Header string `yaml:"header" json:"header"`

	// Value is the key itself. Supports secret references.
	Value string `yaml:"value" json:"value"`
}

// BasicAuthConfig attaches an RFC 7617 Authorization header.
type BasicAuthConfig struct {
	// Username for the Basic challenge.
	Username string `yaml:"username" json:"username"`

	// Password for the Basic challenge. Supports secret references.
	Password string `yaml:"password" json:"password"`
}

// OAuth2Config drives token acquisition for the OAuth2 provider.
type OAuth2Config struct {
	// TokenEndpoint is the absolute URL of the token endpoint.
	TokenEndpoint string `yaml:"tokenEndpoint" json:"tokenEndpoint"`

	// GrantType selects the flow. Only clientCredentials is supported.
	GrantType string `yaml:"grantType" json:"grantType"`

	// ClientCredentials carries the client id and secret for the
	// clientCredentials grant.
	ClientCredentials *ClientCredentialsConfig `yaml:"clientCredentials,omitempty" json:"clientCredentials,omitempty"`

	// Scope is the optional space-separated scope list sent with the
	// token request. Leading and trailing whitespace is trimmed; a
	// blank scope is omitted from the request.
	Scope string `yaml:"scope,omitempty" json:"scope,omitempty"`

	// AuthorizationScheme overrides the token_type reported by the
	// endpoint when building the Authorization header.
	AuthorizationScheme string `yaml:"authorizationScheme,omitempty" json:"authorizationScheme,omitempty"`

	// DisableTokenCache bypasses the token cache for both lookup and
	// store when true.
	DisableTokenCache bool `yaml:"disableTokenCache,omitempty" json:"disableTokenCache,omitempty"`

	// AdditionalParameters are extra headers, body fields and query
	// string parameters for the token request.
	AdditionalParameters *AdditionalParameters `yaml:"additionalParameters,omitempty" json:"additionalParameters,omitempty"`

	// CircuitBreaker optionally wraps token endpoint calls in a
	// circuit breaker. Disabled unless configured.
	CircuitBreaker *CircuitBreakerConfig `yaml:"circuitBreaker,omitempty" json:"circuitBreaker,omitempty"`
}

// ClientCredentialsConfig holds the client credentials grant settings.
type ClientCredentialsConfig struct {
	// ClientID identifies the client against the token endpoint.
	ClientID string `yaml:"clientId" json:"clientId"`

	// ClientSecret authenticates the client. Supports secret references.
	ClientSecret string `yaml:"clientSecret" json:"clientSecret"`

	// UseBasicAuthHeader sends the credentials as an HTTP Basic
	// Authorization header instead of client_id/client_secret body
	// fields.
	UseBasicAuthHeader bool `yaml:"useBasicAuthHeader,omitempty" json:"useBasicAuthHeader,omitempty"`
}

// AdditionalParameters are merged into the token request. Body fields and
// query parameters override same-named values produced by the flow itself.
type AdditionalParameters struct {
	Header      map[string]string `yaml:"header,omitempty" json:"header,omitempty"`
	Body        map[string]string `yaml:"body,omitempty" json:"body,omitempty"`
	QueryString map[string]string `yaml:"queryString,omitempty" json:"queryString,omitempty"`
}

// CircuitBreakerConfig configures the optional breaker around token
// endpoint calls.
type CircuitBreakerConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxFailures is the number of consecutive transport failures that
	// opens the breaker.
	MaxFailures int `yaml:"maxFailures,omitempty" json:"maxFailures,omitempty"`

	// Timeout is how long the breaker stays open before probing again.
	Timeout Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// IsBlank reports whether s is empty or whitespace-only. Required string
// fields treat blank values the same as absent ones.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Validate checks the root configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration is required")
	}

	names := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cc := c.Clients[name]
		if cc == nil {
			return fmt.Errorf("client %s: configuration section is empty", name)
		}
		if err := cc.Validate(); err != nil {
			return fmt.Errorf("client %s: %w", name, err)
		}
	}

	if c.Cache != nil {
		if err := c.Cache.Validate(); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}

	if c.Logging != nil {
		if err := c.Logging.Validate(); err != nil {
			return fmt.Errorf("logging: %w", err)
		}
	}

	if c.Secrets != nil {
		if err := c.Secrets.Validate(); err != nil {
			return fmt.Errorf("secrets: %w", err)
		}
	}

	return nil
}

// Validate checks a single client section.
func (c *ClientConfig) Validate() error {
	provider := c.GetEffectiveProvider()
	if !validProviders[provider] {
		return fmt.Errorf("unsupported authentication provider: %s", c.AuthenticationProvider)
	}

	switch provider {
	case ProviderAPIKey:
		if c.ApiKey == nil {
			return fmt.Errorf("apiKey configuration is required when provider is '%s'", ProviderAPIKey)
		}
		return c.ApiKey.Validate()
	case ProviderBasic:
		if c.Basic == nil {
			return fmt.Errorf("basic configuration is required when provider is '%s'", ProviderBasic)
		}
		return c.Basic.Validate()
	case ProviderOAuth2:
		if c.OAuth2 == nil {
			return fmt.Errorf("oauth2 configuration is required when provider is '%s'", ProviderOAuth2)
		}
		return c.OAuth2.Validate()
	}

	return nil
}

// GetEffectiveProvider returns the configured provider, defaulting to None
// when the field is absent.
func (c *ClientConfig) GetEffectiveProvider() string {
	if IsBlank(c.AuthenticationProvider) {
		return ProviderNone
	}
	return strings.TrimSpace(c.AuthenticationProvider)
}

// Validate checks the ApiKey settings.
func (c *APIKeyConfig) Validate() error {
	if IsBlank(c.Header) {
		return fmt.Errorf("apiKey.header must be specified")
	}
	if IsBlank(c.Value) {
		return fmt.Errorf("apiKey.value must be specified")
	}
	return nil
}

// Validate checks the Basic settings.
func (c *BasicAuthConfig) Validate() error {
	if IsBlank(c.Username) {
		return fmt.Errorf("basic.username must be specified")
	}
	if IsBlank(c.Password) {
		return fmt.Errorf("basic.password must be specified")
	}
	return nil
}

// Validate checks the OAuth2 settings.
func (c *OAuth2Config) Validate() error {
	if IsBlank(c.GrantType) {
		return fmt.Errorf("oauth2.grantType must be specified")
	}
	if c.GrantType != GrantTypeClientCredentials {
		return fmt.Errorf("oauth2.grantType %s is not supported", c.GrantType)
	}
	if c.ClientCredentials == nil {
		return fmt.Errorf("oauth2.clientCredentials is required for grant type %s", GrantTypeClientCredentials)
	}
	if IsBlank(c.ClientCredentials.ClientID) {
		return fmt.Errorf("oauth2.clientCredentials.clientId must be specified")
	}
	if IsBlank(c.ClientCredentials.ClientSecret) {
		return fmt.Errorf("oauth2.clientCredentials.clientSecret must be specified")
	}
	if IsBlank(c.TokenEndpoint) {
		return fmt.Errorf("oauth2.tokenEndpoint must be specified")
	}
	if c.CircuitBreaker != nil && c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.MaxFailures < 0 {
			return fmt.Errorf("oauth2.circuitBreaker.maxFailures must not be negative")
		}
	}
	return nil
}

// GetEffectiveScope returns the trimmed scope, empty when unset.
func (c *OAuth2Config) GetEffectiveScope() string {
	return strings.TrimSpace(c.Scope)
}

// GetEffectiveAuthorizationScheme returns the trimmed scheme override,
// empty when the token endpoint's token_type should be used.
func (c *OAuth2Config) GetEffectiveAuthorizationScheme() string {
	return strings.TrimSpace(c.AuthorizationScheme)
}

// Client returns the named client section.
func (c *Config) Client(name string) (*ClientConfig, bool) {
	if c == nil {
		return nil, false
	}
	cc, ok := c.Clients[name]
	if !ok || cc == nil {
		return nil, false
	}
	return cc, true
}

// Clone returns a deep copy of the client section. Secret resolution
// mutates configuration values, so callers resolve against a copy.
func (c *ClientConfig) Clone() *ClientConfig {
	if c == nil {
		return nil
	}
	out := &ClientConfig{AuthenticationProvider: c.AuthenticationProvider}
	if c.ApiKey != nil {
		ak := *c.ApiKey
		out.ApiKey = &ak
	}
	if c.Basic != nil {
		b := *c.Basic
		out.Basic = &b
	}
	if c.OAuth2 != nil {
		out.OAuth2 = c.OAuth2.Clone()
	}
	return out
}

// Clone returns a deep copy of the OAuth2 settings.
func (c *OAuth2Config) Clone() *OAuth2Config {
	if c == nil {
		return nil
	}
	out := *c
	if c.ClientCredentials != nil {
		cc := *c.ClientCredentials
		out.ClientCredentials = &cc
	}
	if c.AdditionalParameters != nil {
		out.AdditionalParameters = &AdditionalParameters{
			Header:      copyStringMap(c.AdditionalParameters.Header),
			Body:        copyStringMap(c.AdditionalParameters.Body),
			QueryString: copyStringMap(c.AdditionalParameters.QueryString),
		}
	}
	if c.CircuitBreaker != nil {
		cb := *c.CircuitBreaker
		out.CircuitBreaker = &cb
	}
	return &out
}

func copyStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
