package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dozer75/httpcliauth/cache"
)

// cacheKey builds the composite token cache key. Scope is not part of
// the key: two configurations that differ only in scope share one entry.
func cacheKey(grantType, tokenEndpoint, clientID string) string {
	return grantType + "#" + tokenEndpoint + "#" + clientID
}

// cacheTTL returns the cache lifetime for a token reporting expiresIn
// seconds, and that lifetime in seconds as it appears in log messages.
// The lifetime is 95% of the reported one. The integer arithmetic keeps
// the logged value exact: 3600 becomes 3420, 101 becomes 95.95.
func cacheTTL(expiresIn int64) (time.Duration, float64) {
	seconds := float64(expiresIn*95) / 100
	return time.Duration(seconds * float64(time.Second)), seconds
}

// formatSeconds renders a second count the way it appears in log
// messages: no trailing zeros, no exponent.
func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

// TokenCache stores access tokens as JSON in a cache backend.
type TokenCache struct {
	backend cache.Cache
}

// NewTokenCache wraps a cache backend. A nil backend yields a cache that
// stores nothing.
func NewTokenCache(backend cache.Cache) *TokenCache {
	if backend == nil {
		backend, _ = cache.New(nil)
	}
	return &TokenCache{backend: backend}
}

// Get returns the cached token under key, or cache.ErrCacheMiss.
func (c *TokenCache) Get(ctx context.Context, key string) (*AccessTokenResponse, error) {
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	var token AccessTokenResponse
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode cached token: %w", err)
	}
	return &token, nil
}

// Set stores a token under key for ttl.
func (c *TokenCache) Set(ctx context.Context, key string, token *AccessTokenResponse, ttl time.Duration) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	return c.backend.Set(ctx, key, data, ttl)
}

// Delete removes the token under key.
func (c *TokenCache) Delete(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// Close closes the underlying backend.
func (c *TokenCache) Close() error {
	return c.backend.Close()
}
