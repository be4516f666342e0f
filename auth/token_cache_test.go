package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer75/httpcliauth/cache"
	"github.com/dozer75/httpcliauth/config"
)

func TestCacheKey(t *testing.T) {
	t.Parallel()

	key := cacheKey("clientCredentials", "https://idp.example.com/token", "my-client")
	assert.Equal(t, "clientCredentials#https://idp.example.com/token#my-client", key)
}

func TestCacheTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		expiresIn int64
		wantText  string
	}{
		{name: "whole hour", expiresIn: 3600, wantText: "3420"},
		{name: "fractional seconds", expiresIn: 101, wantText: "95.95"},
		{name: "one second", expiresIn: 1, wantText: "0.95"},
		{name: "one day", expiresIn: 86400, wantText: "82080"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ttl, seconds := cacheTTL(tt.expiresIn)
			assert.Equal(t, tt.wantText, formatSeconds(seconds))
			assert.InDelta(t, seconds, ttl.Seconds(), 1e-6)
		})
	}
}

func TestCacheTTL_WholeHourExact(t *testing.T) {
	t.Parallel()

	ttl, _ := cacheTTL(3600)
	assert.Equal(t, 3420*time.Second, ttl)
}

func TestTokenCache_RoundTrip(t *testing.T) {
	t.Parallel()

	backend, err := cache.New(&config.CacheConfig{Enabled: true})
	require.NoError(t, err)

	tc := NewTokenCache(backend)
	defer func() {
		_ = tc.Close()
	}()

	ctx := context.Background()
	key := cacheKey("clientCredentials", "https://idp.example.com/token", "my-client")

	_, err = tc.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrCacheMiss)

	expiresIn := int64(3600)
	stored := &AccessTokenResponse{
		AccessToken: "abc123",
		TokenType:   "Bearer",
		ExpiresIn:   &expiresIn,
	}
	require.NoError(t, tc.Set(ctx, key, stored, time.Minute))

	got, err := tc.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got.AccessToken)
	assert.Equal(t, "Bearer", got.TokenType)
	require.NotNil(t, got.ExpiresIn)
	assert.Equal(t, int64(3600), *got.ExpiresIn)

	require.NoError(t, tc.Delete(ctx, key))
	_, err = tc.Get(ctx, key)
	require.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestNewTokenCache_NilBackend(t *testing.T) {
	t.Parallel()

	tc := NewTokenCache(nil)
	defer func() {
		_ = tc.Close()
	}()

	ctx := context.Background()
	require.NoError(t, tc.Set(ctx, "key", &AccessTokenResponse{AccessToken: "x"}, time.Minute))

	_, err := tc.Get(ctx, "key")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}
