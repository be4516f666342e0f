package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dozer75/httpcliauth/config"
)

func newTokenServer(t *testing.T, calls *atomic.Int32, body string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		writeJSON(t, w, http.StatusOK, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewOAuth2Strategy_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *config.OAuth2Config
		wantMsg string
	}{
		{
			name:    "nil configuration",
			cfg:     nil,
			wantMsg: "OAuth2 configuration is required",
		},
		{
			name: "blank grant type",
			cfg: func() *config.OAuth2Config {
				c := clientCredentialsConfig("https://idp.example.com/token")
				c.GrantType = "  "
				return c
			}(),
			wantMsg: "GrantType must be specified",
		},
		{
			name: "unsupported grant type",
			cfg: func() *config.OAuth2Config {
				c := clientCredentialsConfig("https://idp.example.com/token")
				c.GrantType = "password"
				return c
			}(),
			wantMsg: "GrantType password is not supported",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, err := NewOAuth2Strategy("svc", tt.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestOAuth2Strategy_Apply(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, nil, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	s, err := NewOAuth2Strategy("svc", clientCredentialsConfig(srv.URL))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	assert.Equal(t, "svc", s.Name())
	assert.Equal(t, config.ProviderOAuth2, s.Type())

	req := newTestRequest(t)
	require.NoError(t, s.Apply(context.Background(), req))
	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
}

func TestOAuth2Strategy_Apply_SchemeOverride(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, nil, `{"access_token":"tok-1","token_type":"Bearer","expires_in":3600}`)

	cfg := clientCredentialsConfig(srv.URL)
	cfg.AuthorizationScheme = "Custom"

	s, err := NewOAuth2Strategy("svc", cfg)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	req := newTestRequest(t)
	require.NoError(t, s.Apply(context.Background(), req))
	assert.Equal(t, "Custom tok-1", req.Header.Get("Authorization"))
}

func TestOAuth2Strategy_Apply_ReplacesExistingAuthorization(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, nil, `{"access_token":"tok-1","expires_in":3600}`)

	s, err := NewOAuth2Strategy("svc", clientCredentialsConfig(srv.URL))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	req := newTestRequest(t)
	req.Header.Set("Authorization", "Basic stale")
	require.NoError(t, s.Apply(context.Background(), req))

	require.Len(t, req.Header.Values("Authorization"), 1)
	assert.Equal(t, "Bearer tok-1", req.Header.Get("Authorization"))
}

func TestOAuth2Strategy_Apply_NoValidToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s, err := NewOAuth2Strategy("svc", clientCredentialsConfig(srv.URL))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	req := newTestRequest(t)
	err = s.Apply(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidToken)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	assert.Equal(t, "svc", provErr.Client)
	assert.Equal(t, "apply", provErr.Operation)

	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestOAuth2Strategy_Apply_ConfigError(t *testing.T) {
	t.Parallel()

	cfg := clientCredentialsConfig("https://idp.example.com/token")
	cfg.ClientCredentials.ClientSecret = "   "

	s, err := NewOAuth2Strategy("svc", cfg)
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	err = s.Apply(context.Background(), newTestRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var provErr *ProviderError
	assert.False(t, errors.As(err, &provErr))
}

func TestOAuth2Strategy_Apply_TransportErrorPassesThrough(t *testing.T) {
	t.Parallel()

	srv := newTokenServer(t, nil, `{"access_token":"tok-1","expires_in":3600}`)

	s, err := NewOAuth2Strategy("svc", clientCredentialsConfig(srv.URL))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Apply(ctx, newTestRequest(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var provErr *ProviderError
	assert.False(t, errors.As(err, &provErr))
}

func TestOAuth2Strategy_Refresh(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTokenServer(t, &calls, `{"access_token":"tok-1","expires_in":3600}`)

	s, err := NewOAuth2Strategy("svc", clientCredentialsConfig(srv.URL))
	require.NoError(t, err)
	defer func() {
		_ = s.Close()
	}()

	ctx := context.Background()
	require.NoError(t, s.Apply(ctx, newTestRequest(t)))
	assert.Equal(t, int32(1), calls.Load())

	require.NoError(t, s.Refresh(ctx))
	assert.Equal(t, int32(2), calls.Load())

	// The refreshed token is cached again.
	require.NoError(t, s.Apply(ctx, newTestRequest(t)))
	assert.Equal(t, int32(2), calls.Load())
}

func TestOAuth2Strategy_SharedProvider(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := newTokenServer(t, &calls, `{"access_token":"tok-1","expires_in":3600}`)

	provider := NewTokenProvider()
	defer func() {
		_ = provider.Close()
	}()

	first, err := NewOAuth2Strategy("first", clientCredentialsConfig(srv.URL), WithTokenProvider(provider))
	require.NoError(t, err)
	second, err := NewOAuth2Strategy("second", clientCredentialsConfig(srv.URL), WithTokenProvider(provider))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, first.Apply(ctx, newTestRequest(t)))

	// Same grant type, endpoint and client id share one cache entry.
	require.NoError(t, second.Apply(ctx, newTestRequest(t)))
	assert.Equal(t, int32(1), calls.Load())

	// Closing a strategy leaves the injected provider usable.
	require.NoError(t, first.Close())
	require.NoError(t, second.Apply(ctx, newTestRequest(t)))
	assert.Equal(t, int32(1), calls.Load())
}
