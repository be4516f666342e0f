package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dozer75/httpcliauth/auth"
	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

func testServerConfig() serverConfig {
	return serverConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		SigningKey:   []byte("0123456789abcdef0123456789abcdef"),
		TokenType:    "Bearer",
		ExpiresIn:    3600,
	}
}

func newTestServer(t *testing.T, cfg serverConfig) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(newRouter(cfg, observability.NopLogger()))
	t.Cleanup(srv.Close)
	return srv
}

func postToken(t *testing.T, srv *httptest.Server, form url.Values) (*http.Response, []byte) {
	t.Helper()

	resp, err := http.Post(srv.URL+"/token", "application/x-www-form-urlencoded",
		strings.NewReader(form.Encode()))
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	return resp, body
}

func clientCredentialsForm() url.Values {
	return url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"test-client"},
		"client_secret": {"test-secret"},
	}
}

func TestToken_Success(t *testing.T) {
	cfg := testServerConfig()
	srv := newTestServer(t, cfg)

	form := clientCredentialsForm()
	form.Set("scope", "orders:read")
	resp, body := postToken(t, srv, form)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var tr tokenResponse
	require.NoError(t, json.Unmarshal(body, &tr))
	assert.Equal(t, "Bearer", tr.TokenType)
	assert.Equal(t, "orders:read", tr.Scope)
	require.NotNil(t, tr.ExpiresIn)
	assert.Equal(t, int64(3600), *tr.ExpiresIn)

	parsed, err := jwt.Parse(tr.AccessToken, func(token *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)

	claims, ok := parsed.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, issuerName, claims["iss"])
	assert.Equal(t, "test-client", claims["sub"])
	assert.Equal(t, "orders:read", claims["scope"])
	assert.NotEmpty(t, claims["jti"])
}

func TestToken_BasicAuth(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("test-client", "test-secret")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToken_OmitExpiresIn(t *testing.T) {
	cfg := testServerConfig()
	cfg.OmitExpiresIn = true
	srv := newTestServer(t, cfg)

	resp, body := postToken(t, srv, clientCredentialsForm())

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, string(body), "expires_in")
}

func TestToken_Errors(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantError  string
	}{
		{
			name: "missing grant type",
			form: url.Values{
				"client_id":     {"test-client"},
				"client_secret": {"test-secret"},
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_request",
		},
		{
			name: "unsupported grant type",
			form: func() url.Values {
				f := clientCredentialsForm()
				f.Set("grant_type", "password")
				return f
			}(),
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "missing credentials",
			form:       url.Values{"grant_type": {"client_credentials"}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client",
		},
		{
			name: "wrong secret",
			form: func() url.Values {
				f := clientCredentialsForm()
				f.Set("client_secret", "wrong")
				return f
			}(),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client",
		},
		{
			name: "unknown client",
			form: func() url.Values {
				f := clientCredentialsForm()
				f.Set("client_id", "other-client")
				return f
			}(),
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_client",
		},
	}

	srv := newTestServer(t, testServerConfig())

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, body := postToken(t, srv, tt.form)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var er errorResponse
			require.NoError(t, json.Unmarshal(body, &er))
			assert.Equal(t, tt.wantError, er.Error)
		})
	}
}

func TestToken_BasicAuthFailureChallenges(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/token", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("test-client", "wrong")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("WWW-Authenticate"), "Basic")
}

func TestToken_BcryptSecretHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hashed-secret"), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := testServerConfig()
	cfg.SecretHash = string(hash)
	srv := newTestServer(t, cfg)

	form := clientCredentialsForm()
	form.Set("client_secret", "hashed-secret")
	resp, _ := postToken(t, srv, form)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	form.Set("client_secret", "test-secret")
	resp, _ = postToken(t, srv, form)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToken_RateLimit(t *testing.T) {
	cfg := testServerConfig()
	cfg.RateLimit = 1
	srv := newTestServer(t, cfg)

	resp, _ := postToken(t, srv, clientCredentialsForm())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postToken(t, srv, clientCredentialsForm())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))

	var er errorResponse
	require.NoError(t, json.Unmarshal(body, &er))
	assert.Equal(t, "temporarily_unavailable", er.Error)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestToken_WorksWithTokenProvider(t *testing.T) {
	srv := newTestServer(t, testServerConfig())

	provider := auth.NewTokenProvider()
	defer func() {
		_ = provider.Close()
	}()

	cfg := &config.OAuth2Config{
		TokenEndpoint: srv.URL + "/token",
		GrantType:     config.GrantTypeClientCredentials,
		ClientCredentials: &config.ClientCredentialsConfig{
			ClientID:     "test-client",
			ClientSecret: "test-secret",
		},
	}

	token, err := provider.GetClientCredentialsToken(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	require.NotNil(t, token.ExpiresIn)
	assert.Equal(t, int64(3600), *token.ExpiresIn)
}

func TestSigningKeyFromFlag(t *testing.T) {
	key, err := signingKeyFromFlag("")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	key, err = signingKeyFromFlag("00ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xff}, key)

	_, err = signingKeyFromFlag("not-hex")
	require.Error(t, err)
}
