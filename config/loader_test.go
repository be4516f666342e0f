package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
clients:
  billing:
    authenticationProvider: OAuth2
    oauth2:
      tokenEndpoint: https://idp.example.com/token
      grantType: clientCredentials
      clientCredentials:
        clientId: billing-service
        clientSecret: s3cret
        useBasicAuthHeader: true
      scope: invoices:read
      authorizationScheme: Bearer
      additionalParameters:
        header:
          X-Correlation-Id: abc
        body:
          audience: https://api.example.com
        queryString:
          tenant: acme
  reporting:
    authenticationProvider: ApiKey
    apiKey:
      header: X-API-Key
      value: report-key
cache:
  enabled: true
  type: memory
  ttl: 10m
  maxEntries: 500
logging:
  level: debug
  format: console
`

func TestParse(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	billing, ok := cfg.Client("billing")
	require.True(t, ok)
	assert.Equal(t, ProviderOAuth2, billing.GetEffectiveProvider())

	oauth2 := billing.OAuth2
	require.NotNil(t, oauth2)
	assert.Equal(t, "https://idp.example.com/token", oauth2.TokenEndpoint)
	assert.Equal(t, GrantTypeClientCredentials, oauth2.GrantType)
	require.NotNil(t, oauth2.ClientCredentials)
	assert.Equal(t, "billing-service", oauth2.ClientCredentials.ClientID)
	assert.Equal(t, "s3cret", oauth2.ClientCredentials.ClientSecret)
	assert.True(t, oauth2.ClientCredentials.UseBasicAuthHeader)
	assert.Equal(t, "invoices:read", oauth2.Scope)

	require.NotNil(t, oauth2.AdditionalParameters)
	assert.Equal(t, "abc", oauth2.AdditionalParameters.Header["X-Correlation-Id"])
	assert.Equal(t, "https://api.example.com", oauth2.AdditionalParameters.Body["audience"])
	assert.Equal(t, "acme", oauth2.AdditionalParameters.QueryString["tenant"])

	reporting, ok := cfg.Client("reporting")
	require.True(t, ok)
	require.NotNil(t, reporting.ApiKey)
	assert.Equal(t, "X-API-Key", reporting.ApiKey.Header)

	require.NotNil(t, cfg.Cache)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 500, cfg.Cache.MaxEntries)

	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestParse_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("clients: [broken"))
	assert.Error(t, err)
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("HTTPCLIAUTH_TEST_SECRET", "from-env")
	t.Setenv("HTTPCLIAUTH_TEST_EMPTY", "")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "set variable",
			input: "secret: ${HTTPCLIAUTH_TEST_SECRET}",
			want:  "secret: from-env",
		},
		{
			name:  "unset variable without default",
			input: "secret: ${HTTPCLIAUTH_TEST_MISSING}",
			want:  "secret: ",
		},
		{
			name:  "unset variable with default",
			input: "secret: ${HTTPCLIAUTH_TEST_MISSING:-fallback}",
			want:  "secret: fallback",
		},
		{
			name:  "set variable ignores default",
			input: "secret: ${HTTPCLIAUTH_TEST_SECRET:-fallback}",
			want:  "secret: from-env",
		},
		{
			name:  "empty set variable wins over default",
			input: "secret: ${HTTPCLIAUTH_TEST_EMPTY:-fallback}",
			want:  "secret: ",
		},
		{
			name:  "escaped dollar",
			input: "secret: pa$$word",
			want:  "secret: pa$word",
		},
		{
			name:  "multiple references",
			input: "${HTTPCLIAUTH_TEST_SECRET}/${HTTPCLIAUTH_TEST_MISSING:-x}",
			want:  "from-env/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substituteEnvVars(tt.input))
		})
	}
}

func TestLoad(t *testing.T) {
	t.Setenv("HTTPCLIAUTH_TEST_KEY", "loaded-key")

	dir := t.TempDir()
	path := filepath.Join(dir, "auth.yaml")

	content := `
clients:
  svc:
    authenticationProvider: ApiKey
    apiKey:
      header: X-API-Key
      value: ${HTTPCLIAUTH_TEST_KEY}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	svc, ok := cfg.Client("svc")
	require.True(t, ok)
	require.NotNil(t, svc.ApiKey)
	assert.Equal(t, "loaded-key", svc.ApiKey.Value)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadAndValidate(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "auth.yaml")

	invalid := `
clients:
  svc:
    authenticationProvider: OAuth2
`
	require.NoError(t, os.WriteFile(path, []byte(invalid), 0o600))

	_, err := LoadAndValidate(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}
