package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("token-endpoint", nil)
	assert.Equal(t, gobreaker.StateClosed, cb.State())

	result, err := cb.Execute(func() (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	cb := NewCircuitBreaker("svc", &config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 2,
	}, WithLogger(observability.FromZap(zap.New(core))))

	failing := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, failing
		})
		require.ErrorIs(t, err, failing)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	var invoked atomic.Int32
	_, err := cb.Execute(func() (interface{}, error) {
		invoked.Add(1)
		return nil, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(0), invoked.Load())

	assert.GreaterOrEqual(t, logs.FilterMessage("circuit breaker state change").Len(), 1)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("svc", &config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 1,
		Timeout:     config.Duration(50 * time.Millisecond),
	})

	_, err := cb.Execute(func() (interface{}, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(70 * time.Millisecond)

	result, err := cb.Execute(func() (interface{}, error) {
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_TokenProviderIntegration(t *testing.T) {
	t.Parallel()

	// A server that is immediately closed leaves a port nothing listens
	// on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	cb := NewCircuitBreaker("svc", &config.CircuitBreakerConfig{
		Enabled:     true,
		MaxFailures: 2,
	})

	p, logs := newObservedProvider(t, WithCircuitBreaker(cb))
	cfg := clientCredentialsConfig(endpoint)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.GetClientCredentialsToken(ctx, cfg)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNoValidToken)
	}
	require.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := p.GetClientCredentialsToken(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)

	// Transport failures propagate to the caller without an error log.
	assert.Equal(t, 0, logs.FilterLevelExact(zap.ErrorLevel).Len())
}

func TestSafeIntToUint32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(0), safeIntToUint32(-5))
	assert.Equal(t, uint32(0), safeIntToUint32(0))
	assert.Equal(t, uint32(42), safeIntToUint32(42))
}
