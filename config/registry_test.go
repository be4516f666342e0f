package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CurrentAndSwap(t *testing.T) {
	t.Parallel()

	first := &Config{Clients: map[string]*ClientConfig{"a": {}}}
	second := &Config{Clients: map[string]*ClientConfig{"b": {}}}

	r := NewRegistry(first)
	assert.Same(t, first, r.Current())

	old := r.Swap(second)
	assert.Same(t, first, old)
	assert.Same(t, second, r.Current())
}

func TestRegistry_NilConfig(t *testing.T) {
	t.Parallel()

	r := NewRegistry(nil)
	require.NotNil(t, r.Current())

	r.Swap(nil)
	require.NotNil(t, r.Current())
}

func TestRegistry_Client(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&Config{
		Clients: map[string]*ClientConfig{
			"svc": {AuthenticationProvider: ProviderBasic, Basic: &BasicAuthConfig{}},
		},
	})

	cc, ok := r.Client("svc")
	require.True(t, ok)
	assert.Equal(t, ProviderBasic, cc.AuthenticationProvider)

	_, ok = r.Client("missing")
	assert.False(t, ok)
}

func TestRegistry_Subscribe(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&Config{})

	var got []*Config
	r.Subscribe(func(cfg *Config) {
		got = append(got, cfg)
	})
	r.Subscribe(nil)

	next := &Config{}
	r.Swap(next)

	require.Len(t, got, 1)
	assert.Same(t, next, got[0])
}

func TestRegistry_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&Config{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = r.Current()
				r.Swap(&Config{})
			}
		}()
	}
	wg.Wait()

	assert.NotNil(t, r.Current())
}
