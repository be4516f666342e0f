// Package cache provides the token cache backends: an in-process LRU
// cache and a redis cache for sharing tokens between instances. Values
// are opaque byte slices; entry lifetimes are driven by the caller.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
	"github.com/dozer75/httpcliauth/secrets"
)

var (
	// ErrCacheMiss is returned when a key is not present.
	ErrCacheMiss = errors.New("cache miss")

	// ErrCacheClosed is returned for operations on a closed cache.
	ErrCacheClosed = errors.New("cache is closed")
)

// Cache is the storage backend for serialized tokens. Implementations
// are safe for concurrent use.
type Cache interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of zero or less uses the
	// configured default TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes all entries written by this instance.
	Clear(ctx context.Context) error

	// Stats returns usage counters.
	Stats() Stats

	// Close releases backend resources.
	Close() error
}

// Stats holds cache usage counters.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Entries   int    `json:"entries"`
	Evictions uint64 `json:"evictions"`
	Expired   uint64 `json:"expired"`
	Errors    uint64 `json:"errors"`
}

// Option configures cache construction.
type Option func(*options)

type options struct {
	logger  observability.Logger
	metrics *Metrics
	secrets secrets.Source
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithSecretSource sets the source used to resolve secret references in
// redis passwords.
func WithSecretSource(src secrets.Source) Option {
	return func(o *options) {
		o.secrets = src
	}
}

// New creates a cache backend from configuration. A nil or disabled
// configuration yields a cache that stores nothing and always misses.
func New(cfg *config.CacheConfig, opts ...Option) (Cache, error) {
	o := &options{
		logger:  observability.NopLogger(),
		metrics: GetMetrics(),
		secrets: secrets.NewResolver(nil),
	}
	for _, opt := range opts {
		opt(o)
	}

	if cfg == nil || !cfg.Enabled {
		return newDisabledCache(), nil
	}

	switch cfg.GetEffectiveType() {
	case config.CacheTypeMemory:
		return newMemoryCache(cfg, o), nil
	case config.CacheTypeRedis:
		return newRedisCache(cfg, o)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// disabledCache satisfies Cache without storing anything.
type disabledCache struct{}

func newDisabledCache() *disabledCache {
	return &disabledCache{}
}

func (*disabledCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (*disabledCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (*disabledCache) Delete(context.Context, string) error {
	return nil
}

func (*disabledCache) Clear(context.Context) error {
	return nil
}

func (*disabledCache) Stats() Stats {
	return Stats{}
}

func (*disabledCache) Close() error {
	return nil
}

var _ Cache = (*disabledCache)(nil)
