package cache

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

const (
	redisBackend     = "redis"
	redisPingTimeout = 5 * time.Second
	redisScanBatch   = 100
)

// redisCache stores entries in redis so that multiple instances share
// one token cache. Keys are namespaced with a prefix and optionally
// SHA-256 hashed.
type redisCache struct {
	client     redis.UniversalClient
	keyPrefix  string
	defaultTTL time.Duration
	ttlJitter  float64
	hashKeys   bool

	hits     atomic.Uint64
	misses   atomic.Uint64
	errs     atomic.Uint64
	closedAt atomic.Bool

	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

func newRedisCache(cfg *config.CacheConfig, o *options) (*redisCache, error) {
	rc := cfg.Redis

	client, err := buildRedisClient(rc, o)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	c := &redisCache{
		client:     client,
		keyPrefix:  rc.GetEffectiveKeyPrefix(),
		defaultTTL: cfg.GetEffectiveTTL(),
		ttlJitter:  rc.TTLJitter,
		hashKeys:   rc.HashKeys,
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     otel.Tracer("httpcliauth/cache"),
	}

	c.logger.Debug("redis cache initialized",
		observability.String("keyPrefix", c.keyPrefix),
		observability.Bool("hashKeys", c.hashKeys),
	)

	return c, nil
}

func buildRedisClient(rc *config.RedisCacheConfig, o *options) (redis.UniversalClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()

	if rc.Sentinel != nil {
		password, err := o.secrets.Resolve(ctx, rc.Sentinel.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve redis password: %w", err)
		}
		sentinelPassword, err := o.secrets.Resolve(ctx, rc.Sentinel.SentinelPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve sentinel password: %w", err)
		}

		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       rc.Sentinel.MasterName,
			SentinelAddrs:    rc.Sentinel.Addrs,
			Password:         password,
			SentinelPassword: sentinelPassword,
			PoolSize:         rc.PoolSize,
			MinIdleConns:     rc.MinIdleConns,
			DialTimeout:      rc.DialTimeout.Duration(),
			ReadTimeout:      rc.ReadTimeout.Duration(),
			WriteTimeout:     rc.WriteTimeout.Duration(),
		}), nil
	}

	opts, err := redis.ParseURL(rc.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	if !config.IsBlank(rc.Password) {
		password, err := o.secrets.Resolve(ctx, rc.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve redis password: %w", err)
		}
		opts.Password = password
	}

	if rc.PoolSize > 0 {
		opts.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		opts.MinIdleConns = rc.MinIdleConns
	}
	if rc.DialTimeout > 0 {
		opts.DialTimeout = rc.DialTimeout.Duration()
	}
	if rc.ReadTimeout > 0 {
		opts.ReadTimeout = rc.ReadTimeout.Duration()
	}
	if rc.WriteTimeout > 0 {
		opts.WriteTimeout = rc.WriteTimeout.Duration()
	}

	return redis.NewClient(opts), nil
}

// storageKey applies the prefix and optional hashing.
func (c *redisCache) storageKey(key string) string {
	if c.hashKeys {
		return c.keyPrefix + HashKey(key)
	}
	return c.keyPrefix + key
}

// entryTTL shortens the lifetime by up to the configured jitter fraction
// so entries written together do not expire together. The lifetime is
// only ever shortened; a cached token never outlives its source.
func (c *redisCache) entryTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if c.ttlJitter > 0 {
		ttl -= time.Duration(rand.Float64() * c.ttlJitter * float64(ttl))
	}
	return ttl
}

func isRetryableRedisError(err error) bool {
	if errors.Is(err, redis.Nil) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, "cache.get",
		trace.WithAttributes(attribute.String("cache.backend", redisBackend)))
	defer span.End()

	if c.closedAt.Load() {
		return nil, ErrCacheClosed
	}

	start := time.Now()
	defer func() { c.metrics.ObserveDuration(redisBackend, "get", time.Since(start)) }()

	var value []byte
	err := doWithRetry(ctx, isRetryableRedisError, func() error {
		var err error
		value, err = c.client.Get(ctx, c.storageKey(key)).Bytes()
		return err
	})

	if err != nil {
		if errors.Is(err, redis.Nil) {
			c.misses.Add(1)
			c.metrics.RecordMiss(redisBackend)
			span.SetAttributes(attribute.Bool("cache.hit", false))
			return nil, ErrCacheMiss
		}
		c.errs.Add(1)
		c.metrics.RecordError(redisBackend, "get")
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	c.hits.Add(1)
	c.metrics.RecordHit(redisBackend)
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return value, nil
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, span := c.tracer.Start(ctx, "cache.set",
		trace.WithAttributes(attribute.String("cache.backend", redisBackend)))
	defer span.End()

	if c.closedAt.Load() {
		return ErrCacheClosed
	}

	start := time.Now()
	defer func() { c.metrics.ObserveDuration(redisBackend, "set", time.Since(start)) }()

	err := doWithRetry(ctx, isRetryableRedisError, func() error {
		return c.client.Set(ctx, c.storageKey(key), value, c.entryTTL(ttl)).Err()
	})
	if err != nil {
		c.errs.Add(1)
		c.metrics.RecordError(redisBackend, "set")
		return fmt.Errorf("redis set failed: %w", err)
	}

	return nil
}

func (c *redisCache) Delete(ctx context.Context, key string) error {
	if c.closedAt.Load() {
		return ErrCacheClosed
	}

	err := doWithRetry(ctx, isRetryableRedisError, func() error {
		return c.client.Del(ctx, c.storageKey(key)).Err()
	})
	if err != nil {
		c.errs.Add(1)
		c.metrics.RecordError(redisBackend, "delete")
		return fmt.Errorf("redis delete failed: %w", err)
	}

	return nil
}

// Clear removes all keys under this instance's prefix using SCAN so that
// a shared redis is never flushed wholesale.
func (c *redisCache) Clear(ctx context.Context) error {
	if c.closedAt.Load() {
		return ErrCacheClosed
	}

	iter := c.client.Scan(ctx, 0, c.keyPrefix+"*", redisScanBatch).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= redisScanBatch {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("redis clear failed: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis clear failed: %w", err)
	}
	if len(batch) > 0 {
		if err := c.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("redis clear failed: %w", err)
		}
	}

	return nil
}

// Stats reports counters for this instance. Entry counts, evictions and
// expiry happen server-side and are not tracked here.
func (c *redisCache) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Errors: c.errs.Load(),
	}
}

func (c *redisCache) Close() error {
	if !c.closedAt.CompareAndSwap(false, true) {
		return nil
	}
	return c.client.Close()
}

var _ Cache = (*redisCache)(nil)
