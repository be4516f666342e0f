package config

import (
	"fmt"
	"time"
)

// Cache backend types.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000
	DefaultRedisKeyPrefix  = "httpcliauth:"
)

var validCacheTypes = map[string]bool{
	CacheTypeMemory: true,
	CacheTypeRedis:  true,
}

// CacheConfig configures the token cache backend.
type CacheConfig struct {
	// Enabled turns the cache on. A disabled cache stores nothing and
	// every lookup misses.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Type selects the backend: memory or redis. Defaults to memory.
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// TTL is the fallback expiry for entries stored without an
	// explicit lifetime.
	TTL Duration `yaml:"ttl,omitempty" json:"ttl,omitempty"`

	// MaxEntries bounds the memory backend. Oldest entries are evicted
	// once the bound is reached.
	MaxEntries int `yaml:"maxEntries,omitempty" json:"maxEntries,omitempty"`

	// Redis configures the redis backend.
	Redis *RedisCacheConfig `yaml:"redis,omitempty" json:"redis,omitempty"`
}

// RedisCacheConfig configures the redis cache backend in standalone or
// sentinel mode.
type RedisCacheConfig struct {
	// URL is a redis connection URL (redis:// or rediss://) for
	// standalone mode. Ignored when Sentinel is configured.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Password overrides any password embedded in URL. Supports secret
	// references.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// Sentinel enables sentinel mode.
	Sentinel *RedisSentinelConfig `yaml:"sentinel,omitempty" json:"sentinel,omitempty"`

	// PoolSize is the connection pool size per node.
	PoolSize int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`

	// MinIdleConns is the minimum number of idle pool connections.
	MinIdleConns int `yaml:"minIdleConns,omitempty" json:"minIdleConns,omitempty"`

	DialTimeout  Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
	ReadTimeout  Duration `yaml:"readTimeout,omitempty" json:"readTimeout,omitempty"`
	WriteTimeout Duration `yaml:"writeTimeout,omitempty" json:"writeTimeout,omitempty"`

	// KeyPrefix namespaces all keys written by this instance.
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`

	// TTLJitter randomizes entry expiry by up to this fraction of the
	// TTL to avoid synchronized expiry storms. 0 disables jitter.
	TTLJitter float64 `yaml:"ttlJitter,omitempty" json:"ttlJitter,omitempty"`

	// HashKeys stores SHA-256 hashed keys instead of raw keys so that
	// client ids do not appear in the keyspace.
	HashKeys bool `yaml:"hashKeys,omitempty" json:"hashKeys,omitempty"`
}

// RedisSentinelConfig configures redis sentinel failover.
type RedisSentinelConfig struct {
	// MasterName is the sentinel master set name.
	MasterName string `yaml:"masterName" json:"masterName"`

	// Addrs lists sentinel addresses as host:port.
	Addrs []string `yaml:"addrs" json:"addrs"`

	// Password authenticates against the redis master. Supports secret
	// references.
	Password string `yaml:"password,omitempty" json:"password,omitempty"`

	// SentinelPassword authenticates against the sentinels themselves.
	// Supports secret references.
	SentinelPassword string `yaml:"sentinelPassword,omitempty" json:"sentinelPassword,omitempty"`
}

// Validate checks the cache configuration.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	cacheType := c.GetEffectiveType()
	if !validCacheTypes[cacheType] {
		return fmt.Errorf("unsupported cache type: %s", c.Type)
	}

	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("maxEntries must not be negative")
	}

	if cacheType == CacheTypeRedis {
		if c.Redis == nil {
			return fmt.Errorf("redis configuration is required when type is '%s'", CacheTypeRedis)
		}
		return c.Redis.Validate()
	}

	return nil
}

// Validate checks the redis configuration.
func (c *RedisCacheConfig) Validate() error {
	if c.Sentinel != nil {
		if IsBlank(c.Sentinel.MasterName) {
			return fmt.Errorf("redis.sentinel.masterName must be specified")
		}
		if len(c.Sentinel.Addrs) == 0 {
			return fmt.Errorf("redis.sentinel.addrs must not be empty")
		}
		return nil
	}
	if IsBlank(c.URL) {
		return fmt.Errorf("redis.url must be specified")
	}
	if c.TTLJitter < 0 || c.TTLJitter > 1 {
		return fmt.Errorf("redis.ttlJitter must be between 0 and 1")
	}
	return nil
}

// GetEffectiveType returns the backend type, defaulting to memory.
func (c *CacheConfig) GetEffectiveType() string {
	if IsBlank(c.Type) {
		return CacheTypeMemory
	}
	return c.Type
}

// GetEffectiveTTL returns the fallback TTL, defaulting to 5 minutes.
func (c *CacheConfig) GetEffectiveTTL() time.Duration {
	if c.TTL <= 0 {
		return DefaultCacheTTL
	}
	return c.TTL.Duration()
}

// GetEffectiveMaxEntries returns the memory backend bound, defaulting to
// 10000 entries.
func (c *CacheConfig) GetEffectiveMaxEntries() int {
	if c.MaxEntries <= 0 {
		return DefaultCacheMaxEntries
	}
	return c.MaxEntries
}

// GetEffectiveKeyPrefix returns the redis key prefix, defaulting to
// "httpcliauth:".
func (c *RedisCacheConfig) GetEffectiveKeyPrefix() string {
	if IsBlank(c.KeyPrefix) {
		return DefaultRedisKeyPrefix
	}
	return c.KeyPrefix
}
