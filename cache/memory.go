package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dozer75/httpcliauth/config"
	"github.com/dozer75/httpcliauth/observability"
)

const (
	memoryBackend   = "memory"
	cleanupInterval = time.Minute
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// memoryCache is an in-process LRU cache with per-entry expiry. A
// background janitor removes expired entries; reads also drop entries
// that expired since the last sweep.
type memoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	maxEntries int
	defaultTTL time.Duration

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
	expired   atomic.Uint64

	logger  observability.Logger
	metrics *Metrics
	tracer  trace.Tracer

	closed atomic.Bool
	stopCh chan struct{}
	doneCh chan struct{}
}

func newMemoryCache(cfg *config.CacheConfig, o *options) *memoryCache {
	c := &memoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: cfg.GetEffectiveMaxEntries(),
		defaultTTL: cfg.GetEffectiveTTL(),
		logger:     o.logger,
		metrics:    o.metrics,
		tracer:     otel.Tracer("httpcliauth/cache"),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}

	go c.janitor()

	c.logger.Debug("memory cache initialized",
		observability.Int("maxEntries", c.maxEntries),
		observability.Duration("defaultTTL", c.defaultTTL),
	)

	return c
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	_, span := c.tracer.Start(ctx, "cache.get",
		trace.WithAttributes(attribute.String("cache.backend", memoryBackend)))
	defer span.End()

	if c.closed.Load() {
		return nil, ErrCacheClosed
	}

	start := time.Now()
	defer func() { c.metrics.ObserveDuration(memoryBackend, "get", time.Since(start)) }()

	c.mu.Lock()
	elem, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		c.miss(span)
		return nil, ErrCacheMiss
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		c.mu.Unlock()
		c.expired.Add(1)
		c.miss(span)
		return nil, ErrCacheMiss
	}

	c.lru.MoveToFront(elem)
	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	c.mu.Unlock()

	c.hits.Add(1)
	c.metrics.RecordHit(memoryBackend)
	span.SetAttributes(attribute.Bool("cache.hit", true))

	return value, nil
}

func (c *memoryCache) miss(span trace.Span) {
	c.misses.Add(1)
	c.metrics.RecordMiss(memoryBackend)
	span.SetAttributes(attribute.Bool("cache.hit", false))
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, span := c.tracer.Start(ctx, "cache.set",
		trace.WithAttributes(attribute.String("cache.backend", memoryBackend)))
	defer span.End()

	if c.closed.Load() {
		return ErrCacheClosed
	}

	start := time.Now()
	defer func() { c.metrics.ObserveDuration(memoryBackend, "set", time.Since(start)) }()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*memoryEntry)
		entry.value = stored
		entry.expiresAt = time.Now().Add(ttl)
		c.lru.MoveToFront(elem)
		return nil
	}

	elem := c.lru.PushFront(&memoryEntry{
		key:       key,
		value:     stored,
		expiresAt: time.Now().Add(ttl),
	})
	c.entries[key] = elem

	for len(c.entries) > c.maxEntries {
		c.evictOldest()
	}

	c.metrics.SetEntries(memoryBackend, len(c.entries))

	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.removeElement(elem)
	}
	c.metrics.SetEntries(memoryBackend, len(c.entries))

	return nil
}

func (c *memoryCache) Clear(context.Context) error {
	if c.closed.Load() {
		return ErrCacheClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.metrics.SetEntries(memoryBackend, 0)

	return nil
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	entries := len(c.entries)
	c.mu.Unlock()

	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Entries:   entries,
		Evictions: c.evictions.Load(),
		Expired:   c.expired.Load(),
	}
}

func (c *memoryCache) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(c.stopCh)
	<-c.doneCh

	c.mu.Lock()
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	c.mu.Unlock()

	return nil
}

// evictOldest removes the least recently used entry. Caller holds the
// lock.
func (c *memoryCache) evictOldest() {
	elem := c.lru.Back()
	if elem == nil {
		return
	}
	c.removeElement(elem)
	c.evictions.Add(1)
	c.metrics.RecordEviction(memoryBackend)
}

// removeElement removes an entry. Caller holds the lock.
func (c *memoryCache) removeElement(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(c.entries, entry.key)
	c.lru.Remove(elem)
}

func (c *memoryCache) janitor() {
	defer close(c.doneCh)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *memoryCache) removeExpired() {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	var next *list.Element
	for elem := c.lru.Back(); elem != nil; elem = next {
		next = elem.Prev()
		if elem.Value.(*memoryEntry).expired(now) {
			c.removeElement(elem)
			c.expired.Add(1)
		}
	}
	c.metrics.SetEntries(memoryBackend, len(c.entries))
}

var _ Cache = (*memoryCache)(nil)
