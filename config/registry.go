package config

import (
	"context"
	"sync"
	"sync/atomic"
)

// Registry holds the active configuration and swaps it atomically on
// reload. Readers never block writers; a reader sees either the old or
// the new configuration, never a mix.
type Registry struct {
	current atomic.Pointer[Config]

	mu          sync.Mutex
	subscribers []ReloadCallback
}

// NewRegistry creates a registry holding cfg.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{}
	if cfg == nil {
		cfg = &Config{}
	}
	r.current.Store(cfg)
	return r
}

// Current returns the active configuration.
func (r *Registry) Current() *Config {
	return r.current.Load()
}

// Client returns the named client section from the active configuration.
func (r *Registry) Client(name string) (*ClientConfig, bool) {
	return r.Current().Client(name)
}

// Swap replaces the active configuration and notifies subscribers. It
// returns the previous configuration.
func (r *Registry) Swap(cfg *Config) *Config {
	if cfg == nil {
		cfg = &Config{}
	}
	old := r.current.Swap(cfg)

	r.mu.Lock()
	subs := make([]ReloadCallback, len(r.subscribers))
	copy(subs, r.subscribers)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(cfg)
	}

	return old
}

// Subscribe registers a callback invoked after every Swap. Callbacks run
// synchronously on the swapping goroutine.
func (r *Registry) Subscribe(fn ReloadCallback) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.subscribers = append(r.subscribers, fn)
	r.mu.Unlock()
}

// Watch starts a file watcher that swaps the registry on every successful
// reload. The caller owns the returned watcher and should stop it during
// shutdown.
func (r *Registry) Watch(ctx context.Context, path string, opts ...WatcherOption) (*Watcher, error) {
	w, err := NewWatcher(path, func(cfg *Config) {
		r.Swap(cfg)
	}, opts...)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	r.Swap(w.Current())
	return w, nil
}
