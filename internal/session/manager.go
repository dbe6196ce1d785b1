package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/hsportal/portal/internal/config"
)

// MaxLiveCaches bounds the registry. The least recently used Cache is
// closed when a new scope arrives at capacity.
const MaxLiveCaches = 10000

// Factory builds the Cache for a browser scope. The Manager starts it.
type Factory func(scope string) *Cache

// Manager keeps one live Cache per browser scope. Caches idle for longer
// than the idle TTL are evicted and closed; their persisted entry survives
// in the store and is picked up again on the next request.
type Manager struct {
	items   *ttlcache.Cache[string, *Cache]
	factory Factory
	logger  *slog.Logger
	mu      sync.Mutex
	running atomic.Bool
}

// NewManager builds a registry. Call Start to run idle eviction.
func NewManager(factory Factory, idle time.Duration, logger *slog.Logger) *Manager {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	items := ttlcache.New(
		ttlcache.WithTTL[string, *Cache](idle),
		ttlcache.WithCapacity[string, *Cache](MaxLiveCaches),
	)
	m := &Manager{items: items, factory: factory, logger: logger}
	items.OnEviction(func(_ context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Cache]) {
		item.Value().Close()
		m.logger.Debug("session cache evicted", slog.String("scope", item.Key()), slog.Int("reason", int(reason)))
	})
	return m
}

// Start runs the eviction loop in the background.
func (m *Manager) Start() {
	if m.running.CompareAndSwap(false, true) {
		go m.items.Start()
	}
}

// Stop ends eviction and closes every live Cache.
func (m *Manager) Stop() {
	if m.running.CompareAndSwap(true, false) {
		m.items.Stop()
	}
	m.items.DeleteAll()
}

// Get returns the started Cache for scope, creating it on first use. Every
// hit extends the idle deadline.
func (m *Manager) Get(scope string) *Cache {
	if item := m.items.Get(scope); item != nil {
		return item.Value()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if item := m.items.Get(scope); item != nil {
		return item.Value()
	}
	c := m.factory(scope)
	c.Start()
	m.items.Set(scope, c, ttlcache.DefaultTTL)
	return c
}

// Lookup returns the Cache for scope only if one is live.
func (m *Manager) Lookup(scope string) (*Cache, bool) {
	item := m.items.Get(scope)
	if item == nil {
		return nil, false
	}
	return item.Value(), true
}

// Len reports how many caches are live.
func (m *Manager) Len() int {
	return m.items.Len()
}

// OptionsFromConfig maps environment configuration onto cache options.
func OptionsFromConfig(cfg config.SessionConfig) Options {
	retry := DefaultRetryPolicy()
	if cfg.MaxVerifyAttempts > 0 {
		retry.MaxAttempts = cfg.MaxVerifyAttempts
	}
	if cfg.BackoffWindow > 0 {
		retry.Backoff = []time.Duration{cfg.BackoffWindow}
	}
	return Options{
		Expiry:          cfg.Expiry,
		VerifyTimeout:   cfg.VerifyTimeout,
		RefreshInterval: cfg.RefreshInterval,
		Retry:           retry,
	}
}
