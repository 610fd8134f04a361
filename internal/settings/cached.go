package settings

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/CedrosPay/secheaders/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// CachedStore memoises GetBool results for a fixed TTL. Concurrent misses
// for the same key share one backend call. Writes through the cache
// invalidate the affected keys; writes made elsewhere become visible once
// the TTL expires.
//
// Every write bumps the key's generation. A lookup that started under an
// older generation returns its value but never stores it.
type CachedStore struct {
	next    Store
	ttl     time.Duration
	metrics *metrics.Metrics
	now     func() time.Time

	sfg     singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
	gens    map[string]uint64
	epoch   uint64
}

type cacheEntry struct {
	value   bool
	expires time.Time
}

// NewCachedStore wraps next. m may be nil.
func NewCachedStore(next Store, ttl time.Duration, m *metrics.Metrics) *CachedStore {
	return &CachedStore{
		next:    next,
		ttl:     ttl,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gens:    make(map[string]uint64),
	}
}

// The default participates in the cache key because an absent setting
// resolves to whatever default the caller passed.
func cacheKey(key string, def bool) string {
	return key + "|" + strconv.FormatBool(def)
}

func (c *CachedStore) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	ck := cacheKey(key, def)

	c.mu.RLock()
	ent, ok := c.entries[ck]
	gen, epoch := c.gens[key], c.epoch
	c.mu.RUnlock()
	if ok && c.now().Before(ent.expires) {
		c.observe(true)
		return ent.value, nil
	}
	c.observe(false)

	// Callers arriving after a write use a new flight.
	flight := ck + "|" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	// The shared call must not fail because the first caller gave up.
	shared := context.WithoutCancel(ctx)

	v, err, _ := c.sfg.Do(flight, func() (interface{}, error) {
		v, err := c.next.GetBool(shared, key, def)
		if err != nil {
			return def, err
		}
		c.mu.Lock()
		if c.gens[key] == gen && c.epoch == epoch {
			c.entries[ck] = cacheEntry{value: v, expires: c.now().Add(c.ttl)}
		}
		c.mu.Unlock()
		return v, nil
	})
	if err != nil {
		return def, err
	}
	return v.(bool), nil
}

func (c *CachedStore) observe(hit bool) {
	if c.metrics != nil {
		c.metrics.ObserveCache(hit)
	}
}

func (c *CachedStore) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.gens[k]++
		delete(c.entries, cacheKey(k, true))
		delete(c.entries, cacheKey(k, false))
	}
}

func (c *CachedStore) SetBool(ctx context.Context, key string, v bool) error {
	defer c.invalidate(key)
	return c.next.SetBool(ctx, key, v)
}

func (c *CachedStore) AddBool(ctx context.Context, key string, v bool) (bool, error) {
	defer c.invalidate(key)
	return c.next.AddBool(ctx, key, v)
}

func (c *CachedStore) Delete(ctx context.Context, keys ...string) error {
	defer c.invalidate(keys...)
	return c.next.Delete(ctx, keys...)
}

func (c *CachedStore) Keys(ctx context.Context) ([]string, error) { return c.next.Keys(ctx) }

// Purge drops every cached entry.
func (c *CachedStore) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.epoch++
	c.mu.Unlock()
}

func (c *CachedStore) Close() error { return c.next.Close() }
