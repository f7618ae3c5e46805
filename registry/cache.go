package registry

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// NormalizationCache memoizes normalizer output per (normalizer name, raw
// value) with a bounded TTL (§4.2: "Normalization is cached per
// (normalizer, raw_value) with bounded TTL"), since the same raw slot
// value commonly recurs across turns/sessions (e.g. "today", a city
// name) and normalizers may call out to slow services (geocoding, NLU).
type NormalizationCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// NewNormalizationCache returns a cache evicting entries older than ttl.
func NewNormalizationCache(ttl time.Duration) *NormalizationCache {
	return &NormalizationCache{ttl: ttl, entries: make(map[string]cacheEntry)}
}

func cacheKey(normalizer string, raw any) string {
	return fmt.Sprintf("%s\x00%v", normalizer, raw)
}

// Get returns the cached value for (normalizer, raw), if present and
// unexpired.
func (c *NormalizationCache) Get(normalizer string, raw any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(normalizer, raw)]
	if !ok || time.Now().After(e.expires) {
		return nil, false
	}
	return e.value, true
}

// Set stores value for (normalizer, raw), expiring after the cache's TTL.
func (c *NormalizationCache) Set(normalizer string, raw, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(normalizer, raw)] = cacheEntry{value: value, expires: time.Now().Add(c.ttl)}
}

// Apply runs fn through the cache: a hit skips invocation entirely, a
// miss invokes fn and caches the result (errors are never cached).
func (c *NormalizationCache) Apply(ctx context.Context, normalizer string, raw any, fn NormalizerFunc) (any, error) {
	if v, ok := c.Get(normalizer, raw); ok {
		return v, nil
	}
	v, err := fn(ctx, raw)
	if err != nil {
		return nil, err
	}
	c.Set(normalizer, raw, v)
	return v, nil
}
