// Package local holds in-process stand-ins for the Redis-backed caches, used
// by single-instance deployments.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

const defaultMaxEntries = 10_000

// JSONCache keeps JSON-encoded values in memory until their ttl passes.
// Values are stored encoded so callers never share decoded state.
type JSONCache struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	clock      func() time.Time
}

type entry struct {
	raw     []byte
	expires time.Time
}

// NewJSONCache returns a cache holding at most maxEntries values; zero uses
// the default.
func NewJSONCache(maxEntries int) *JSONCache {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	return &JSONCache{entries: make(map[string]entry), maxEntries: maxEntries, clock: time.Now}
}

// GetJSON decodes key into dst. ok is false on a miss or an expired entry.
func (c *JSONCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && !e.expires.IsZero() && !c.clock().Before(e.expires) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.raw, dst); err != nil {
		return false, fmt.Errorf("local cache: decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key. A non-positive ttl never expires.
func (c *JSONCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("local cache: encode %s: %w", key, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	e := entry{raw: raw}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	c.entries[key] = e
	return nil
}

// evictLocked drops expired entries, then the one closest to expiry if the
// cache is still full.
func (c *JSONCache) evictLocked(now time.Time) {
	var (
		victim string
		soon   time.Time
	)
	for k, e := range c.entries {
		if e.expires.IsZero() {
			continue
		}
		if !now.Before(e.expires) {
			delete(c.entries, k)
			continue
		}
		if victim == "" || e.expires.Before(soon) {
			victim, soon = k, e.expires
		}
	}
	if len(c.entries) >= c.maxEntries {
		if victim == "" {
			for k := range c.entries {
				victim = k
				break
			}
		}
		delete(c.entries, victim)
	}
}
