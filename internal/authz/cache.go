package authz

import (
	"strings"
	"sync"
	"time"

	"gatewise.org/internal/obs"
)

const (
	defaultCacheTTL      = 60 * time.Second
	defaultCacheCapacity = 500
)

type cacheEntry struct {
	value    Resolution
	storedAt time.Time
	seq      uint64
}

type cacheSlot struct {
	key string
	seq uint64
}

// PermissionCache is a capacity-bounded, TTL-expiring map in front of the
// resolution engine, keyed by memberID:applicationID. Eviction at capacity
// removes the oldest inserted entry, not the least recently read. Only
// explicit-grant results are stored here; the admin tiers are recomputed on
// every call.
type PermissionCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	entries  map[string]cacheEntry
	order    []cacheSlot
	seq      uint64
	now      func() time.Time
}

// CacheOption configures a PermissionCache.
type CacheOption func(*PermissionCache)

// WithCacheTTL overrides the entry lifetime.
func WithCacheTTL(ttl time.Duration) CacheOption {
	return func(c *PermissionCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheCapacity overrides the entry bound.
func WithCacheCapacity(capacity int) CacheOption {
	return func(c *PermissionCache) {
		if capacity > 0 {
			c.capacity = capacity
		}
	}
}

// WithCacheClock overrides the time source (used by tests).
func WithCacheClock(fn func() time.Time) CacheOption {
	return func(c *PermissionCache) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewPermissionCache constructs a cache with the default 60s TTL and 500
// entry capacity. The cache is an explicit dependency of the resolver; its
// lifecycle is process-scoped.
func NewPermissionCache(opts ...CacheOption) *PermissionCache {
	c := &PermissionCache{
		ttl:      defaultCacheTTL,
		capacity: defaultCacheCapacity,
		entries:  make(map[string]cacheEntry),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey builds the canonical cache key for a (member, application) pair.
func CacheKey(memberID, applicationID string) string {
	return memberID + ":" + applicationID
}

// Get returns the cached resolution if present and younger than the TTL.
// Expired entries are removed and reported as misses.
func (c *PermissionCache) Get(key string) (Resolution, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		obs.ObserveCacheEvent("miss")
		return Resolution{}, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		delete(c.entries, key)
		obs.ObserveCacheEvent("expiry")
		return Resolution{}, false
	}
	obs.ObserveCacheEvent("hit")
	return entry.value.clone(), true
}

// Set stores a resolution, evicting the oldest inserted entry when the cache
// is at capacity.
func (c *PermissionCache) Set(key string, value Resolution) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}

	c.seq++
	c.entries[key] = cacheEntry{value: value.clone(), storedAt: c.now(), seq: c.seq}
	c.order = append(c.order, cacheSlot{key: key, seq: c.seq})

	if len(c.order) > 2*len(c.entries) {
		c.compactLocked()
	}
}

// Invalidate drops the entry for one (member, application) pair.
func (c *PermissionCache) Invalidate(memberID, applicationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := CacheKey(memberID, applicationID)
	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		obs.ObserveCacheEvent("invalidation")
	}
}

// InvalidateMember drops every cached entry belonging to the member,
// regardless of application.
func (c *PermissionCache) InvalidateMember(memberID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := memberID + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			obs.ObserveCacheEvent("invalidation")
		}
	}
}

// InvalidateApplication drops every cached entry for the application,
// regardless of member. Used when the application itself is deleted.
func (c *PermissionCache) InvalidateApplication(applicationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	suffix := ":" + applicationID
	for key := range c.entries {
		if strings.HasSuffix(key, suffix) {
			delete(c.entries, key)
			obs.ObserveCacheEvent("invalidation")
		}
	}
}

// Len reports the number of live entries.
func (c *PermissionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictOldestLocked pops insertion-order slots until one still refers to a
// live entry, then removes that entry. Slots whose key was overwritten or
// invalidated since insertion are stale and skipped.
func (c *PermissionCache) evictOldestLocked() {
	for len(c.order) > 0 {
		slot := c.order[0]
		c.order = c.order[1:]
		entry, ok := c.entries[slot.key]
		if !ok || entry.seq != slot.seq {
			continue
		}
		delete(c.entries, slot.key)
		obs.ObserveCacheEvent("eviction")
		return
	}
}

// compactLocked rebuilds the insertion-order queue with only live slots.
// Overwrites and invalidations leave stale slots behind; without compaction
// a workload that keeps re-storing the same keys would grow the queue for
// the life of the process.
func (c *PermissionCache) compactLocked() {
	live := c.order[:0]
	for _, slot := range c.order {
		if entry, ok := c.entries[slot.key]; ok && entry.seq == slot.seq {
			live = append(live, slot)
		}
	}
	c.order = live
}
