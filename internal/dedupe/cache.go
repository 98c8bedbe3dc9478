// ABOUTME: Thread-safe TTL cache for suppressing duplicate notifications
// ABOUTME: Used by the gateway to rate-limit repeated handoff broadcasts per user

package dedupe

import (
	"sync"
	"time"
)

// Cache is a thread-safe, TTL-based, size-limited set of recently seen keys.
// The gateway keys it by user ID to avoid re-broadcasting a join request to
// the agent pool for every message a waiting user sends.
type Cache struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	maxSize int
}

// New creates a cache with the given TTL and maximum size. Expired entries
// are reclaimed lazily whenever the cache is at capacity.
func New(ttl time.Duration, maxSize int) *Cache {
	return &Cache{
		seen:    make(map[string]time.Time),
		ttl:     ttl,
		maxSize: maxSize,
	}
}

// CheckAndMark atomically checks whether a key was seen within the TTL and
// marks it if not. Returns true for a duplicate, false if the key is new
// and now marked. The single-lock check-and-set avoids TOCTOU races
// between concurrent callers for the same key.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if seenAt, ok := c.seen[key]; ok && now.Sub(seenAt) < c.ttl {
		return true
	}

	if len(c.seen) >= c.maxSize {
		c.sweepLocked(now)
	}
	if len(c.seen) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.seen[key] = now
	return false
}

// Forget removes a key so the next CheckAndMark reports it as new.
// Called when a handoff resolves and a fresh broadcast should be allowed.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
}

// sweepLocked drops all expired entries. Must be called with mu held.
func (c *Cache) sweepLocked(now time.Time) {
	for key, seenAt := range c.seen {
		if now.Sub(seenAt) >= c.ttl {
			delete(c.seen, key)
		}
	}
}

// evictOldestLocked removes the entry with the oldest timestamp.
// Must be called with mu held.
func (c *Cache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	for key, seenAt := range c.seen {
		if oldestKey == "" || seenAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = seenAt
		}
	}
	if oldestKey != "" {
		delete(c.seen, oldestKey)
	}
}
