// Package dedup suppresses duplicate event and share deliveries with a
// TTL-keyed presence cache.
package dedup

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/zeebo/blake3"
)

const (
	// DefaultTTL is how long a seen key suppresses duplicates.
	DefaultTTL = 60 * time.Second

	// DefaultScanEvery is how many ingress checks pass between cleanup scans.
	DefaultScanEvery = 50
)

// Cache tracks recently seen keys. Keys are blake3-hashed so the map holds
// fixed-size entries regardless of key length. Expired entries are collected
// by scanning on every Nth check rather than by a timer goroutine.
type Cache struct {
	seen      map[[32]byte]time.Time
	mu        sync.Mutex
	ttl       time.Duration
	scanEvery int
	checks    int
	clock     clockwork.Clock
}

// New creates a cache with the given TTL and cleanup frequency.
func New(ttl time.Duration, scanEvery int) *Cache {
	return NewWithClock(ttl, scanEvery, clockwork.NewRealClock())
}

// NewWithClock creates a cache using the given clock. Used by tests.
func NewWithClock(ttl time.Duration, scanEvery int, clock clockwork.Clock) *Cache {
	if scanEvery < 1 {
		scanEvery = 1
	}

	return &Cache{
		seen:      make(map[[32]byte]time.Time),
		ttl:       ttl,
		scanEvery: scanEvery,
		clock:     clock,
	}
}

// Seen reports whether key was recorded within the TTL. A new key is
// recorded, so the first call returns false and later calls return true
// until the entry expires.
func (c *Cache) Seen(key string) bool {
	hash := blake3.Sum256([]byte(key))

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	c.checks++
	if c.checks%c.scanEvery == 0 {
		c.scan(now)
	}

	if ts, ok := c.seen[hash]; ok && now.Sub(ts) < c.ttl {
		return true
	}

	c.seen[hash] = now

	return false
}

// Len returns the number of tracked entries, including any not yet scanned
// out after expiry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.seen)
}

// scan removes expired entries. Caller holds the lock.
func (c *Cache) scan(now time.Time) {
	for hash, ts := range c.seen {
		if now.Sub(ts) >= c.ttl {
			delete(c.seen, hash)
		}
	}
}
