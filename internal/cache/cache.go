package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// Cache stores resolved coordinates by address.
// Get returns cached data if present and not expired, Set stores data with TTL.
type Cache interface {
	Get(ctx context.Context, key string) (models.Coordinate, bool, error)
	Set(ctx context.Context, key string, value models.Coordinate, ttl time.Duration) error
}

// InMemoryCache implements Cache using a map with TTL-based expiration.
// Expired entries are removed on access. Safe for concurrent use.
type InMemoryCache struct {
	mu         sync.Mutex
	data       map[string]cacheEntry
	maxEntries int
	clock      clockwork.Clock
}

type cacheEntry struct {
	value     models.Coordinate
	expiresAt time.Time
}

// NewInMemoryCache creates an in-memory cache holding at most maxEntries
// entries (unbounded when <= 0). A nil clock uses the real clock.
func NewInMemoryCache(maxEntries int, clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		data:       make(map[string]cacheEntry),
		maxEntries: maxEntries,
		clock:      clock,
	}
}

// Get returns (value, true, nil) on hit and (zero, false, nil) on miss or expiration.
func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Coordinate, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.data[key]
	if !ok {
		return models.Coordinate{}, false, nil
	}
	if c.clock.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Coordinate{}, false, nil
	}
	return entry.value, true, nil
}

// Set stores value for ttl. When the cache is full, expired entries are
// dropped first, then the entry closest to expiry.
func (c *InMemoryCache) Set(ctx context.Context, key string, value models.Coordinate, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if _, exists := c.data[key]; !exists && c.maxEntries > 0 && len(c.data) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.data[key] = cacheEntry{value: value, expiresAt: now.Add(ttl)}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

func (c *InMemoryCache) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.data {
		if now.After(e.expiresAt) {
			delete(c.data, k)
			continue
		}
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if len(c.data) >= c.maxEntries && oldestKey != "" {
		delete(c.data, oldestKey)
	}
}
