package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

var patras = models.Coordinate{Lat: 38.2466, Lon: 21.7346}

// TestInMemoryCache_GetSet verifies that Set stores values and Get retrieves
// them correctly with the expected data.
func TestInMemoryCache_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(0, nil)

	if err := c.Set(ctx, "patras", patras, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "patras")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got != patras {
		t.Errorf("Get() = %+v, want %+v", got, patras)
	}
}

// TestInMemoryCache_Get_Miss verifies that Get returns ok=false when
// the requested key does not exist in cache.
func TestInMemoryCache_Get_Miss(t *testing.T) {
	c := NewInMemoryCache(0, nil)

	_, ok, err := c.Get(context.Background(), "nonexistent")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for miss")
	}
}

// TestInMemoryCache_Get_Expired verifies that Get returns ok=false for expired
// entries and removes them from cache on access.
func TestInMemoryCache_Get_Expired(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	c := NewInMemoryCache(0, clock)

	if err := c.Set(ctx, "patras", patras, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clock.Advance(time.Minute + time.Second)

	_, ok, err := c.Get(ctx, "patras")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() ok = true, want false for expired entry")
	}
	if n := c.Len(); n != 0 {
		t.Errorf("Len() = %d after expired Get, want 0", n)
	}
}

// TestInMemoryCache_EvictsClosestToExpiry verifies the size bound.
func TestInMemoryCache_EvictsClosestToExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewInMemoryCache(2, clockwork.NewFakeClock())

	_ = c.Set(ctx, "short", patras, time.Minute)
	_ = c.Set(ctx, "long", patras, time.Hour)
	_ = c.Set(ctx, "new", patras, time.Hour)

	if n := c.Len(); n != 2 {
		t.Fatalf("Len() = %d, want 2", n)
	}
	if _, ok, _ := c.Get(ctx, "short"); ok {
		t.Error("entry closest to expiry should have been evicted")
	}
	if _, ok, _ := c.Get(ctx, "long"); !ok {
		t.Error("long-lived entry should survive eviction")
	}
}

// TestExpirationSeconds verifies the memcached TTL clamp.
func TestExpirationSeconds(t *testing.T) {
	tests := []struct {
		ttl  time.Duration
		want int32
	}{
		{0, 3600},
		{-time.Second, 3600},
		{time.Minute, 60},
		{24 * time.Hour, 86400},
		{90 * 24 * time.Hour, 30 * 24 * 60 * 60},
	}
	for _, tt := range tests {
		if got := expirationSeconds(tt.ttl); got != tt.want {
			t.Errorf("expirationSeconds(%v) = %d, want %d", tt.ttl, got, tt.want)
		}
	}
}

// TestMemcachedCache_KeyIsSafe verifies that hashed keys are short ASCII with the prefix.
func TestMemcachedCache_KeyIsSafe(t *testing.T) {
	c, err := NewMemcachedCache("", 0, 0)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	k := c.key("Πλατεία Γεωργίου, Πάτρα 262 21, Greece")
	if len(k) != len(keyPrefix)+64 {
		t.Errorf("key length = %d, want %d", len(k), len(keyPrefix)+64)
	}
	if k[:len(keyPrefix)] != keyPrefix {
		t.Errorf("key = %q, want prefix %q", k, keyPrefix)
	}
	if c.key("a") == c.key("b") {
		t.Error("distinct addresses must not share a key")
	}
}

type stubGeocoder struct {
	calls int
	coord models.Coordinate
	ok    bool
	err   error
}

func (s *stubGeocoder) Geocode(ctx context.Context, address string) (models.Coordinate, bool, error) {
	s.calls++
	return s.coord, s.ok, s.err
}

type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (models.Coordinate, bool, error) {
	return models.Coordinate{}, false, errors.New("connection refused")
}

func (failingCache) Set(ctx context.Context, key string, value models.Coordinate, ttl time.Duration) error {
	return errors.New("connection refused")
}

// TestCachedGeocoder_CachesFoundResults verifies that a found address is
// served from cache on the second lookup, case and whitespace insensitively.
func TestCachedGeocoder_CachesFoundResults(t *testing.T) {
	inner := &stubGeocoder{coord: patras, ok: true}
	g := NewCachedGeocoder(inner, NewInMemoryCache(0, nil), time.Hour, nil)
	ctx := context.Background()

	for _, addr := range []string{"Patras, Greece", "  patras, greece "} {
		got, ok, err := g.Geocode(ctx, addr)
		if err != nil || !ok || got != patras {
			t.Fatalf("Geocode(%q) = %+v, %v, %v", addr, got, ok, err)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner calls = %d, want 1", inner.calls)
	}
}

// TestCachedGeocoder_DoesNotCacheMisses verifies that not-found and failed
// lookups are retried on the next call.
func TestCachedGeocoder_DoesNotCacheMisses(t *testing.T) {
	inner := &stubGeocoder{ok: false}
	g := NewCachedGeocoder(inner, NewInMemoryCache(0, nil), time.Hour, nil)
	ctx := context.Background()

	_, _, _ = g.Geocode(ctx, "Nowhere")
	inner.err = errors.New("upstream failure")
	if _, _, err := g.Geocode(ctx, "Nowhere"); err == nil {
		t.Error("Geocode() error = nil, want upstream error")
	}
	if inner.calls != 2 {
		t.Errorf("inner calls = %d, want 2", inner.calls)
	}
}

// TestCachedGeocoder_CacheFailureFallsThrough verifies that a broken cache
// does not fail the lookup.
func TestCachedGeocoder_CacheFailureFallsThrough(t *testing.T) {
	inner := &stubGeocoder{coord: patras, ok: true}
	g := NewCachedGeocoder(inner, failingCache{}, time.Hour, nil)

	got, ok, err := g.Geocode(context.Background(), "Patras")
	if err != nil || !ok || got != patras {
		t.Errorf("Geocode() = %+v, %v, %v, want coordinate", got, ok, err)
	}
}
