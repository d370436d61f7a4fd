package cache

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
)

// Geocoder resolves an address to a coordinate. ok is false when the
// address has no result.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinate, bool, error)
}

// CachedGeocoder decorates a Geocoder with a Cache. Only found addresses are
// cached so "not found" answers are asked again on the next run. Cache
// failures are logged and never fail the lookup.
type CachedGeocoder struct {
	inner  Geocoder
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedGeocoder wraps inner with c.
func NewCachedGeocoder(inner Geocoder, c Cache, ttl time.Duration, logger *zap.Logger) *CachedGeocoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGeocoder{inner: inner, cache: c, ttl: ttl, logger: logger}
}

// Geocode implements Geocoder.
func (g *CachedGeocoder) Geocode(ctx context.Context, address string) (models.Coordinate, bool, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	coord, hit, err := g.cache.Get(ctx, key)
	if err != nil {
		g.logger.Warn("geocode cache get failed", zap.String("address", address), zap.Error(err))
	} else if hit {
		observability.CacheHitsTotal.WithLabelValues("geocode").Inc()
		return coord, true, nil
	}

	coord, ok, err := g.inner.Geocode(ctx, address)
	if err != nil || !ok {
		return coord, ok, err
	}
	if err := g.cache.Set(ctx, key, coord, g.ttl); err != nil {
		g.logger.Warn("geocode cache set failed", zap.String("address", address), zap.Error(err))
	}
	return coord, true, nil
}
