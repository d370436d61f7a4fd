//go:build integration
// +build integration

// Package testhelpers sets up the external backends used by integration
// tests. Tests skip when the backend is not configured.
package testhelpers

import (
	"context"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjstillabower/sensor-event-correlator/internal/cache"
	"github.com/kjstillabower/sensor-event-correlator/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	MongoURI      string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if MONGO_URI is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		MongoURI:      uri,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationStore opens a MongoStore on a throwaway database with
// indexes in place. The cleanup drops the database.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) (*store.MongoStore, func()) {
	t.Helper()
	ctx := context.Background()
	db := "correlator_it_" + time.Now().UTC().Format("20060102150405.000000")
	s, err := store.NewMongoStore(ctx, store.MongoConfig{
		URI:               cfg.MongoURI,
		Database:          db,
		ArticleCollection: "articles",
		ReadingCollection: "sensor_readings",
	})
	if err != nil {
		t.Fatalf("NewMongoStore() error = %v", err)
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close(ctx)
		t.Skipf("mongo not reachable: %v", err)
	}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = s.Close(ctx)
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	cleanup := func() {
		dropDatabase(t, cfg.MongoURI, db)
		_ = s.Close(context.Background())
	}
	return s, cleanup
}

func dropDatabase(t *testing.T, uri, db string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Logf("drop %s: %v", db, err)
		return
	}
	defer func() { _ = c.Disconnect(ctx) }()
	if err := c.Database(db).Drop(ctx); err != nil {
		t.Logf("drop %s: %v", db, err)
	}
}

// SetupIntegrationCache returns the geocode cache selected by
// INTEGRATION_CACHE_BACKEND, falling back to memory when memcached is
// unavailable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.Cache, func()) {
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil && mc.Ping() == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	}
	return cache.NewInMemoryCache(0, nil), func() {}
}
