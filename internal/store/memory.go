package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// MemoryStore implements Store in process memory. Documents are returned in
// insertion order unless a filter asks otherwise.
type MemoryStore struct {
	mu       sync.RWMutex
	articles []models.Article
	urls     map[string]struct{}
	readings []models.SensorReading
	// Err, when set, is returned from every call. Used to simulate outages.
	Err error
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{urls: make(map[string]struct{})}
}

func (m *MemoryStore) fail() error {
	if m.Err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, m.Err)
	}
	return nil
}

// FindArticles implements Reader.
func (m *MemoryStore) FindArticles(ctx context.Context, f ArticleFilter) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.Article
	for _, a := range m.articles {
		if f.Match(a) {
			out = append(out, a)
		}
	}
	if f.NewestFirst {
		sort.SliceStable(out, func(i, j int) bool { return out[i].PubDatetime.After(out[j].PubDatetime) })
	}
	return out, nil
}

// FindReadings implements Reader.
func (m *MemoryStore) FindReadings(ctx context.Context, f ReadingFilter) ([]models.SensorReading, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var out []models.SensorReading
	for _, r := range m.readings {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// InsertArticle implements Store. URLs are unique.
func (m *MemoryStore) InsertArticle(ctx context.Context, a models.Article) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	if _, dup := m.urls[a.URL]; dup {
		return fmt.Errorf("%w: url %s", ErrDuplicate, a.URL)
	}
	m.urls[a.URL] = struct{}{}
	m.articles = append(m.articles, a)
	return nil
}

// InsertReading implements Store.
func (m *MemoryStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.readings = append(m.readings, r)
	return nil
}

// Articles returns a snapshot of stored articles in insertion order.
func (m *MemoryStore) Articles() []models.Article {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Article, len(m.articles))
	copy(out, m.articles)
	return out
}

// Readings returns a snapshot of stored readings in insertion order.
func (m *MemoryStore) Readings() []models.SensorReading {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.SensorReading, len(m.readings))
	copy(out, m.readings)
	return out
}

// Ping implements Store.
func (m *MemoryStore) Ping(ctx context.Context) error {
	return m.fail()
}

// Close implements Store.
func (m *MemoryStore) Close(ctx context.Context) error {
	return nil
}
