// Package store persists articles and sensor readings and evaluates the
// filters the query service builds over them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

var (
	// ErrUnavailable wraps failures talking to the backing store.
	ErrUnavailable = errors.New("datastore unavailable")
	// ErrDuplicate is returned when an article with the same URL already exists.
	ErrDuplicate = errors.New("duplicate document")
)

// Reader is the read side used by the query service.
type Reader interface {
	FindArticles(ctx context.Context, f ArticleFilter) ([]models.Article, error)
	FindReadings(ctx context.Context, f ReadingFilter) ([]models.SensorReading, error)
}

// Store is a document store for articles and sensor readings.
type Store interface {
	Reader
	InsertArticle(ctx context.Context, a models.Article) error
	InsertReading(ctx context.Context, r models.SensorReading) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// ArticleClause is a conjunction over article fields. Empty lists leave the
// field unconstrained; a non-empty list matches any of its values.
type ArticleClause struct {
	SensorIDs     []string
	PrimaryTags   []string
	SecondaryTags []string
}

// Empty reports whether the clause constrains nothing.
func (c ArticleClause) Empty() bool {
	return len(c.SensorIDs) == 0 && len(c.PrimaryTags) == 0 && len(c.SecondaryTags) == 0
}

// Match evaluates the clause against a.
func (c ArticleClause) Match(a models.Article) bool {
	if len(c.SensorIDs) > 0 && !anySensor(a, c.SensorIDs) {
		return false
	}
	if len(c.PrimaryTags) > 0 && !contains(c.PrimaryTags, string(a.PrimaryTag)) {
		return false
	}
	if len(c.SecondaryTags) > 0 && !contains(c.SecondaryTags, a.SecondaryTag) {
		return false
	}
	return true
}

// ArticleFilter selects articles. AnyOf is a disjunction of clauses; an
// empty AnyOf matches every article. Dates requires at least one of the
// article's dates to fall in the window.
type ArticleFilter struct {
	AnyOf       []ArticleClause
	Dates       models.Window
	NewestFirst bool
}

// Match evaluates the filter against a.
func (f ArticleFilter) Match(a models.Article) bool {
	if len(f.AnyOf) > 0 {
		ok := false
		for _, c := range f.AnyOf {
			if c.Match(a) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if !f.Dates.Unbounded() && !f.Dates.Intersects(a.Dates) {
		return false
	}
	return true
}

// ReadingFilter selects sensor reading documents. A nil Dates leaves the
// date unconstrained by set membership; Window bounds it by range.
type ReadingFilter struct {
	SensorIDs []string
	Window    models.Window
	Dates     []time.Time
}

// Match evaluates the filter against r.
func (f ReadingFilter) Match(r models.SensorReading) bool {
	if len(f.SensorIDs) > 0 && !contains(f.SensorIDs, r.SensorID) {
		return false
	}
	if !f.Window.Contains(r.Date) {
		return false
	}
	if f.Dates != nil {
		found := false
		for _, d := range f.Dates {
			if d.Equal(r.Date) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func anySensor(a models.Article, ids []string) bool {
	for _, id := range ids {
		if a.HasSensor(id) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
