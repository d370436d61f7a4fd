//go:build integration
// +build integration

package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// TestMongoStore_RoundTrip runs against MONGO_URI in a throwaway database.
func TestMongoStore_RoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set, skipping integration test")
	}
	ctx := context.Background()
	db := "correlator_it_" + time.Now().Format("20060102150405")
	s, err := NewMongoStore(ctx, MongoConfig{URI: uri, Database: db, ArticleCollection: "articles", ReadingCollection: "sensor_readings"})
	require.NoError(t, err)
	defer func() {
		_ = s.client.Database(db).Drop(ctx)
		_ = s.Close(ctx)
	}()
	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.EnsureIndexes(ctx))

	a := models.Article{
		URL:         "https://example.com/1",
		PubDatetime: time.Date(2024, 4, 5, 10, 0, 0, 0, time.UTC),
		Sensors:     []string{"1566"},
		PrimaryTag:  models.PrimaryPublicEvents,
		Dates:       []time.Time{day(5)},
	}
	require.NoError(t, s.InsertArticle(ctx, a))
	assert.True(t, errors.Is(s.InsertArticle(ctx, a), ErrDuplicate))

	got, err := s.FindArticles(ctx, ArticleFilter{AnyOf: []ArticleClause{{SensorIDs: []string{"1566"}}}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.Dates, got[0].Dates)

	require.NoError(t, s.InsertReading(ctx, models.SensorReading{SensorID: "1566", Date: day(5), Readings: map[string]float64{"10:00:00": 4}}))
	rs, err := s.FindReadings(ctx, ReadingFilter{SensorIDs: []string{"1566"}, Dates: []time.Time{day(5)}})
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, 4.0, rs[0].Readings["10:00:00"])
}
