package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, time.April, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestArticleFilter_Match(t *testing.T) {
	weather := models.Article{URL: "w", PrimaryTag: models.PrimaryWeather, Dates: []time.Time{day(5)}}
	march := models.Article{URL: "m", Sensors: []string{"1566"}, PrimaryTag: models.PrimaryPublicEvents, SecondaryTag: "Πορεία", Dates: []time.Time{day(6), day(7)}}

	tests := []struct {
		name   string
		filter ArticleFilter
		a      models.Article
		want   bool
	}{
		{"empty filter matches all", ArticleFilter{}, march, true},
		{"sensor clause", ArticleFilter{AnyOf: []ArticleClause{{SensorIDs: []string{"1566"}}}}, march, true},
		{"sensor clause misses unassigned", ArticleFilter{AnyOf: []ArticleClause{{SensorIDs: []string{"1566"}}}}, weather, false},
		{"weather or sensor clause", ArticleFilter{AnyOf: []ArticleClause{
			{PrimaryTags: []string{string(models.PrimaryWeather)}},
			{SensorIDs: []string{"1566"}, PrimaryTags: []string{"x"}},
		}}, weather, true},
		{"clause is a conjunction", ArticleFilter{AnyOf: []ArticleClause{{SensorIDs: []string{"1566"}, SecondaryTags: []string{"Συναυλία"}}}}, march, false},
		{"date window intersects", ArticleFilter{Dates: models.Window{From: ptr(day(7)), To: ptr(day(9))}}, march, true},
		{"date window misses", ArticleFilter{Dates: models.Window{From: ptr(day(8))}}, march, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(tt.a))
		})
	}
}

func TestReadingFilter_Match(t *testing.T) {
	r := models.SensorReading{SensorID: "1566", Date: day(6)}

	assert.True(t, ReadingFilter{}.Match(r))
	assert.True(t, ReadingFilter{SensorIDs: []string{"1006", "1566"}}.Match(r))
	assert.False(t, ReadingFilter{SensorIDs: []string{"1006"}}.Match(r))
	assert.True(t, ReadingFilter{Window: models.Window{From: ptr(day(6)), To: ptr(day(6))}}.Match(r))
	assert.False(t, ReadingFilter{Window: models.Window{To: ptr(day(6)), OpenEnd: true}}.Match(r))
	assert.True(t, ReadingFilter{Dates: []time.Time{day(5), day(6)}}.Match(r))
	assert.False(t, ReadingFilter{Dates: []time.Time{}}.Match(r), "empty date set matches nothing")
}

func TestMemoryStore_NewestFirstAndDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	older := models.Article{URL: "a", PubDatetime: day(1)}
	newer := models.Article{URL: "b", PubDatetime: day(2)}
	require.NoError(t, s.InsertArticle(ctx, older))
	require.NoError(t, s.InsertArticle(ctx, newer))

	err := s.InsertArticle(ctx, models.Article{URL: "a"})
	assert.True(t, errors.Is(err, ErrDuplicate))

	got, err := s.FindArticles(ctx, ArticleFilter{NewestFirst: true})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].URL)

	got, err = s.FindArticles(ctx, ArticleFilter{})
	require.NoError(t, err)
	assert.Equal(t, "a", got[0].URL, "natural order is insertion order")
}

func TestMemoryStore_Err(t *testing.T) {
	s := NewMemoryStore()
	s.Err = errors.New("boom")

	_, err := s.FindReadings(context.Background(), ReadingFilter{})
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.Error(t, s.Ping(context.Background()))
}

func TestArticleQuery(t *testing.T) {
	from, to := day(1), day(30)

	single := articleQuery(ArticleFilter{
		AnyOf: []ArticleClause{{SensorIDs: []string{"1566"}, PrimaryTags: []string{"P"}}},
		Dates: models.Window{From: &from, To: &to},
	})
	assert.Equal(t, bson.M{
		"sensors":     bson.M{"$in": []string{"1566"}},
		"primary_tag": bson.M{"$in": []string{"P"}},
		"dates":       bson.M{"$elemMatch": bson.M{"$gte": from, "$lte": to}},
	}, single)

	or := articleQuery(ArticleFilter{AnyOf: []ArticleClause{
		{PrimaryTags: []string{"W"}},
		{SensorIDs: []string{"1"}, SecondaryTags: []string{"S"}},
	}})
	assert.Equal(t, bson.M{"$or": bson.A{
		bson.M{"primary_tag": bson.M{"$in": []string{"W"}}},
		bson.M{"sensors": bson.M{"$in": []string{"1"}}, "secondary_tag": bson.M{"$in": []string{"S"}}},
	}}, or)

	assert.Equal(t, bson.M{}, articleQuery(ArticleFilter{}))
}

func TestReadingQuery(t *testing.T) {
	y := models.Year(2024)
	assert.Equal(t, bson.M{
		"date": bson.M{"$gte": *y.From, "$lt": *y.To},
	}, readingQuery(ReadingFilter{Window: y}))

	assert.Equal(t, bson.M{
		"sensor_id": bson.M{"$in": []string{"1566"}},
		"date":      bson.M{"$in": bson.A{day(5), day(6)}},
	}, readingQuery(ReadingFilter{SensorIDs: []string{"1566"}, Dates: []time.Time{day(5), day(6)}}))
}

// TestMemoryStore_CanceledContext verifies that every call fails with the
// context error still visible through the wrap.
func TestMemoryStore_CanceledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.FindArticles(ctx, ArticleFilter{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	err = s.InsertArticle(ctx, models.Article{URL: "a"})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, context.Canceled)

	err = s.InsertReading(ctx, models.SensorReading{SensorID: "1"})
	assert.ErrorIs(t, err, context.Canceled)

	assert.Empty(t, s.Articles())
	assert.Empty(t, s.Readings())
}
