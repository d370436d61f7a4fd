package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
)

// MongoConfig locates the database and collections.
type MongoConfig struct {
	URI               string
	Database          string
	ArticleCollection string
	ReadingCollection string
	// Timeout bounds each operation. Zero uses 5s.
	Timeout time.Duration
}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client   *mongo.Client
	articles *mongo.Collection
	readings *mongo.Collection
	timeout  time.Duration
}

// NewMongoStore connects to MongoDB. The driver connects lazily; call Ping
// to verify reachability.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetConnectTimeout(timeout)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrUnavailable, err)
	}
	db := client.Database(cfg.Database)
	return &MongoStore{
		client:   client,
		articles: db.Collection(cfg.ArticleCollection),
		readings: db.Collection(cfg.ReadingCollection),
		timeout:  timeout,
	}, nil
}

func (s *MongoStore) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureIndexes creates the indexes the queries rely on, including the
// unique index on article URL.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	_, err := s.articles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "dates", Value: 1}}},
		{Keys: bson.D{{Key: "pub_datetime", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("%w: article indexes: %w", ErrUnavailable, err)
	}
	_, err = s.readings.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "sensor_id", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("%w: reading indexes: %w", ErrUnavailable, err)
	}
	return nil
}

// FindArticles implements Reader.
func (s *MongoStore) FindArticles(ctx context.Context, f ArticleFilter) ([]models.Article, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	opts := options.Find()
	if f.NewestFirst {
		opts.SetSort(bson.D{{Key: "pub_datetime", Value: -1}})
	}
	cur, err := s.articles.Find(ctx, articleQuery(f), opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find articles: %w", ErrUnavailable, err)
	}
	var out []models.Article
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode articles: %w", ErrUnavailable, err)
	}
	return out, nil
}

// FindReadings implements Reader.
func (s *MongoStore) FindReadings(ctx context.Context, f ReadingFilter) ([]models.SensorReading, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	cur, err := s.readings.Find(ctx, readingQuery(f))
	if err != nil {
		return nil, fmt.Errorf("%w: find readings: %w", ErrUnavailable, err)
	}
	var out []models.SensorReading
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%w: decode readings: %w", ErrUnavailable, err)
	}
	return out, nil
}

// InsertArticle implements Store.
func (s *MongoStore) InsertArticle(ctx context.Context, a models.Article) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.articles.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: url %s", ErrDuplicate, a.URL)
		}
		return fmt.Errorf("%w: insert article: %w", ErrUnavailable, err)
	}
	return nil
}

// InsertReading implements Store.
func (s *MongoStore) InsertReading(ctx context.Context, r models.SensorReading) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if _, err := s.readings.InsertOne(ctx, r); err != nil {
		return fmt.Errorf("%w: insert reading: %w", ErrUnavailable, err)
	}
	return nil
}

// Ping implements Store.
func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func articleQuery(f ArticleFilter) bson.M {
	q := bson.M{}
	switch len(f.AnyOf) {
	case 0:
	case 1:
		for k, v := range clauseQuery(f.AnyOf[0]) {
			q[k] = v
		}
	default:
		or := make(bson.A, 0, len(f.AnyOf))
		for _, c := range f.AnyOf {
			or = append(or, clauseQuery(c))
		}
		q["$or"] = or
	}
	if r := rangeQuery(f.Dates); len(r) > 0 {
		q["dates"] = bson.M{"$elemMatch": r}
	}
	return q
}

func clauseQuery(c ArticleClause) bson.M {
	q := bson.M{}
	if len(c.SensorIDs) > 0 {
		q["sensors"] = bson.M{"$in": c.SensorIDs}
	}
	if len(c.PrimaryTags) > 0 {
		q["primary_tag"] = bson.M{"$in": c.PrimaryTags}
	}
	if len(c.SecondaryTags) > 0 {
		q["secondary_tag"] = bson.M{"$in": c.SecondaryTags}
	}
	return q
}

func readingQuery(f ReadingFilter) bson.M {
	q := bson.M{}
	if len(f.SensorIDs) > 0 {
		q["sensor_id"] = bson.M{"$in": f.SensorIDs}
	}
	date := rangeQuery(f.Window)
	if f.Dates != nil {
		dates := make(bson.A, 0, len(f.Dates))
		for _, d := range f.Dates {
			dates = append(dates, d)
		}
		date["$in"] = dates
	}
	if len(date) > 0 {
		q["date"] = date
	}
	return q
}

func rangeQuery(w models.Window) bson.M {
	r := bson.M{}
	if w.From != nil {
		r["$gte"] = *w.From
	}
	if w.To != nil {
		if w.OpenEnd {
			r["$lt"] = *w.To
		} else {
			r["$lte"] = *w.To
		}
	}
	return r
}
