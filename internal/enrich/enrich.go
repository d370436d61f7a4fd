// Package enrich runs the article enrichment batch: crawl the news listing
// for a date range, extract each article, run the generator steps, resolve
// locations to sensors and persist the articles that qualify.
package enrich

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/client"
	"github.com/kjstillabower/sensor-event-correlator/internal/geo"
	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/store"
	"github.com/kjstillabower/sensor-event-correlator/internal/temporal"
	"github.com/kjstillabower/sensor-event-correlator/internal/validation"
)

// ErrNoArticles is returned when the listing has nothing for the range.
var ErrNoArticles = errors.New("no articles found in the specified date range")

// relevantAnswer is the relevancy step's positive answer.
const relevantAnswer = "σχετικό"

// Lister finds article links published on the given days.
type Lister interface {
	List(ctx context.Context, days []time.Time) ([]models.Listing, error)
}

// Extractor fetches an article and returns its title and body text.
type Extractor interface {
	Extract(ctx context.Context, url string) (title, body string, err error)
}

// Generator answers a system prompt and user message with text.
type Generator interface {
	Generate(ctx context.Context, model, systemPrompt, user string) (string, error)
}

// PlaceResolver maps a free-text place to a display name and address.
type PlaceResolver interface {
	Resolve(ctx context.Context, query string) (display, formatted string, ok bool, err error)
}

// Geocoder maps an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Coordinate, bool, error)
}

// ArticleSink persists enriched articles.
type ArticleSink interface {
	InsertArticle(ctx context.Context, a models.Article) error
}

// Options tune a Job.
type Options struct {
	DescriptionModel string
	TagModel         string
	ThresholdKm      float64
	Keywords         []string
	MaxRangeDays     int
	Prompts          Prompts
}

// Job wires the collaborators of one enrichment run. Articles are handled
// one at a time in listing order; a failure skips only the current article
// or location.
type Job struct {
	lister    Lister
	extractor Extractor
	generator Generator
	places    PlaceResolver
	geocoder  Geocoder
	sink      ArticleSink
	registry  *registry.Registry
	opts      Options
	logger    *zap.Logger
}

// NewJob creates a Job. A zero ThresholdKm uses geo.DefaultThresholdKm and
// empty prompts fall back to DefaultPrompts.
func NewJob(lister Lister, extractor Extractor, generator Generator, places PlaceResolver, geocoder Geocoder,
	sink ArticleSink, reg *registry.Registry, opts Options, logger *zap.Logger) *Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ThresholdKm <= 0 {
		opts.ThresholdKm = geo.DefaultThresholdKm
	}
	if opts.Prompts.Secondary == nil {
		opts.Prompts = DefaultPrompts()
	}
	return &Job{
		lister:    lister,
		extractor: extractor,
		generator: generator,
		places:    places,
		geocoder:  geocoder,
		sink:      sink,
		registry:  reg,
		opts:      opts,
		logger:    logger,
	}
}

// Stats counts what a run did with each listed article.
type Stats struct {
	Listed  int
	Stored  int
	Dropped int
	Skipped int
	Failed  int
}

type outcome string

const (
	outcomeStored  outcome = "stored"
	outcomeDropped outcome = "dropped"
	outcomeSkipped outcome = "skipped"
	outcomeFailed  outcome = "failed"
)

func (s *Stats) add(o outcome) {
	switch o {
	case outcomeStored:
		s.Stored++
	case outcomeDropped:
		s.Dropped++
	case outcomeSkipped:
		s.Skipped++
	case outcomeFailed:
		s.Failed++
	}
	observability.EnrichArticlesTotal.WithLabelValues(string(o)).Inc()
}

// Run enriches the articles published from start to end inclusive.
func (j *Job) Run(ctx context.Context, start, end time.Time) (Stats, error) {
	var stats Stats
	start, end = temporal.Midnight(start), temporal.Midnight(end)
	if err := validation.ValidateRange(start, end, j.opts.MaxRangeDays); err != nil {
		return stats, err
	}
	days := temporal.Days(start, end)
	j.logger.Info("collecting articles",
		zap.String("from", start.Format("2006-01-02")),
		zap.String("to", end.Format("2006-01-02")),
		zap.Int("days", len(days)),
	)

	listings, err := j.lister.List(ctx, days)
	if err != nil {
		return stats, fmt.Errorf("list articles: %w", err)
	}
	if len(listings) == 0 {
		return stats, ErrNoArticles
	}
	stats.Listed = len(listings)

	for _, l := range listings {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		o := j.process(ctx, l)
		stats.add(o)
	}

	j.logger.Info("enrichment completed",
		zap.Int("listed", stats.Listed),
		zap.Int("stored", stats.Stored),
		zap.Int("dropped", stats.Dropped),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (j *Job) process(ctx context.Context, l models.Listing) outcome {
	logger := j.logger.With(zap.String("url", l.URL))

	title, body, err := j.extractor.Extract(ctx, l.URL)
	if err != nil {
		logger.Error("article extraction failed",
			zap.String("category", string(client.CategorizeError(err))),
			zap.Error(err),
		)
		return outcomeFailed
	}
	if !TitleMatches(title, j.opts.Keywords) {
		logger.Debug("title matches no keyword", zap.String("title", title))
		return outcomeSkipped
	}
	if strings.TrimSpace(body) == "" {
		logger.Warn("article has no body text")
		return outcomeSkipped
	}
	logger.Info("processing article")

	p := j.opts.Prompts
	description, err := j.generate(ctx, j.opts.DescriptionModel, p.Description, title+"\n"+body)
	if err != nil {
		logger.Error("description failed", zap.Error(err))
		return outcomeFailed
	}

	relevancy, err := j.generate(ctx, j.opts.TagModel, p.Relevancy, description)
	if err != nil {
		logger.Error("relevancy failed", zap.Error(err))
		return outcomeFailed
	}
	if strings.ToLower(strings.TrimSpace(relevancy)) != relevantAnswer {
		logger.Info("article not relevant")
		return outcomeDropped
	}

	location, err := j.generate(ctx, j.opts.TagModel, p.Location, description)
	if err != nil {
		logger.Error("location failed", zap.Error(err))
		return outcomeFailed
	}
	sensors := j.resolveSensors(ctx, location, logger)

	primaryText, err := j.generate(ctx, j.opts.TagModel, p.PrimaryTag, description)
	if err != nil {
		logger.Error("primary tag failed", zap.Error(err))
		return outcomeFailed
	}
	primary := models.ParsePrimaryTag(primaryText)
	if !primary.Recognized() {
		logger.Warn("unrecognized primary tag", zap.String("answer", primaryText))
		return outcomeDropped
	}

	article := models.Article{
		URL:         l.URL,
		Title:       title,
		Content:     body,
		Description: description,
		PubDatetime: l.Published.UTC(),
		Location:    location,
		Sensors:     sensors,
		PrimaryTag:  primary,
	}
	if !article.Retained() {
		logger.Info("article has no sensor and is not about weather",
			zap.String("primary_tag", string(primary)),
		)
		return outcomeDropped
	}

	secondary, err := j.generate(ctx, j.opts.TagModel, p.Secondary[primary], description)
	if err != nil {
		logger.Error("secondary tag failed", zap.Error(err))
		return outcomeFailed
	}
	if secondary == "" {
		logger.Warn("empty secondary tag")
		return outcomeFailed
	}
	article.SecondaryTag = secondary

	dateInput := fmt.Sprintf("published date: %s\ndescription: %s", l.Published.Format("2006-01-02"), description)
	rawDates, err := j.generate(ctx, j.opts.TagModel, p.Dates, dateInput)
	if err != nil {
		logger.Error("date extraction failed", zap.Error(err))
		return outcomeFailed
	}
	article.Dates = temporal.Normalize(rawDates, l.Published, logger)

	if err := j.sink.InsertArticle(ctx, article); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			logger.Info("article already stored")
			return outcomeSkipped
		}
		logger.Error("failed to save article", zap.Error(err))
		return outcomeFailed
	}
	logger.Info("article saved",
		zap.String("primary_tag", string(article.PrimaryTag)),
		zap.Strings("sensors", article.Sensors),
		zap.Int("dates", len(article.Dates)),
	)
	return outcomeStored
}

func (j *Job) generate(ctx context.Context, model, prompt, user string) (string, error) {
	out, err := j.generator.Generate(ctx, model, prompt, user)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// resolveSensors resolves every "/"-separated location and returns the
// sorted set of sensors within range of any of them. Locations that fail to
// resolve are skipped.
func (j *Job) resolveSensors(ctx context.Context, location string, logger *zap.Logger) []string {
	set := make(map[string]struct{})
	for _, loc := range strings.Split(location, "/") {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			continue
		}
		display, formatted, ok, err := j.places.Resolve(ctx, loc)
		if err != nil {
			logger.Error("place lookup failed", zap.String("location", loc), zap.Error(err))
			continue
		}
		if !ok || formatted == "" {
			logger.Warn("no place found", zap.String("location", loc))
			continue
		}
		address := display + ", " + formatted
		coord, ok, err := j.geocoder.Geocode(ctx, address)
		if err != nil {
			logger.Error("geocode failed", zap.String("address", address), zap.Error(err))
			continue
		}
		if !ok {
			logger.Warn("no geocode result", zap.String("address", address))
			continue
		}
		if id, ok := geo.Assign(coord, j.registry, j.opts.ThresholdKm); ok {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
