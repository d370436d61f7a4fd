package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/store"
)

// ErrMissingWindow is returned when an operation requires at least one time bound.
var ErrMissingWindow = errors.New("missing time window")

// topTags is the number of slices in the tag distribution.
const topTags = 4

// Filter narrows a dashboard query. Empty tag lists mean no filter.
type Filter struct {
	PrimaryTags   []string
	SecondaryTags []string
	// PrimaryLabel and SecondaryLabel echo the raw request values in series targets.
	PrimaryLabel   string
	SecondaryLabel string
	Window         models.Window
}

func (f Filter) tagged() bool {
	return len(f.PrimaryTags) > 0 || len(f.SecondaryTags) > 0
}

func (f Filter) wantsWeather() bool {
	for _, t := range f.PrimaryTags {
		if t == string(models.PrimaryWeather) {
			return true
		}
	}
	return false
}

func (f Filter) nonWeatherPrimary() []string {
	var out []string
	for _, t := range f.PrimaryTags {
		if t != string(models.PrimaryWeather) {
			out = append(out, t)
		}
	}
	return out
}

// QueryService answers dashboard queries by joining articles and sensor
// readings on affected dates. It holds no state between calls.
type QueryService struct {
	store    store.Reader
	registry *registry.Registry
	clock    clockwork.Clock
}

// NewQueryService creates a QueryService. A nil clock uses the real clock.
func NewQueryService(r store.Reader, reg *registry.Registry, clock clockwork.Clock) *QueryService {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QueryService{store: r, registry: reg, clock: clock}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return zap.NewNop()
}

// SensorSeries returns the daily mean readings of one sensor. With tag
// filters, only days affected by matching articles are included.
func (s *QueryService) SensorSeries(ctx context.Context, sensorName string, f Filter) ([]models.Series, error) {
	id, ok := s.registry.IDByName(sensorName)
	if !ok {
		return one(models.EmptySeries(sensorName + " (Sensor ID not found)")), nil
	}

	rf, empty, err := s.readingFilter(ctx, sensorName, []string{id}, f)
	if err != nil || empty != nil {
		return empty, err
	}

	readings, err := s.findReadings(ctx, "sensor_series", rf)
	if err != nil {
		return nil, err
	}
	points := make([]models.Datapoint, 0, len(readings))
	for _, r := range readings {
		mean, ok := r.Mean()
		if !ok {
			continue
		}
		points = append(points, models.NewDatapoint(mean, r.Date))
	}
	sort.SliceStable(points, func(i, j int) bool { return points[i].Timestamp < points[j].Timestamp })

	return one(models.Series{Target: seriesTarget(sensorName, f), Datapoints: points}), nil
}

// AreaSeries returns one value per day for an area: the average of each
// sensor's daily mean. Unknown areas resolve to the all-sensors group.
func (s *QueryService) AreaSeries(ctx context.Context, area string, f Filter) ([]models.Series, error) {
	name, ids := s.registry.Area(area)
	if len(ids) == 0 {
		return one(models.EmptySeries(name + " (No sensors configured)")), nil
	}

	rf, empty, err := s.readingFilter(ctx, name, ids, f)
	if err != nil || empty != nil {
		return empty, err
	}

	readings, err := s.findReadings(ctx, "area_series", rf)
	if err != nil {
		return nil, err
	}
	byDay := make(map[int64][]float64)
	for _, r := range readings {
		mean, ok := r.Mean()
		if !ok {
			continue
		}
		ts := r.Date.UnixMilli()
		byDay[ts] = append(byDay[ts], mean)
	}
	days := make([]int64, 0, len(byDay))
	for ts := range byDay {
		days = append(days, ts)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	points := make([]models.Datapoint, 0, len(days))
	for _, ts := range days {
		points = append(points, models.Datapoint{Value: mean(byDay[ts]), Timestamp: ts})
	}
	return one(models.Series{Target: seriesTarget(name, f), Datapoints: points}), nil
}

// readingFilter builds the reading query for the given sensors. When tag
// filters narrow the query to no days at all, it returns a labelled empty
// result instead.
func (s *QueryService) readingFilter(ctx context.Context, label string, ids []string, f Filter) (store.ReadingFilter, []models.Series, error) {
	if !f.tagged() {
		return store.ReadingFilter{SensorIDs: ids, Window: f.Window}, nil, nil
	}

	dates, err := s.eventDates(ctx, ids, f)
	if err != nil {
		return store.ReadingFilter{}, nil, err
	}
	if len(dates) == 0 {
		return store.ReadingFilter{}, one(models.EmptySeries(label + " (No events match selected filters)")), nil
	}
	clamped := dates[:0:0]
	for _, d := range dates {
		if f.Window.Contains(d) {
			clamped = append(clamped, d)
		}
	}
	if len(clamped) == 0 {
		return store.ReadingFilter{}, one(models.EmptySeries(label + " (No events in selected time window)")), nil
	}
	return store.ReadingFilter{SensorIDs: ids, Dates: clamped}, nil, nil
}

// eventDates collects the affected dates of articles that match the tag
// filters. Weather articles match regardless of sensor; others must be
// assigned to one of ids.
func (s *QueryService) eventDates(ctx context.Context, ids []string, f Filter) ([]time.Time, error) {
	var clauses []store.ArticleClause
	if f.wantsWeather() {
		clauses = append(clauses, store.ArticleClause{PrimaryTags: []string{string(models.PrimaryWeather)}})
	}
	nonWeather := f.nonWeatherPrimary()
	if len(nonWeather) > 0 || len(f.SecondaryTags) > 0 {
		clauses = append(clauses, store.ArticleClause{
			SensorIDs:     ids,
			PrimaryTags:   nonWeather,
			SecondaryTags: f.SecondaryTags,
		})
	}

	articles, err := s.findArticles(ctx, "event_dates", store.ArticleFilter{AnyOf: clauses})
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var dates []time.Time
	for _, a := range articles {
		for _, d := range a.Dates {
			d = d.UTC()
			key := d.UnixNano()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			dates = append(dates, d)
		}
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// SensorArticles lists the articles behind a sensor's series, newest first.
// An unknown sensor yields an empty list.
func (s *QueryService) SensorArticles(ctx context.Context, sensorName string, f Filter) ([]models.ArticleRow, error) {
	id, ok := s.registry.IDByName(sensorName)
	if !ok {
		loggerFromContext(ctx).Debug("article list for unknown sensor", zap.String("sensor", sensorName))
		return []models.ArticleRow{}, nil
	}
	return s.listArticles(ctx, []string{id}, f)
}

// AreaArticles lists the articles behind an area's series, newest first.
func (s *QueryService) AreaArticles(ctx context.Context, area string, f Filter) ([]models.ArticleRow, error) {
	_, ids := s.registry.Area(area)
	return s.listArticles(ctx, ids, f)
}

func (s *QueryService) listArticles(ctx context.Context, ids []string, f Filter) ([]models.ArticleRow, error) {
	clause := store.ArticleClause{
		PrimaryTags:   f.PrimaryTags,
		SecondaryTags: f.SecondaryTags,
	}
	// Weather articles carry no sensors.
	if !f.wantsWeather() {
		if len(ids) == 0 {
			return []models.ArticleRow{}, nil
		}
		clause.SensorIDs = ids
	}
	af := store.ArticleFilter{Dates: f.Window, NewestFirst: true}
	if !clause.Empty() {
		af.AnyOf = []store.ArticleClause{clause}
	}

	articles, err := s.findArticles(ctx, "article_list", af)
	if err != nil {
		return nil, err
	}
	rows := make([]models.ArticleRow, 0, len(articles))
	for _, a := range articles {
		rows = append(rows, a.Row())
	}
	return rows, nil
}

// YearlyAverage returns the flat mean of every reading value recorded in
// year, stamped with the current time. Unlike AreaSeries this does not
// average per sensor first.
func (s *QueryService) YearlyAverage(ctx context.Context, year int) ([]models.Series, error) {
	readings, err := s.findReadings(ctx, "yearly_average", store.ReadingFilter{Window: models.Year(year)})
	if err != nil {
		return nil, err
	}
	var values []float64
	for _, r := range readings {
		values = append(values, r.Values()...)
	}
	avg := 0.0
	if len(values) > 0 {
		avg = mean(values)
	}
	return one(models.Series{
		Target:     "Average " + strconv.Itoa(year),
		Datapoints: []models.Datapoint{models.NewDatapoint(round2(avg), s.clock.Now())},
	}), nil
}

// TagDistribution returns the share of the four most frequent primary tags
// among articles affecting the window. Ties keep the order in which tags
// were first seen.
func (s *QueryService) TagDistribution(ctx context.Context, w models.Window) ([]models.TagShare, error) {
	if w.Unbounded() {
		return nil, ErrMissingWindow
	}
	articles, err := s.findArticles(ctx, "tag_distribution", store.ArticleFilter{Dates: w})
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return []models.TagShare{}, nil
	}

	counts := make(map[string]int)
	var order []string
	for _, a := range articles {
		tag := string(a.PrimaryTag)
		if _, ok := counts[tag]; !ok {
			order = append(order, tag)
		}
		counts[tag]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topTags {
		order = order[:topTags]
	}

	total := float64(len(articles))
	shares := make([]models.TagShare, 0, len(order))
	for _, tag := range order {
		shares = append(shares, models.TagShare{Label: tag, Value: round2(float64(counts[tag]) * 100 / total)})
	}
	return shares, nil
}

func (s *QueryService) findArticles(ctx context.Context, op string, f store.ArticleFilter) ([]models.Article, error) {
	start := time.Now()
	articles, err := s.store.FindArticles(ctx, f)
	observability.RecordDatastoreOperation(op, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return articles, nil
}

func (s *QueryService) findReadings(ctx context.Context, op string, f store.ReadingFilter) ([]models.SensorReading, error) {
	start := time.Now()
	readings, err := s.store.FindReadings(ctx, f)
	observability.RecordDatastoreOperation(op, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return readings, nil
}

func seriesTarget(name string, f Filter) string {
	return fmt.Sprintf("%s (P:%s / S:%s)", name, orAll(f.PrimaryLabel), orAll(f.SecondaryLabel))
}

func orAll(s string) string {
	if s == "" {
		return "All"
	}
	return s
}

func one(s models.Series) []models.Series {
	return []models.Series{s}
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
