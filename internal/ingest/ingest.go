// Package ingest loads sensor reading exports from a staging directory into
// the store, one document per sensor and day.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/temporal"
)

const (
	dayLayout = "2006-01-02"
	// channelSuffix marks the second channel column; stripping it from the
	// last header yields the sensor name.
	channelSuffix = " B"
	bom           = "\ufeff"
)

var (
	// ErrMalformedExport is returned for files that are not a sensor export.
	ErrMalformedExport = errors.New("malformed sensor export")
	// ErrUnknownSensor is returned when the export names an unregistered sensor.
	ErrUnknownSensor = errors.New("unknown sensor")
)

// ReadingSink persists reading documents.
type ReadingSink interface {
	InsertReading(ctx context.Context, r models.SensorReading) error
}

// Row is one parsed export line.
type Row struct {
	Day   string
	Time  string
	Value float64
}

// Export is a parsed sensor export file.
type Export struct {
	SensorName string
	Rows       []Row
}

// Parse reads a CSV export. The first column is "YYYY-MM-DD HH:MM:SS"; the
// value of a row is the mean of its last two columns, skipping blank or
// non-numeric cells, and NaN when neither parses.
func Parse(r io.Reader) (Export, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return Export{}, fmt.Errorf("%w: read header: %v", ErrMalformedExport, err)
	}
	if len(header) < 3 {
		return Export{}, fmt.Errorf("%w: expected at least 3 columns, got %d", ErrMalformedExport, len(header))
	}
	header[0] = strings.TrimPrefix(header[0], bom)
	exp := Export{SensorName: strings.TrimSpace(strings.ReplaceAll(header[len(header)-1], channelSuffix, ""))}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Export{}, fmt.Errorf("%w: %v", ErrMalformedExport, err)
		}
		if len(rec) < 3 {
			continue
		}
		day, clock, ok := strings.Cut(strings.TrimSpace(rec[0]), " ")
		if !ok {
			continue
		}
		exp.Rows = append(exp.Rows, Row{
			Day:   day,
			Time:  strings.TrimSpace(clock),
			Value: meanOf(rec[len(rec)-2:]),
		})
	}
	return exp, nil
}

func meanOf(cells []string) float64 {
	var sum float64
	var n int
	for _, c := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Stats summarizes an ingest run.
type Stats struct {
	Files        int
	SkippedFiles int
	Stored       int
	Failed       int
}

// Ingester moves exports from a staging directory into the store.
type Ingester struct {
	sink     ReadingSink
	registry *registry.Registry
	dir      string
	logger   *zap.Logger
}

// New creates an Ingester reading from dir.
func New(sink ReadingSink, reg *registry.Registry, dir string, logger *zap.Logger) *Ingester {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingester{sink: sink, registry: reg, dir: dir, logger: logger}
}

type docKey struct {
	sensorID string
	day      string
}

// Run ingests the rows of every staged file that fall on one of days, then
// clears the staging directory. Documents sharing a sensor and day are
// merged so each is inserted once.
func (in *Ingester) Run(ctx context.Context, days []time.Time) (Stats, error) {
	var stats Stats
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return stats, fmt.Errorf("read staging dir: %w", err)
	}

	wanted := make(map[string]struct{}, len(days))
	for _, d := range days {
		wanted[temporal.Midnight(d).Format(dayLayout)] = struct{}{}
	}

	docs := make(map[docKey]*models.SensorReading)
	var order []docKey
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stats.Files++
		path := filepath.Join(in.dir, e.Name())
		exp, id, err := in.load(path)
		if err != nil {
			stats.SkippedFiles++
			in.logger.Error("skipping staged file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}
		for _, row := range exp.Rows {
			if _, ok := wanted[row.Day]; !ok {
				continue
			}
			key := docKey{sensorID: id, day: row.Day}
			doc, ok := docs[key]
			if !ok {
				date, err := time.Parse(dayLayout, row.Day)
				if err != nil {
					in.logger.Warn("invalid row date", zap.String("file", e.Name()), zap.String("date", row.Day))
					continue
				}
				doc = &models.SensorReading{
					SensorID:   id,
					SensorName: exp.SensorName,
					Date:       date,
					Readings:   make(map[string]float64),
				}
				docs[key] = doc
				order = append(order, key)
			}
			doc.Readings[row.Time] = row.Value
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].day != order[j].day {
			return order[i].day < order[j].day
		}
		return order[i].sensorID < order[j].sensorID
	})
	for _, key := range order {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := in.sink.InsertReading(ctx, *docs[key]); err != nil {
			stats.Failed++
			observability.IngestReadingsTotal.WithLabelValues("failed").Inc()
			in.logger.Error("failed to insert readings",
				zap.String("sensor_id", key.sensorID),
				zap.String("date", key.day),
				zap.Error(err),
			)
			continue
		}
		stats.Stored++
		observability.IngestReadingsTotal.WithLabelValues("stored").Inc()
	}
	in.logger.Info("readings ingested",
		zap.Int("files", stats.Files),
		zap.Int("skipped_files", stats.SkippedFiles),
		zap.Int("stored", stats.Stored),
		zap.Int("failed", stats.Failed),
	)

	in.clear(entries)
	return stats, nil
}

func (in *Ingester) load(path string) (Export, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return Export{}, "", err
	}
	defer f.Close()

	exp, err := Parse(f)
	if err != nil {
		return Export{}, "", err
	}
	id, ok := in.registry.IDByName(exp.SensorName)
	if !ok {
		return Export{}, "", fmt.Errorf("%w: %q", ErrUnknownSensor, exp.SensorName)
	}
	return exp, id, nil
}

func (in *Ingester) clear(entries []os.DirEntry) {
	for _, e := range entries {
		path := filepath.Join(in.dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			in.logger.Error("failed to delete staged file", zap.String("path", path), zap.Error(err))
		}
	}
}
