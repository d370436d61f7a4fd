// Command ingest loads staged sensor exports into the store.
//
// Usage:
//
//	ingest [--schedule SPEC] [--date YYYY-MM-DD ...]
//
// Without --date only rows from the previous day are kept.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/bootstrap"
	"github.com/kjstillabower/sensor-event-correlator/internal/config"
	"github.com/kjstillabower/sensor-event-correlator/internal/ingest"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/validation"
)

// dateList collects repeated --date flags.
type dateList []string

func (d *dateList) String() string { return strings.Join(*d, ",") }

func (d *dateList) Set(v string) error {
	*d = append(*d, v)
	return nil
}

func main() {
	var dates dateList
	flag.Var(&dates, "date", "day to ingest as YYYY-MM-DD; repeatable")
	schedule := flag.String("schedule", "", "cron spec; ingest the previous day on every tick instead of once")
	flag.Parse()

	logger, err := observability.NewLogger("ingest")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	clock := clockwork.NewRealClock()
	days, err := parseDays(dates, clock)
	if err != nil {
		logger.Error("arguments", zap.Error(err))
		os.Exit(2)
	}

	cfg, err := config.LoadBatch()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *schedule == "" {
		*schedule = cfg.IngestSchedule
	}
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Fatal("registry", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	finish := func() {
		if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
			logger.Warn("telemetry flush", zap.Error(err))
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}
	defer finish()

	ingester := ingest.New(st, reg, cfg.StagingDir, logger)

	if *schedule != "" {
		err := bootstrap.RunOnSchedule(ctx, *schedule, logger, func(ctx context.Context) {
			if _, err := ingester.Run(ctx, []time.Time{bootstrap.Yesterday(clock)}); err != nil {
				logger.Error("scheduled ingest failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Error("schedule", zap.Error(err))
			finish()
			os.Exit(1)
		}
		return
	}

	stats, err := ingester.Run(ctx, days)
	if err != nil {
		logger.Error("ingest failed", zap.Error(err))
		finish()
		os.Exit(1)
	}
	if stats.Failed > 0 {
		finish()
		os.Exit(1)
	}
}

// parseDays validates the --date values, defaulting to yesterday.
func parseDays(raw []string, clock clockwork.Clock) ([]time.Time, error) {
	if len(raw) == 0 {
		return []time.Time{bootstrap.Yesterday(clock)}, nil
	}
	days := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		d, err := validation.ParseDay(r, validation.ISODayLayout)
		if err != nil {
			return nil, fmt.Errorf("--date %q: %w", r, err)
		}
		days = append(days, d)
	}
	return days, nil
}
