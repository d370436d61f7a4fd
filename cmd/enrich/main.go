// Command enrich collects local news articles for a date range, enriches
// them through the chat and geocoding collaborators and stores the ones that
// map to sensor-relevant events.
//
// Usage:
//
//	enrich [--schedule SPEC] [START END]
//
// START and END are DD-MM-YYYY and must be given together. Without them the
// previous day is processed.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/bootstrap"
	"github.com/kjstillabower/sensor-event-correlator/internal/cache"
	"github.com/kjstillabower/sensor-event-correlator/internal/client"
	"github.com/kjstillabower/sensor-event-correlator/internal/config"
	"github.com/kjstillabower/sensor-event-correlator/internal/enrich"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/validation"
)

var errUsage = errors.New("usage: enrich [--schedule SPEC] [START END] (dates as DD-MM-YYYY)")

func main() {
	schedule := flag.String("schedule", "", "cron spec; run the previous day on every tick instead of once")
	flag.Parse()

	logger, err := observability.NewLogger("enrich")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	clock := clockwork.NewRealClock()
	start, end, err := parseRange(flag.Args(), clock)
	if err != nil {
		logger.Error("arguments", zap.Error(err))
		os.Exit(2)
	}

	cfg, err := config.LoadBatch()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if err := cfg.RequireGoogleAPIKey(); err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	if *schedule == "" {
		*schedule = cfg.EnrichSchedule
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	job, cleanup, err := buildJob(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("setup", zap.Error(err))
	}
	defer cleanup()

	if *schedule != "" {
		err := bootstrap.RunOnSchedule(ctx, *schedule, logger, func(ctx context.Context) {
			day := bootstrap.Yesterday(clock)
			if _, err := job.Run(ctx, day, day); err != nil {
				logger.Error("scheduled enrichment failed", zap.Error(err))
			}
		})
		if err != nil {
			logger.Error("schedule", zap.Error(err))
			cleanup()
			os.Exit(1)
		}
		return
	}

	if _, err := job.Run(ctx, start, end); err != nil {
		if errors.Is(err, enrich.ErrNoArticles) {
			logger.Warn("no articles found for range")
		} else {
			logger.Error("enrichment failed", zap.Error(err))
		}
		cleanup()
		os.Exit(1)
	}
}

// parseRange reads the optional START END pair. With no arguments both ends
// are yesterday.
func parseRange(args []string, clock clockwork.Clock) (time.Time, time.Time, error) {
	switch len(args) {
	case 0:
		day := bootstrap.Yesterday(clock)
		return day, day, nil
	case 2:
		start, err := validation.ParseDay(args[0], validation.DayLayout)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
		}
		end, err := validation.ParseDay(args[1], validation.DayLayout)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
		}
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, errUsage
	}
}

// buildJob wires the collaborators. The returned cleanup flushes telemetry
// and closes the store and the geocode cache.
func buildJob(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*enrich.Job, func(), error) {
	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		return nil, nil, fmt.Errorf("registry: %w", err)
	}
	prompts, err := enrich.LoadPrompts(cfg.PromptsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("prompts: %w", err)
	}

	lister, err := client.NewListingCrawler(cfg.ListingBaseURL, cfg.HTTPTimeout, cfg.ListingMaxPages, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("listing crawler: %w", err)
	}
	lister.SetCircuitBreaker(bootstrap.NewBreaker(cfg, "listing", logger))
	extractor := client.NewArticleExtractor(cfg.HTTPTimeout)
	extractor.SetCircuitBreaker(bootstrap.NewBreaker(cfg, "article", logger))
	chat := client.NewChatClient(cfg.ChatURL, cfg.LLMTimeout)
	chat.SetCircuitBreaker(bootstrap.NewBreaker(cfg, "chat", logger))
	places := client.NewPlacesClient(cfg.PlacesURL, cfg.GoogleAPIKey, cfg.HTTPTimeout)
	places.SetCircuitBreaker(bootstrap.NewBreaker(cfg, "places", logger))
	geocoding := client.NewGeocodingClient(cfg.GeocodeURL, cfg.GoogleAPIKey, cfg.HTTPTimeout)
	geocoding.SetCircuitBreaker(bootstrap.NewBreaker(cfg, "geocode", logger))

	var geoCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			return nil, nil, fmt.Errorf("memcached cache: %w", err)
		}
		memcacheCloser = mc
		geoCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		geoCache = cache.NewInMemoryCache(0, nil)
		logger.Info("cache backend: in_memory")
	}
	geocoder := cache.NewCachedGeocoder(geocoding, geoCache, cfg.CacheTTL, logger)

	st, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		if memcacheCloser != nil {
			_ = memcacheCloser.Close()
		}
		return nil, nil, fmt.Errorf("store: %w", err)
	}

	job := enrich.NewJob(lister, extractor, chat, places, geocoder, st, reg, enrich.Options{
		DescriptionModel: cfg.DescriptionModel,
		TagModel:         cfg.TagModel,
		ThresholdKm:      cfg.ThresholdKm,
		Keywords:         cfg.Keywords,
		MaxRangeDays:     cfg.MaxRangeDays,
		Prompts:          prompts,
	}, logger)

	cleanup := func() {
		if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
			logger.Warn("telemetry flush", zap.Error(err))
		}
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			logger.Error("store close", zap.Error(err))
		}
		if memcacheCloser != nil {
			if err := memcacheCloser.Close(); err != nil {
				logger.Error("memcached close", zap.Error(err))
			}
		}
	}
	return job, cleanup, nil
}
