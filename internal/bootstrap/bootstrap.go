// Package bootstrap holds the wiring shared by the API server and the batch
// binaries: opening the store, building collaborator circuit breakers and
// running a job on a cron schedule.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/circuitbreaker"
	"github.com/kjstillabower/sensor-event-correlator/internal/client"
	"github.com/kjstillabower/sensor-event-correlator/internal/config"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/store"
	"github.com/kjstillabower/sensor-event-correlator/internal/temporal"
)

// OpenStore opens the configured backend. For mongo it also creates the
// indexes the queries rely on.
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "memory":
		logger.Warn("store backend: memory; data is lost on exit")
		return store.NewMemoryStore(), nil
	case "mongo", "":
		s, err := store.NewMongoStore(ctx, store.MongoConfig{
			URI:               cfg.MongoURI,
			Database:          cfg.DatabaseName,
			ArticleCollection: cfg.ArticleCollection,
			ReadingCollection: cfg.ReadingCollection,
			Timeout:           cfg.StoreTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, fmt.Errorf("ensure indexes: %w", err)
		}
		logger.Info("store backend: mongo",
			zap.String("database", cfg.DatabaseName),
			zap.String("articles", cfg.ArticleCollection),
			zap.String("readings", cfg.ReadingCollection),
		)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewBreaker returns a circuit breaker for component, or nil when breakers
// are disabled. State changes are exported as metrics and logged.
func NewBreaker(cfg *config.Config, component string, logger *zap.Logger) *circuitbreaker.CircuitBreaker {
	if !cfg.CircuitBreakerEnabled {
		return nil
	}
	cb := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		Component:        component,
		IsFailure:        client.IsBreakerFailure,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
			observability.SetCircuitBreakerStateGauge(component, observability.CircuitBreakerStateValue(int(to)))
			logger.Warn("circuit breaker state change",
				zap.String("component", component),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	observability.SetCircuitBreakerStateGauge(component, 0)
	return cb
}

// Yesterday returns the UTC midnight before the clock's current day.
func Yesterday(clock clockwork.Clock) time.Time {
	return temporal.Midnight(clock.Now().UTC()).AddDate(0, 0, -1)
}

// RunOnSchedule runs job on the cron spec until ctx is done. Runs never
// overlap; a tick that arrives while the previous run is busy is skipped.
func RunOnSchedule(ctx context.Context, spec string, logger *zap.Logger, job func(ctx context.Context)) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { job(ctx) }); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	logger.Info("scheduled", zap.String("schedule", spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}
