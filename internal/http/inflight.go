package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
)

// InFlightTracker counts requests being served and mirrors the count into
// an optional gauge. Shutdown waits on it after the listener stops.
type InFlightTracker struct {
	count atomic.Int64
	gauge prometheus.Gauge
}

// Begin marks a request as started. The returned func marks it done and
// must be called exactly once.
func (t *InFlightTracker) Begin() func() {
	t.count.Add(1)
	if t.gauge != nil {
		t.gauge.Inc()
	}
	return func() {
		t.count.Add(-1)
		if t.gauge != nil {
			t.gauge.Dec()
		}
	}
}

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 {
	return t.count.Load()
}

// WaitForZero polls every checkInterval until nothing is in flight or ctx
// is done.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for t.Count() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

var globalInFlightTracker = &InFlightTracker{gauge: observability.HTTPRequestsInFlight}

// InFlightCount returns the number of API requests being served.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
