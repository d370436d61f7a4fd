package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/sensor-event-correlator/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (dashboard refresh storms).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases on the series routes.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// Document store operations by query kind. Watch for: status=error (store down or slow).
	DatastoreOperationsTotal *prometheus.CounterVec

	// Document store latency per operation. Watch for: p95 growth as collections grow (missing index).
	DatastoreOperationDuration *prometheus.HistogramVec

	// Collaborator calls (listing, extraction, chat, places, geocode). Watch for: error ratio per collaborator.
	UpstreamCallsTotal *prometheus.CounterVec

	// Collaborator latency. The chat collaborator is expected to be slow; places and geocode should stay under 1s.
	UpstreamCallDuration *prometheus.HistogramVec

	// Cache hits by cache type. Hit rate = hits / (hits + upstreamCallsTotal{collaborator="geocode"}).
	CacheHitsTotal *prometheus.CounterVec

	// Circuit breaker state per collaborator: 0=closed, 1=open, 2=half_open.
	CircuitBreakerState *prometheus.GaugeVec

	// Circuit breaker transitions. Watch for: flapping between open and half_open.
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Enrichment outcomes per article (stored, dropped, skipped, failed).
	EnrichArticlesTotal *prometheus.CounterVec

	// Ingested sensor reading documents (stored, skipped, failed).
	IngestReadingsTotal *prometheus.CounterVec

	// Rate limit denials. Watch for: overload, capacity exceeded.
	RateLimitDeniedTotal prometheus.Counter

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	DatastoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastoreOperationsTotal",
			Help: "Total number of document store operations",
		},
		[]string{"operation", "status"},
	)
	DatastoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastoreOperationDurationSeconds",
			Help:    "Document store latency in seconds (per operation)",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)
	UpstreamCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstreamCallsTotal",
			Help: "Total number of collaborator calls",
		},
		[]string{"collaborator", "status"},
	)
	UpstreamCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstreamCallDurationSeconds",
			Help:    "Collaborator latency in seconds (per call)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"collaborator", "status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half_open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	EnrichArticlesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrichArticlesTotal",
			Help: "Articles processed by the enrichment job, by outcome",
		},
		[]string{"outcome"},
	)
	IngestReadingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingestReadingsTotal",
			Help: "Sensor reading documents processed by the ingest job, by outcome",
		},
		[]string{"outcome"},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		DatastoreOperationsTotal, DatastoreOperationDuration,
		UpstreamCallsTotal, UpstreamCallDuration,
		CacheHitsTotal,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		EnrichArticlesTotal, IngestReadingsTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterRateLimitGauges registers load and rejects gauges for the rate-limited path.
// Call from main after config load with the traffic window used by health.
func RegisterRateLimitGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests hitting rate-limited path in sliding window; load/capacity planning",
				},
				func() float64 { return float64(traffic.RequestCount(window)) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in sliding window; are we rejecting requests",
				},
				func() float64 { return float64(traffic.DenialCount(window)) },
			),
		)
	})
}

// RecordDatastoreOperation records the outcome and latency of one store call.
// Context cancellation counts as "canceled" so client disconnects do not read as outages.
func RecordDatastoreOperation(operation string, d time.Duration, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
	}
	DatastoreOperationsTotal.WithLabelValues(operation, status).Inc()
	DatastoreOperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordUpstreamCall records a collaborator call. status is a short label such
// as "success", "not_found" or "upstream_error".
func RecordUpstreamCall(collaborator, status string, d time.Duration) {
	UpstreamCallsTotal.WithLabelValues(collaborator, status).Inc()
	UpstreamCallDuration.WithLabelValues(collaborator, status).Observe(d.Seconds())
}

// RecordCircuitBreakerTransition counts a state change for component.
func RecordCircuitBreakerTransition(component, from, to string) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
}

// SetCircuitBreakerStateGauge sets the current state value for component.
func SetCircuitBreakerStateGauge(component string, value float64) {
	CircuitBreakerState.WithLabelValues(component).Set(value)
}

// CircuitBreakerStateValue maps a circuitbreaker.State ordinal to the gauge value.
func CircuitBreakerStateValue(state int) float64 {
	switch state {
	case 1:
		return 1
	case 2:
		return 2
	default:
		return 0
	}
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
