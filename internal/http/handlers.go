package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/sensor-event-correlator/internal/lifecycle"
	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/service"
	"github.com/kjstillabower/sensor-event-correlator/internal/traffic"
	"github.com/kjstillabower/sensor-event-correlator/internal/validation"
)

// healthPingTimeout bounds the datastore check made by /health.
const healthPingTimeout = 2 * time.Second

// HealthConfig holds the thresholds and probes for the health handler.
type HealthConfig struct {
	TrafficWindow    time.Duration
	DegradedErrorPct int
	// DegradedMinTotal is the minimum number of requests in the window before
	// the error rate is considered.
	DegradedMinTotal int
	// StorePing, when set, is called to check datastore reachability.
	StorePing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	queries          *service.QueryService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	maxNameLength    int
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(queries *service.QueryService, healthConfig *HealthConfig, logger *zap.Logger, maxNameLength int) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		queries:       queries,
		healthConfig:  healthConfig,
		logger:        logger,
		maxNameLength: maxNameLength,
	}
}

// filterFromQuery reads the tag and time window parameters shared by the
// dashboard routes.
func filterFromQuery(r *http.Request) service.Filter {
	q := r.URL.Query()
	return service.Filter{
		PrimaryTags:    validation.ParseList(q.Get("primary_tag")),
		SecondaryTags:  validation.ParseList(q.Get("secondary_tag")),
		PrimaryLabel:   q.Get("primary_tag"),
		SecondaryLabel: q.Get("secondary_tag"),
		Window: models.Window{
			From: validation.ParseEpochMillis(q.Get("from")),
			To:   validation.ParseEpochMillis(q.Get("to")),
		},
	}
}

// sensorParam validates the required sensor name. It writes the error
// response and returns false when the name is unusable.
func (h *Handler) sensorParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	name, err := validation.ValidateName(r.URL.Query().Get("sensor"), h.maxNameLength)
	switch {
	case errors.Is(err, validation.ErrNameEmpty):
		writeError(w, r, http.StatusBadRequest, "MISSING_PARAMETER", "sensor is required")
		return "", false
	case err != nil:
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "sensor: "+err.Error())
		return "", false
	}
	return name, true
}

// areaParam returns the optional area name. Empty selects every sensor.
func (h *Handler) areaParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("area"))
	if raw == "" {
		return "", true
	}
	name, err := validation.ValidateName(raw, h.maxNameLength)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "area: "+err.Error())
		return "", false
	}
	return name, true
}

// GetSensorSeries handles GET /api/filtered_readings.
func (h *Handler) GetSensorSeries(w http.ResponseWriter, r *http.Request) {
	name, ok := h.sensorParam(w, r)
	if !ok {
		return
	}
	series, err := h.queries.SensorSeries(r.Context(), name, filterFromQuery(r))
	h.respond(w, r, series, err)
}

// GetSensorArticles handles GET /api/sensor_article_urls.
func (h *Handler) GetSensorArticles(w http.ResponseWriter, r *http.Request) {
	name, ok := h.sensorParam(w, r)
	if !ok {
		return
	}
	rows, err := h.queries.SensorArticles(r.Context(), name, filterFromQuery(r))
	if rows == nil {
		rows = []models.ArticleRow{}
	}
	h.respond(w, r, rows, err)
}

// GetAreaSeries handles GET /api/area_filtered_readings.
func (h *Handler) GetAreaSeries(w http.ResponseWriter, r *http.Request) {
	area, ok := h.areaParam(w, r)
	if !ok {
		return
	}
	series, err := h.queries.AreaSeries(r.Context(), area, filterFromQuery(r))
	h.respond(w, r, series, err)
}

// GetAreaArticles handles GET /api/area_article_urls.
func (h *Handler) GetAreaArticles(w http.ResponseWriter, r *http.Request) {
	area, ok := h.areaParam(w, r)
	if !ok {
		return
	}
	rows, err := h.queries.AreaArticles(r.Context(), area, filterFromQuery(r))
	if rows == nil {
		rows = []models.ArticleRow{}
	}
	h.respond(w, r, rows, err)
}

// GetYearlyAverage handles GET /api/average/{year}.
func (h *Handler) GetYearlyAverage(w http.ResponseWriter, r *http.Request) {
	year, err := validation.ParseYear(mux.Vars(r)["year"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_YEAR", "year must be a four-digit number")
		return
	}
	series, err := h.queries.YearlyAverage(r.Context(), year)
	h.respond(w, r, series, err)
}

// FixedYearAverage serves a legacy /api/average_<year> route.
func (h *Handler) FixedYearAverage(year int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		series, err := h.queries.YearlyAverage(r.Context(), year)
		h.respond(w, r, series, err)
	}
}

// GetTagDistribution handles GET /api/primary_tag_piechart.
func (h *Handler) GetTagDistribution(w http.ResponseWriter, r *http.Request) {
	shares, err := h.queries.TagDistribution(r.Context(), filterFromQuery(r).Window)
	if shares == nil {
		shares = []models.TagShare{}
	}
	h.respond(w, r, shares, err)
}

// respond writes v, or the error response for err, and records the outcome
// for the health error rate.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, v interface{}, err error) {
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	traffic.RecordSuccess()
	writeJSON(w, http.StatusOK, v)
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
	checks     map[string]string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := result.checks
	if checks == nil {
		checks = map[string]string{}
	}
	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "sensor-event-correlator",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: serving phase, datastore
// reachability, recent error rate. Checks are only reported once probed.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	switch lifecycle.CurrentPhase() {
	case lifecycle.Starting:
		return healthResult{status: lifecycle.Starting.String(), statusCode: http.StatusServiceUnavailable, reason: "starting"}
	case lifecycle.Draining:
		return healthResult{status: lifecycle.Draining.String(), statusCode: http.StatusServiceUnavailable, reason: "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{status: "ok", statusCode: http.StatusOK}
	}
	checks := make(map[string]string)
	if h.healthConfig.StorePing != nil {
		pingCtx, cancel := context.WithTimeout(ctx, healthPingTimeout)
		err := h.healthConfig.StorePing(pingCtx)
		cancel()
		if err != nil {
			h.logger.Warn("datastore ping failed", zap.Error(err))
			checks["datastore"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "datastore_unreachable", checks}
		}
		checks["datastore"] = "healthy"
	}
	if h.healthConfig.TrafficWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errs, total := traffic.ErrorRate(h.healthConfig.TrafficWindow)
		if total > 0 && total >= h.healthConfig.DegradedMinTotal {
			pct := float64(errs) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach", checks}
			}
		}
	}
	return healthResult{"ok", http.StatusOK, "", checks}
}

// writeJSON writes a JSON response with the specified HTTP status code.
// Sets Content-Type header to application/json and encodes the provided value.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeQueryError maps query failures to responses. Datastore failures are
// counted towards the health error rate; the underlying error is only logged.
func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, service.ErrMissingWindow) {
		writeError(w, r, http.StatusBadRequest, "MISSING_TIME_WINDOW", "from or to is required")
		return
	}
	traffic.RecordError()
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
		logger.Error("query failed", zap.Error(err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		return
	}
	writeError(w, r, http.StatusInternalServerError, "DATASTORE_ERROR", "Failed to fetch sensor data")
}
