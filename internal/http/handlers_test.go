package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/sensor-event-correlator/internal/lifecycle"
	"github.com/kjstillabower/sensor-event-correlator/internal/models"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/service"
	"github.com/kjstillabower/sensor-event-correlator/internal/store"
	"github.com/kjstillabower/sensor-event-correlator/internal/traffic"
)

var (
	testNow = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	june2   = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
)

type errorResponse struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

// blockingReader waits for the request context to end.
type blockingReader struct{}

func (blockingReader) FindArticles(ctx context.Context, _ store.ArticleFilter) ([]models.Article, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingReader) FindReadings(ctx context.Context, _ store.ReadingFilter) ([]models.SensorReading, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// lateStore holds each read until the request context ends, then asks the
// memory store, which reports the context error.
type lateStore struct {
	*store.MemoryStore
}

func (s lateStore) FindArticles(ctx context.Context, f store.ArticleFilter) ([]models.Article, error) {
	<-ctx.Done()
	return s.MemoryStore.FindArticles(ctx, f)
}

func (s lateStore) FindReadings(ctx context.Context, f store.ReadingFilter) ([]models.SensorReading, error) {
	<-ctx.Done()
	return s.MemoryStore.FindReadings(ctx, f)
}

// newTestStore returns a store with one Paralia reading on 2 June.
func newTestStore(t *testing.T) *store.MemoryStore {
	t.Helper()
	s := store.NewMemoryStore()
	err := s.InsertReading(context.Background(), models.SensorReading{
		SensorID:   "101609",
		SensorName: "Paralia",
		Date:       june2,
		Readings:   map[string]float64{"00:00:00": 10, "00:10:00": 20},
	})
	if err != nil {
		t.Fatalf("InsertReading() error = %v", err)
	}
	return s
}

func newTestHandler(t *testing.T, r store.Reader, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry.Default() error = %v", err)
	}
	lifecycle.SetPhase(lifecycle.Serving)
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	queries := service.NewQueryService(r, reg, clockwork.NewFakeClockAt(testNow))
	return NewHandler(queries, healthConfig, logger, 64)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func decodeSeries(t *testing.T, w *httptest.ResponseRecorder) []models.Series {
	t.Helper()
	var series []models.Series
	if err := json.NewDecoder(w.Body).Decode(&series); err != nil {
		t.Fatalf("decode series: %v", err)
	}
	return series
}

// TestHandler_GetSensorSeries_Success verifies that the daily mean of the
// sensor's readings is returned under the unfiltered target label.
func TestHandler_GetSensorSeries_Success(t *testing.T) {
	// Arrange: handler over one stored reading
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/filtered_readings?sensor=Paralia&primary_tag=all", nil)
	w := httptest.NewRecorder()

	// Act
	handler.GetSensorSeries(w, req)

	// Assert: 200 with one datapoint [15, ts]
	if w.Code != http.StatusOK {
		t.Fatalf("GetSensorSeries() status = %d, want %d", w.Code, http.StatusOK)
	}
	series := decodeSeries(t, w)
	if len(series) != 1 {
		t.Fatalf("len(series) = %d, want 1", len(series))
	}
	if want := "Paralia (P:all / S:All)"; series[0].Target != want {
		t.Errorf("target = %q, want %q", series[0].Target, want)
	}
	if len(series[0].Datapoints) != 1 {
		t.Fatalf("len(datapoints) = %d, want 1", len(series[0].Datapoints))
	}
	dp := series[0].Datapoints[0]
	if dp.Value != 15 || dp.Timestamp != june2.UnixMilli() {
		t.Errorf("datapoint = %+v, want [15, %d]", dp, june2.UnixMilli())
	}
}

// TestHandler_GetSensorSeries_MissingSensor verifies the 400 envelope,
// including the request's correlation ID.
func TestHandler_GetSensorSeries_MissingSensor(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/filtered_readings?sensor=%20", nil)
	req = req.WithContext(context.WithValue(req.Context(), "correlation_id", "corr-400"))
	w := httptest.NewRecorder()

	handler.GetSensorSeries(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != "MISSING_PARAMETER" {
		t.Errorf("error.code = %q, want MISSING_PARAMETER", resp.Error.Code)
	}
	if resp.Error.RequestID != "corr-400" {
		t.Errorf("error.requestId = %q, want corr-400", resp.Error.RequestID)
	}
}

// TestHandler_GetSensorSeries_InvalidSensor verifies that over-long names are
// rejected before the query runs.
func TestHandler_GetSensorSeries_InvalidSensor(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/filtered_readings?sensor="+strings.Repeat("x", 65), nil)
	w := httptest.NewRecorder()

	handler.GetSensorSeries(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if code := decodeError(t, w).Error.Code; code != "INVALID_PARAMETER" {
		t.Errorf("error.code = %q, want INVALID_PARAMETER", code)
	}
}

// TestHandler_GetSensorSeries_UnknownSensor verifies that an unknown sensor
// is a labelled empty result rather than an error.
func TestHandler_GetSensorSeries_UnknownSensor(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/filtered_readings?sensor=Nowhere", nil)
	w := httptest.NewRecorder()

	handler.GetSensorSeries(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	series := decodeSeries(t, w)
	if len(series) != 1 || series[0].Target != "Nowhere (Sensor ID not found)" {
		t.Errorf("series = %+v, want one 'Sensor ID not found' target", series)
	}
	if series[0].Datapoints == nil || len(series[0].Datapoints) != 0 {
		t.Errorf("datapoints = %v, want empty list", series[0].Datapoints)
	}
}

// TestHandler_GetSensorArticles_EmptyIsList verifies that no matches encode
// as [] rather than null.
func TestHandler_GetSensorArticles_EmptyIsList(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/sensor_article_urls?sensor=Paralia", nil)
	w := httptest.NewRecorder()

	handler.GetSensorArticles(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

// TestHandler_GetAreaArticles_Rows verifies the table row projection.
func TestHandler_GetAreaArticles_Rows(t *testing.T) {
	s := newTestStore(t)
	err := s.InsertArticle(context.Background(), models.Article{
		URL:          "https://news.example/a/1",
		Title:        "Πορεία",
		PubDatetime:  time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC),
		Sensors:      []string{"101609"},
		PrimaryTag:   models.PrimaryPublicEvents,
		SecondaryTag: "Πορεία",
		Dates:        []time.Time{june2},
	})
	if err != nil {
		t.Fatalf("InsertArticle() error = %v", err)
	}
	handler := newTestHandler(t, s, nil, zap.NewNop())
	req := httptest.NewRequest("GET", "/api/area_article_urls", nil)
	w := httptest.NewRecorder()

	handler.GetAreaArticles(w, req)

	var rows []models.ArticleRow
	if err := json.NewDecoder(w.Body).Decode(&rows); err != nil {
		t.Fatalf("decode rows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("len(rows) = %d, want 1", len(rows))
	}
	if rows[0].PubDatetime != "2025-06-02 09:30" {
		t.Errorf("pub_datetime = %q, want 2025-06-02 09:30", rows[0].PubDatetime)
	}
	if len(rows[0].Dates) != 1 || rows[0].Dates[0] != "2025-06-02" {
		t.Errorf("dates = %v, want [2025-06-02]", rows[0].Dates)
	}
}

// TestHandler_GetTagDistribution verifies the window requirement and the
// empty result.
func TestHandler_GetTagDistribution(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())

	t.Run("MissingWindow", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetTagDistribution(w, httptest.NewRequest("GET", "/api/primary_tag_piechart", nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
		if code := decodeError(t, w).Error.Code; code != "MISSING_TIME_WINDOW" {
			t.Errorf("error.code = %q, want MISSING_TIME_WINDOW", code)
		}
	})

	t.Run("NoMatches", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.GetTagDistribution(w, httptest.NewRequest("GET", "/api/primary_tag_piechart?from=1748736000000", nil))
		if w.Code != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
		}
		if body := strings.TrimSpace(w.Body.String()); body != "[]" {
			t.Errorf("body = %s, want []", body)
		}
	})
}

// TestHandler_DatastoreError verifies that store failures map to 500 and
// count towards the health error rate.
func TestHandler_DatastoreError(t *testing.T) {
	s := newTestStore(t)
	s.Err = errors.New("connection refused")
	handler := newTestHandler(t, s, nil, zap.NewNop())
	w := httptest.NewRecorder()

	handler.GetSensorSeries(w, httptest.NewRequest("GET", "/api/filtered_readings?sensor=Paralia", nil))

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != "DATASTORE_ERROR" || resp.Error.Message != "Failed to fetch sensor data" {
		t.Errorf("error = %+v, want DATASTORE_ERROR", resp.Error)
	}
	if errs, total := traffic.ErrorRate(time.Minute); errs != 1 || total != 1 {
		t.Errorf("ErrorRate() = %d/%d, want 1/1", errs, total)
	}
}

// TestRouter_YearlyAverage verifies the year path variable, its validation
// and the legacy fixed-year routes.
func TestRouter_YearlyAverage(t *testing.T) {
	handler := newTestHandler(t, newTestStore(t), nil, zap.NewNop())
	router := NewRouter(handler, zap.NewNop(), nil, time.Second)

	tests := []struct {
		path       string
		wantStatus int
		wantTarget string
	}{
		{"/api/average/2025", http.StatusOK, "Average 2025"},
		{"/api/average_2024", http.StatusOK, "Average 2024"},
		{"/api/average_2025", http.StatusOK, "Average 2025"},
		{"/api/average/25", http.StatusBadRequest, ""},
		{"/api/average/abcd", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", tt.path, nil))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				if code := decodeError(t, w).Error.Code; code != "INVALID_YEAR" {
					t.Errorf("error.code = %q, want INVALID_YEAR", code)
				}
				return
			}
			series := decodeSeries(t, w)
			if len(series) != 1 || series[0].Target != tt.wantTarget {
				t.Errorf("series = %+v, want target %q", series, tt.wantTarget)
			}
		})
	}
}

// TestRouter_RequestTimeout verifies that a store call outliving the request
// timeout ends with 504.
func TestRouter_RequestTimeout(t *testing.T) {
	handler := newTestHandler(t, blockingReader{}, nil, zap.NewNop())
	router := NewRouter(handler, zap.NewNop(), nil, 50*time.Millisecond)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/area_filtered_readings?primary_tag=x", nil))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d", w.Code, http.StatusGatewayTimeout)
	}
}

// TestRouter_RequestTimeout_ThroughStore verifies that a deadline hit inside
// the store is still reported as a timeout, not a datastore error.
func TestRouter_RequestTimeout_ThroughStore(t *testing.T) {
	handler := newTestHandler(t, lateStore{newTestStore(t)}, nil, zap.NewNop())
	router := NewRouter(handler, zap.NewNop(), nil, 50*time.Millisecond)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, httptest.NewRequest("GET", "/api/filtered_readings?sensor=Paralia", nil))

	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want %d; body = %s", w.Code, http.StatusGatewayTimeout, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "TIMEOUT") {
		t.Errorf("body = %s, want code TIMEOUT", w.Body.String())
	}
}

func getHealth(t *testing.T, handler *Handler) (int, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.GetHealth(w, httptest.NewRequest("GET", "/health", nil))
	var health map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	return w.Code, health
}

// TestHandler_GetHealth verifies the status for each serving phase and
// datastore state.
func TestHandler_GetHealth(t *testing.T) {
	pingErr := errors.New("server selection timeout")
	var currentErr error
	cfg := &HealthConfig{StorePing: func(ctx context.Context) error { return currentErr }}
	handler := newTestHandler(t, newTestStore(t), cfg, zap.NewNop())
	defer lifecycle.SetPhase(lifecycle.Serving)

	tests := []struct {
		name       string
		phase      lifecycle.Phase
		pingErr    error
		wantCode   int
		wantStatus string
		wantCheck  interface{}
	}{
		{"Healthy", lifecycle.Serving, nil, http.StatusOK, "ok", "healthy"},
		{"StoreDown", lifecycle.Serving, pingErr, http.StatusServiceUnavailable, "degraded", "unhealthy"},
		{"Starting", lifecycle.Starting, nil, http.StatusServiceUnavailable, "starting", nil},
		{"ShuttingDown", lifecycle.Draining, nil, http.StatusServiceUnavailable, "shutting-down", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lifecycle.SetPhase(tt.phase)
			currentErr = tt.pingErr

			code, health := getHealth(t, handler)

			if code != tt.wantCode {
				t.Errorf("GetHealth() status = %d, want %d", code, tt.wantCode)
			}
			if health["status"] != tt.wantStatus {
				t.Errorf("Health status = %q, want %q", health["status"], tt.wantStatus)
			}
			if health["service"] != "sensor-event-correlator" {
				t.Errorf("Health service = %q, want sensor-event-correlator", health["service"])
			}
			checks, ok := health["checks"].(map[string]interface{})
			if !ok {
				t.Fatal("Health checks missing")
			}
			if checks["datastore"] != tt.wantCheck {
				t.Errorf("datastore check = %v, want %v", checks["datastore"], tt.wantCheck)
			}
		})
	}
}

// TestHandler_GetHealth_ErrorRate verifies that the error rate degrades
// health only once enough requests were seen.
func TestHandler_GetHealth_ErrorRate(t *testing.T) {
	cfg := &HealthConfig{TrafficWindow: time.Minute, DegradedErrorPct: 50, DegradedMinTotal: 4}
	handler := newTestHandler(t, newTestStore(t), cfg, zap.NewNop())

	traffic.RecordError()
	traffic.RecordError()
	if _, health := getHealth(t, handler); health["status"] != "ok" {
		t.Errorf("status with 2 samples = %q, want ok", health["status"])
	}

	traffic.RecordSuccess()
	traffic.RecordError()
	code, health := getHealth(t, handler)
	if code != http.StatusServiceUnavailable || health["status"] != "degraded" {
		t.Errorf("GetHealth() = %d %q, want 503 degraded", code, health["status"])
	}

	for i := 0; i < 4; i++ {
		traffic.RecordSuccess()
	}
	if _, health := getHealth(t, handler); health["status"] != "ok" {
		t.Errorf("status at 3/8 errors = %q, want ok", health["status"])
	}
}

// TestHandler_GetHealth_LogsTransition verifies that a status change is
// logged once with the previous and current status.
func TestHandler_GetHealth_LogsTransition(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	var pingErr error
	cfg := &HealthConfig{StorePing: func(ctx context.Context) error { return pingErr }}
	handler := newTestHandler(t, newTestStore(t), cfg, zap.New(core))

	getHealth(t, handler)
	pingErr = errors.New("down")
	getHealth(t, handler)
	getHealth(t, handler)

	entries := recorded.FilterMessage("health status transition").All()
	if len(entries) != 1 {
		t.Fatalf("transition log entries = %d, want 1", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["previous_status"] != "ok" || fields["current_status"] != "degraded" {
		t.Errorf("transition fields = %v, want ok -> degraded", fields)
	}
}
