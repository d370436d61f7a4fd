package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
)

// legacyAverageYears are the years with a dedicated /api/average_<year> route.
var legacyAverageYears = []int{2024, 2025}

// NewRouter mounts the dashboard API, health and metrics routes. The /api
// subrouter is rate limited, bounded by requestTimeout and CORS enabled.
func NewRouter(h *Handler, logger *zap.Logger, limiter *rate.Limiter, requestTimeout time.Duration) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(CORSMiddleware)
	api.Use(RateLimitMiddleware(limiter))
	api.Use(TimeoutMiddleware(requestTimeout))
	api.HandleFunc("/filtered_readings", h.GetSensorSeries).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/sensor_article_urls", h.GetSensorArticles).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/area_filtered_readings", h.GetAreaSeries).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/area_article_urls", h.GetAreaArticles).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/average/{year}", h.GetYearlyAverage).Methods(http.MethodGet, http.MethodOptions)
	for _, year := range legacyAverageYears {
		api.HandleFunc(fmtLegacyAverage(year), h.FixedYearAverage(year)).Methods(http.MethodGet, http.MethodOptions)
	}
	api.HandleFunc("/primary_tag_piechart", h.GetTagDistribution).Methods(http.MethodGet, http.MethodOptions)
	return router
}

func fmtLegacyAverage(year int) string {
	return "/average_" + strconv.Itoa(year)
}
