package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/sensor-event-correlator/internal/bootstrap"
	"github.com/kjstillabower/sensor-event-correlator/internal/config"
	httphandler "github.com/kjstillabower/sensor-event-correlator/internal/http"
	"github.com/kjstillabower/sensor-event-correlator/internal/lifecycle"
	"github.com/kjstillabower/sensor-event-correlator/internal/observability"
	"github.com/kjstillabower/sensor-event-correlator/internal/registry"
	"github.com/kjstillabower/sensor-event-correlator/internal/service"
)

func main() {
	logger, err := observability.NewLogger("api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		logger.Fatal("registry", zap.Error(err))
	}

	openCtx, openCancel := context.WithTimeout(context.Background(), 30*time.Second)
	st, err := bootstrap.OpenStore(openCtx, cfg, logger)
	openCancel()
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}

	queries := service.NewQueryService(st, reg, nil)

	healthConfig := &httphandler.HealthConfig{
		TrafficWindow:    cfg.TrafficWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		DegradedMinTotal: cfg.DegradedMinTotal,
		StorePing:        st.Ping,
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(queries, healthConfig, logger, cfg.MaxNameLength)
	router := httphandler.NewRouter(handler, logger, limiter, cfg.RequestTimeout)

	observability.RegisterRateLimitGauges(cfg.TrafficWindow)

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort), zap.Int("sensors", len(reg.Sensors())))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()
	lifecycle.SetPhase(lifecycle.Serving)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := st.Close(closeCtx); err != nil {
		logger.Error("store close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
