package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/therapy-scheduler/cmd/mainconfig"
	"github.com/wolfman30/therapy-scheduler/internal/api/router"
	"github.com/wolfman30/therapy-scheduler/internal/app/bootstrap"
	appconfig "github.com/wolfman30/therapy-scheduler/internal/config"
	"github.com/wolfman30/therapy-scheduler/internal/events"
	"github.com/wolfman30/therapy-scheduler/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/therapy-scheduler/internal/http/middleware"
	"github.com/wolfman30/therapy-scheduler/internal/observability/metrics"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

func main() {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Info("starting therapy-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"timezone", cfg.ScheduleTimezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	delivererDone := make(chan struct{})
	go func() {
		defer close(delivererDone)
		a.deliverer.Start(ctx)
	}()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error("server error", "error", err)
		stop()
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	<-delivererDone

	// Flush what the last requests appended before the pool closes.
	if n := a.deliverer.Drain(shutdownCtx); n > 0 {
		logger.Info("flushed outbox on shutdown", "delivered", n)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler     http.Handler
	deliverer   *events.Deliverer
	storage     *bootstrap.Storage
	redis       *redis.Client
	rateLimiter *httpmiddleware.RateLimiter
}

func (a *app) Close() {
	if a.rateLimiter != nil {
		a.rateLimiter.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	a.storage.Close()
}

// newApp wires stores, services, handlers and the outbox deliverer.
func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	storage, err := bootstrap.BuildStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &app{storage: storage}

	a.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	var limiter handlers.AttemptLimiter
	if checker := bootstrap.BuildVelocityChecker(a.redis, cfg, logger); checker != nil {
		limiter = checker
		logger.Info("booking velocity limit enabled", "attempts_per_hour", cfg.BookingAttemptsPerHour)
	}

	metricsHandler, schedulingMetrics := setupMetrics()
	opts := scheduling.Options{
		Location:           loc,
		SlotMinutes:        cfg.SlotDurationMinutes,
		MaxDurationMinutes: cfg.MaxBookingDurationMinutes,
		Logger:             logger,
		Metrics:            schedulingMetrics,
	}

	deliveryHandler, err := setupDelivery(ctx, cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.deliverer = bootstrap.BuildDeliverer(storage, deliveryHandler, cfg, logger)

	checks := map[string]handlers.Pinger{}
	if storage.Pool != nil {
		checks["postgres"] = storage.Pool
	}
	if a.redis != nil {
		checks["redis"] = bootstrap.RedisPinger{Client: a.redis}
	}

	if cfg.RateLimitRPS > 0 {
		a.rateLimiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.AuthJWTSecret == "" {
		logger.Warn("AUTH_JWT_SECRET not set; API requests are unauthenticated")
	}

	a.handler = router.New(&router.Config{
		Logger: logger,
		Availability: handlers.NewAvailabilityHandler(
			scheduling.NewRuleService(storage.Store, opts),
			scheduling.NewDeriver(storage.Store, opts),
			logger,
		),
		Appointments:       handlers.NewAppointmentHandler(scheduling.NewReconciler(storage.Store, opts), limiter, schedulingMetrics, logger),
		Health:             handlers.NewHealthHandler(checks),
		MetricsHandler:     metricsHandler,
		RateLimiter:        a.rateLimiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AuthSecret:         cfg.AuthJWTSecret,
		EnableTestRoutes:   cfg.EnableTestRoutes,
		TestRoutesToken:    cfg.TestRoutesToken,
	})
	return a, nil
}

func setupMetrics() (http.Handler, *metrics.SchedulingMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewSchedulingMetrics(reg)
}

func setupDelivery(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (events.DeliveryHandler, error) {
	var sqsClient *sqs.Client
	if cfg.EventsQueueURL != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		sqsClient = sqs.NewFromConfig(awsCfg)
		logger.Info("publishing domain events to SQS", "queue_url", cfg.EventsQueueURL)
	}
	return bootstrap.BuildDeliveryHandler(cfg, sqsClient, logger)
}
