// Package main is the entrypoint for the site report API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitereport/sitereport/internal/app"
	"github.com/sitereport/sitereport/internal/config"
	"github.com/sitereport/sitereport/internal/handler"
	"github.com/sitereport/sitereport/internal/metrics"
	"github.com/sitereport/sitereport/internal/middleware"
	"github.com/sitereport/sitereport/internal/scheduler"
	"github.com/sitereport/sitereport/internal/server"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := app.NewLogger(cfg)

	// Initialize tracing
	tp, err := app.NewTracerProvider(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	// Initialize metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(registry)

	// Initialize dependencies and the generator
	a, err := app.New(ctx, cfg, logger, recorder)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	// Setup router
	r := setupRouter(a, cfg, registry, tp, logger)

	// Create server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)
	// Shutdown hooks run last registered first.
	srv.OnShutdown("dependencies", func(ctx context.Context) error { return a.Close() })
	srv.OnShutdown("tracer", tp.Shutdown)

	if cfg.SchedulerEnabled {
		var locker scheduler.Locker
		if a.Cache != nil {
			locker = scheduler.NewRedisLocker(a.Cache)
		} else {
			logger.Warn("scheduler running without Redis: duplicate runs across replicas are possible")
		}
		sched := scheduler.New(a.Generator, locker, cfg.ScheduleDay, cfg.ScheduleHour, logger)
		go func() {
			if err := sched.Run(ctx); err != nil {
				logger.Error("scheduler stopped", "error", err)
			}
		}()
		srv.OnShutdown("scheduler", sched.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"blob_backend", cfg.BlobBackend,
		"scheduler", cfg.SchedulerEnabled,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	a *app.App,
	cfg *config.Config,
	gatherer prometheus.Gatherer,
	tp trace.TracerProvider,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	h := handler.New()
	reportHandler := handler.NewReportHandler(a.Generator, logger)

	var db, redisCheck handler.HealthChecker
	var limiter middleware.TriggerLimiter
	if a.Repo != nil {
		db = a.Repo
	}
	if a.Cache != nil {
		redisCheck = a.Cache
		limiter = a.Cache
	}
	healthHandler := handler.NewHealthHandler(db, redisCheck)
	if a.Converter != nil {
		healthHandler.WithConverter(a.Converter)
	}

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(tp))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(middleware.Security(cfg.IsDevelopment()))
	r.Use(middleware.MaxBodySize(middleware.DefaultMaxBodySize))

	// Probes and metrics
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	r.Method("GET", "/metrics", handler.NewMetricsHandler(gatherer))

	// Root info endpoint
	r.Get("/", h.Index)

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  logger,
		Limiter: limiter,
		PerHour: cfg.TriggerRatePerHour,
		Burst:   cfg.TriggerBurst,
	}

	r.Route("/api/v1/clients", func(r chi.Router) {
		r.Get("/", reportHandler.ListClients)
		r.Route("/{clientID}/reports", func(r chi.Router) {
			r.Get("/", reportHandler.List)
			r.With(middleware.RateLimitTriggers(rateLimitCfg)).Post("/", reportHandler.Generate)
			r.Get("/{month}", reportHandler.Get)
		})
		r.Get("/{clientID}/runs", reportHandler.ListRuns)
	})
	r.Get("/api/v1/runs/{runID}", reportHandler.GetRun)

	// 404 and 405 handlers
	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}
