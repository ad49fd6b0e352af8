// Package main is the entry point for the enrichment control plane API server.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linkpellow/scrapeshifter/internal/blueprint"
	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/config"
	"github.com/linkpellow/scrapeshifter/internal/consensus"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/handler"
	"github.com/linkpellow/scrapeshifter/internal/middleware"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/pipeline/stations"
	"github.com/linkpellow/scrapeshifter/internal/pkg/response"
	"github.com/linkpellow/scrapeshifter/internal/repository"
	"github.com/linkpellow/scrapeshifter/internal/router"
	"github.com/linkpellow/scrapeshifter/internal/runs"
	"github.com/linkpellow/scrapeshifter/internal/service"
)

func main() {
	// Setup structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Info("Starting enrichment control plane",
		slog.String("environment", cfg.Server.Environment),
		slog.Int("port", cfg.Server.Port),
	)

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	// Run migrations
	if err := db.RunMigrations(cfg.Database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	logger.Info("Database migrations completed")

	// Connect to Redis
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()
	logger.Info("Connected to Redis")

	// Wire the pipeline
	leadRepo := repository.NewLeadRepository(db.Pool())
	blueprintRepo := repository.NewBlueprintRepository(db.Pool())

	alerter := enrichment.NewWebhookAlerter(cfg.Alerts.WebhookURL, cfg.Alerts.Timeout, logger)
	poison := consensus.NewPoisonTracker(redis, alerter, logger)
	gps := router.New(redis, poison, logger)
	blueprints := blueprint.NewStore(redis, blueprintRepo, nil, "blueprints", logger)
	bridge := chimera.NewBridge(redis, cfg.Chimera.MissionQueue, cfg.Chimera.StationTimeout, logger)

	var hive *enrichment.HiveClient
	if cfg.Chimera.BrainURL != "" {
		hive = enrichment.NewHiveClient(cfg.Chimera.BrainURL, logger)
	}

	deps := stations.Deps{
		Redis:      redis,
		Bridge:     bridge,
		Router:     gps,
		Poison:     poison,
		Blueprints: blueprints,
		Hive:       hive,
		SkipTracer: enrichment.NewRapidSkipTracer(cfg.Sources.SkipTraceAPIKey, cfg.Sources.SkipTraceURL, logger),
		Validator:  enrichment.NewTelnyxClient(cfg.Sources.TelnyxAPIKey, cfg.Sources.TelnyxTimeout, logger),
		Census:     enrichment.NewCensusClient(cfg.Sources.CensusURL, logger),
		Saver:      leadRepo,
		Alerter:    alerter,
		Logger:     logger,
	}

	route, err := stations.BuildRoute(cfg.Pipeline.Name, deps)
	if err != nil {
		log.Fatalf("Failed to build pipeline route: %v", err)
	}
	// No per-station timeout: DeepSearch legitimately needs mission timeout
	// plus failover attempts (and pause waits) inside one invocation, so
	// stations manage their own deadlines.
	engine := pipeline.NewEngine(route, cfg.Pipeline.BudgetLimit, logger)

	registry := runs.NewRegistry(redis, logger)
	enrichmentService := service.NewEnrichmentService(redis, engine, bridge, registry, cfg.Worker, logger)
	blueprintService := service.NewBlueprintService(blueprints, blueprintRepo)

	// Setup router
	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())
	r.Use(middleware.Metrics())

	// Health check endpoints (no rate limit)
	health := handler.NewHealthHandler(db, redis)
	r.Get("/healthz", health.Live)
	r.Get("/readyz", health.Ready)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(redis, middleware.DefaultRateLimitConfig()))

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			response.OK(w, map[string]string{
				"name":    "ScrapeShifter Control Plane API",
				"version": "1.0.0",
			})
		})

		r.Mount("/enrichment", handler.NewEnrichmentHandler(enrichmentService).Routes())
		r.Mount("/blueprints", handler.NewBlueprintHandler(blueprintService).Routes())
		r.Mount("/system", handler.NewSystemHandler(enrichmentService).Routes())
	})

	// Create server. WriteTimeout must outlive a full streamed run, so the
	// stream route is bounded by the station timeout, not the default.
	writeTimeout := cfg.Server.WriteTimeout
	if minStream := 2*cfg.Chimera.StationTimeout + 30*time.Second; writeTimeout < minStream {
		writeTimeout = minStream
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  time.Minute,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("Shutting down server", slog.String("signal", sig.String()))

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	logger.Info("Server stopped gracefully")
}
