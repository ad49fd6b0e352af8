// Package main is the entry point for the lead queue worker.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkpellow/scrapeshifter/internal/blueprint"
	"github.com/linkpellow/scrapeshifter/internal/chimera"
	"github.com/linkpellow/scrapeshifter/internal/config"
	"github.com/linkpellow/scrapeshifter/internal/consensus"
	"github.com/linkpellow/scrapeshifter/internal/database"
	"github.com/linkpellow/scrapeshifter/internal/enrichment"
	"github.com/linkpellow/scrapeshifter/internal/pipeline"
	"github.com/linkpellow/scrapeshifter/internal/pipeline/stations"
	"github.com/linkpellow/scrapeshifter/internal/repository"
	"github.com/linkpellow/scrapeshifter/internal/router"
	"github.com/linkpellow/scrapeshifter/internal/worker"
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

	logger.Info("Starting enrichment worker",
		slog.String("queue", cfg.Worker.Queue),
		slog.String("pipeline", cfg.Pipeline.Name),
	)

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Migrations belong to the API server; the worker only checks the schema
	// is reachable.
	if err := db.Ping(context.Background()); err != nil {
		log.Fatalf("Database not reachable: %v", err)
	}

	// Connect to Redis
	redis, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

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
	// Stations manage their own deadlines; a per-station cap would cut off
	// DeepSearch mid-failover.
	engine := pipeline.NewEngine(route, cfg.Pipeline.BudgetLimit, logger)

	w := worker.New(redis, engine, cfg.Worker, logger)

	// Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Worker error: %v", err)
	}

	logger.Info("Worker stopped gracefully")
}
