// Kestrel - Synthetic transaction datasets with a live fraud-scoring API.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/generator"
	"github.com/opensource-finance/kestrel/internal/predict"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/sink"
	"github.com/opensource-finance/kestrel/internal/velocity"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	generate := flag.Bool("generate", false, "generate a dataset and exit instead of serving")
	seed := flag.Uint64("seed", 0, "generation seed (0 = configured default)")
	rows := flag.Int("rows", 0, "number of transactions to generate (0 = configured default)")
	customers := flag.Int("customers", 0, "customer pool size (0 = configured default)")
	flag.Parse()

	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if *seed != 0 {
		cfg.Generator.Seed = *seed
	}
	if *rows > 0 {
		cfg.Generator.NumTransactions = *rows
	}
	if *customers > 0 {
		cfg.Generator.PoolSize = *customers
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"sink", cfg.Sink.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Initialize Sink
	dataSink, err := sink.New(cfg.Sink)
	if err != nil {
		slog.Error("failed to initialize sink", "error", err)
		os.Exit(1)
	}
	defer dataSink.Close()
	slog.Info("sink initialized", "driver", cfg.Sink.Driver)

	if *generate {
		runGenerate(cfg, dataSink)
		return
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Velocity Tracker
	tracker := velocity.NewTracker(cacheImpl)
	slog.Info("velocity tracker initialized")

	// Initialize Override Engine (empty; configure via POST /overrides)
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize override engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()
	slog.Info("override engine initialized", "rules_count", engine.RulesCount())

	// Initialize Decision Processor. The threshold comes from the latest
	// generation run when one exists.
	model := scoring.NewModel(cfg.Generator.CategoryWeights)
	processor := predict.NewProcessor(model, engine, 0)
	if info, err := dataSink.LatestRun(ctx); err == nil {
		processor.SetThreshold(info.Threshold)
		slog.Info("decision threshold loaded from latest run",
			"run_id", info.RunID,
			"threshold", info.Threshold,
		)
	} else {
		slog.Info("no prior runs; using default decision threshold",
			"threshold", processor.Threshold(),
		)
	}

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, cacheImpl, processor, tracker, cfg.Generator.CountryRisk)

		tenantIDs := []string{}
		if envTenants := os.Getenv("KESTREL_TENANTS"); envTenants != "" {
			tenantIDs = strings.Split(envTenants, ",")
		}

		if err := asyncWorker.Start(worker.Config{TenantIDs: tenantIDs}); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "tenant_count", len(tenantIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, cfg.Generator, dataSink, cacheImpl, busImpl, engine, processor, tracker, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// runGenerate executes a single dataset generation and writes it to the sink.
func runGenerate(cfg *domain.Config, dataSink domain.Sink) {
	gen, err := generator.New(cfg.Generator)
	if err != nil {
		slog.Error("invalid generation parameters", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	dataset, err := gen.Run(ctx)
	if err != nil {
		slog.Error("dataset generation failed", "error", err)
		os.Exit(1)
	}

	if err := dataSink.WriteDataset(ctx, dataset); err != nil {
		slog.Error("failed to write dataset", "run_id", dataset.RunID, "error", err)
		os.Exit(1)
	}

	info := dataset.Info()
	slog.Info("dataset written",
		"run_id", info.RunID,
		"rows", info.Rows,
		"seed", info.Seed,
		"threshold", info.Threshold,
		"fraud_rate", info.FraudRate,
		"sink", cfg.Sink.Driver,
	)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                  ║")
	fmt.Println("  ║    Synthetic Fraud Dataset Generator      ║")
	fmt.Println("  ║       Realistic data, on demand.          ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict           - Score a transaction")
	fmt.Println("    POST /predict_batch     - Score a batch of transactions")
	fmt.Println("    POST /generate          - Generate a labeled dataset")
	fmt.Println("    GET  /runs/latest       - Latest generation run")
	fmt.Println("    GET  /runs/{id}         - Generation run by ID")
	fmt.Println("    GET  /overrides         - List override rules")
	fmt.Println("    POST /overrides         - Create an override rule")
	fmt.Println("    PUT  /overrides/{id}    - Update an override rule")
	fmt.Println("    DELETE /overrides/{id}  - Delete an override rule")
	fmt.Println("    POST /overrides/reload  - Hot-reload override rules")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
