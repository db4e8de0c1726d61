// Kestrel - Fraud risk scoring for vehicle insurance claims.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/fallback"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/model"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scorecard"
	"github.com/opensource-finance/kestrel/internal/scoring"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
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
	if path := os.Getenv("KESTREL_MODELS_PATH"); path != "" {
		cfg.Models.Path = path
	}
	if port := os.Getenv("KESTREL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"models_path", cfg.Models.Path,
	)

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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

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

	// Choose the scoring path once at startup: trained artifacts when they
	// load cleanly, the deterministic rule engine otherwise. The service
	// never refuses to start because models are missing.
	scorer := buildScorer(cfg)

	// Initialize business metrics
	agg := metrics.NewAggregator(cfg.Scoring.SegmentValueEstimates)

	// Initialize alert worker
	alertWorker := worker.NewAlertWorker(busImpl, repo)
	if err := alertWorker.Start(); err != nil {
		slog.Error("failed to start alert worker", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, scorer, repo, cacheImpl, busImpl, agg, cfg.Scoring.ResultCacheTTL, Version)

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
		"model_mode", scorer.Mode(),
	)

	printBanner(cfg, scorer, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop alert worker first
	if err := alertWorker.Stop(); err != nil {
		slog.Error("failed to stop alert worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// buildScorer loads the trained artifacts and wires the ML pipeline, falling
// back to the business rule engine when artifacts are missing or invalid.
func buildScorer(cfg *domain.Config) scoring.Scorer {
	artifacts, err := model.LoadArtifacts(cfg.Models.Path)
	if err == nil {
		blend := model.WeightedAverage(cfg.Scoring.BlendLogisticWeight)
		ml, mlErr := scoring.NewMLScorer(artifacts, blend)
		if mlErr == nil {
			slog.Info("ML scoring engine active",
				"model_version", artifacts.Metadata.Version,
				"features", len(artifacts.Metadata.FeatureNames),
			)
			return ml
		}
		err = mlErr
	}

	slog.Warn("trained models unavailable, running in fallback mode",
		"models_path", cfg.Models.Path,
		"error", err,
	)

	engine, engineErr := fallback.NewEngine(fallback.DefaultRules(), slog.Default())
	if engineErr != nil {
		slog.Error("failed to build fallback rule engine", "error", engineErr)
		os.Exit(1)
	}
	segmenter, segErr := scorecard.NewSegmenter(scorecard.DefaultBands())
	if segErr != nil {
		slog.Error("failed to build segmenter", "error", segErr)
		os.Exit(1)
	}

	return scoring.NewFallbackScorer(engine, segmenter)
}

func printBanner(cfg *domain.Config, scorer scoring.Scorer, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║      Fraud Risk Scoring Engine            ║")
	fmt.Println("  ║     Every claim, scored in real time.     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Mode:     %s\n", scorer.Mode())
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict                - Score a single claim")
	fmt.Println("    POST /predict/batch          - Score a batch of claims")
	fmt.Println("    GET  /scores/{id}            - Get a persisted score record")
	fmt.Println("    GET  /business/metrics       - Executive KPI snapshot")
	fmt.Println("    GET  /business/risk-segments - Risk segment distribution")
	fmt.Println("    GET  /business/roi-analysis  - Savings vs investigation cost")
	fmt.Println("    GET  /model/info             - Active model metadata")
	fmt.Println("    GET  /model/features         - Feature schema and interpretations")
	fmt.Println("    GET  /health                 - Health check")
	fmt.Println()
}
