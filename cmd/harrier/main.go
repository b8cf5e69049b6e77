// Harrier - Graph-based credit and fraud risk scoring.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/harrier/internal/anomaly"
	"github.com/opensource-finance/harrier/internal/api"
	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/community"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/feature"
	"github.com/opensource-finance/harrier/internal/graph"
	"github.com/opensource-finance/harrier/internal/monitor"
	"github.com/opensource-finance/harrier/internal/prune"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/scorecard"
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
	if os.Getenv("HARRIER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting harrier",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("HARRIER_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Graph Store, optionally seeded from a snapshot file
	store := graph.NewStore()
	if seedPath := os.Getenv("HARRIER_GRAPH_SEED"); seedPath != "" {
		if err := loadGraphSeed(store, seedPath); err != nil {
			slog.Error("failed to load graph seed", "path", seedPath, "error", err)
			os.Exit(1)
		}
	}

	// Initialize detection pipeline: prune then detect
	pruner := prune.NewPruner(cfg.Pruning.SignificanceThreshold)
	detector := community.NewDetector(cfg.Detection.MaxIterations, cfg.Detection.MinModularityGain)

	// Run an initial detection pass so scoring has communities from boot
	if err := refreshCommunities(ctx, store, pruner, detector); err != nil {
		slog.Warn("initial community detection failed", "error", err)
	}

	// Periodic refresh keeps communities current as the graph evolves
	if cfg.Detection.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.Detection.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := refreshCommunities(ctx, store, pruner, detector); err != nil {
						slog.Error("community refresh failed", "error", err)
					}
				}
			}
		}()
	}

	// Initialize Feature Extractor
	extractor := feature.NewExtractor(store, cacheImpl)

	// Initialize Scorecard Service (loads any persisted model)
	scorecardSvc, err := scorecard.NewService(ctx, extractor, repo, cfg.Training)
	if err != nil {
		slog.Error("failed to initialize scorecard", "error", err)
		os.Exit(1)
	}
	slog.Info("scorecard initialized", "trained", scorecardSvc.Current().Trained())

	// Initialize Decision Engine with the scorecard as credit sub-model
	engine := decision.NewEngine(extractor, &decision.ScorecardCreditModel{Scorecard: scorecardSvc})

	// Initialize anomaly predicate: CEL expression when configured,
	// count threshold otherwise
	var predicate anomaly.Predicate
	if cfg.Monitor.AnomalyExpression != "" {
		predicate, err = anomaly.NewCELPredicate(cfg.Monitor.AnomalyExpression)
		if err != nil {
			slog.Error("invalid anomaly expression", "error", err)
			os.Exit(1)
		}
		slog.Info("anomaly predicate compiled", "expression", cfg.Monitor.AnomalyExpression)
	}

	// Initialize Risk Monitor
	mon := monitor.New(cfg.Monitor, store, repo, busImpl, predicate)
	if err := mon.Start(ctx); err != nil {
		slog.Error("failed to start risk monitor", "error", err)
		os.Exit(1)
	}

	// Activity ingest: record transaction history for activity features
	ingestSub, err := busImpl.Subscribe(ctx, domain.TopicTransaction, func(ctx context.Context, msg *domain.Message) error {
		var tx domain.Transaction
		if err := json.Unmarshal(msg.Payload, &tx); err != nil {
			return nil // monitor counts malformed events
		}
		if !tx.Valid() {
			return nil
		}
		store.RecordActivity(tx.CustomerID, tx.Timestamp)
		if err := repo.SaveTransaction(ctx, &tx); err != nil {
			slog.Error("failed to persist transaction", "customer_id", tx.CustomerID, "error", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("failed to start activity ingest", "error", err)
		os.Exit(1)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, store, engine, scorecardSvc, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("harrier is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if err := ingestSub.Unsubscribe(); err != nil {
		slog.Error("failed to stop activity ingest", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Stop monitor first so in-flight windows flush to the repository
	if err := mon.Stop(shutdownCtx); err != nil {
		slog.Error("failed to stop risk monitor", "error", err)
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("harrier shutdown complete")
}

// refreshCommunities runs one pruning plus detection pass over the live
// graph and publishes the assignment back to the store.
func refreshCommunities(ctx context.Context, store *graph.Store, pruner *prune.Pruner, detector *community.Detector) error {
	snapshot := store.Snapshot()
	if snapshot.NodeCount() == 0 {
		return nil
	}

	start := time.Now()

	pruned, err := pruner.Prune(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("prune graph: %w", err)
	}

	result, err := detector.Detect(ctx, pruned)
	if err != nil {
		return fmt.Errorf("detect communities: %w", err)
	}

	if err := store.SetCommunities(ctx, result.Assignment); err != nil {
		return fmt.Errorf("apply assignment: %w", err)
	}

	slog.Info("communities refreshed",
		"nodes", snapshot.NodeCount(),
		"edges_before", snapshot.EdgeCount(),
		"edges_after", pruned.EdgeCount(),
		"modularity", result.Modularity,
		"iterations", result.Iterations,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// graphSeed is the on-disk snapshot format loaded at startup.
type graphSeed struct {
	Nodes []*domain.Node `json:"nodes"`
	Edges []*domain.Edge `json:"edges"`
}

// loadGraphSeed bootstraps the in-memory graph from a JSON snapshot.
func loadGraphSeed(store *graph.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var seed graphSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse graph seed: %w", err)
	}

	for _, node := range seed.Nodes {
		store.UpsertNode(node)
	}
	for _, edge := range seed.Edges {
		store.UpsertEdge(edge)
	}

	slog.Info("graph seed loaded",
		"path", path,
		"nodes", len(seed.Nodes),
		"edges", len(seed.Edges),
	)
	return nil
}

// applyEnvOverrides lets single settings be overridden without a full
// config file.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("HARRIER_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("HARRIER_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("HARRIER_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("HARRIER_ANOMALY_EXPRESSION"); v != "" {
		cfg.Monitor.AnomalyExpression = v
	}
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               HARRIER                     ║")
	fmt.Println("  ║     Graph Risk Scoring Engine             ║")
	fmt.Println("  ║     Hunting risk across the network.      ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /score                   - Score a loan application")
	fmt.Println("    POST /score/batch             - Score a batch of applications")
	fmt.Println("    POST /train                   - Train the scorecard model")
	fmt.Println("    GET  /model/parameters        - Current model weights and metrics")
	fmt.Println("    GET  /model/importance        - Feature importance")
	fmt.Println("    GET  /customers/{id}/network  - Customer community network")
	fmt.Println("    GET  /alerts                  - Recent anomaly alerts")
	fmt.Println("    GET  /reports                 - Community risk reports")
	fmt.Println("    GET  /health                  - Health check")
	fmt.Println()
}
