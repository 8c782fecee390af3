// Command analytics runs the search analytics service.
//
// It consumes search and delivery events from Kafka, aggregates them in
// memory (totals, cache hit rate, zero-result and top queries, latency
// percentiles, delivery outcomes), snapshots the aggregate to PostgreSQL and
// restores the latest snapshot on start. Stats are served at
// GET /api/v1/analytics.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/postgres"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "analytics")
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() { _ = shutdownMetrics(context.Background()) }()
	}

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := aggregator.NewStore(db, cfg.Analytics.SnapshotRetention)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create snapshot schema", "error", err)
		os.Exit(1)
	}

	agg := analytics.NewAggregator(cfg.Analytics.TopN)
	snapshot, err := store.LatestSnapshot(ctx)
	switch {
	case err != nil:
		slog.Warn("could not load latest snapshot, starting empty", "error", err)
	case snapshot != nil:
		agg.Restore(*snapshot)
		slog.Info("restored analytics snapshot", "captured_at", snapshot.CapturedAt, "total_searches", snapshot.TotalSearches)
	}
	go store.RunPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.Handle)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("analytics consumer error", "error", err)
		}
	}()
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	statsHandler := analytics.NewHandler(agg)

	checker := health.NewChecker()
	checker.Register("postgres", db.Health)
	checker.Register("kafka", consumer.Health)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", statsHandler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", store.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recover,
		middleware.Logging,
		middleware.Metrics(m),
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
