// Command searcher serves the music search engine over HTTP.
//
// It exposes the same ranked search the bot uses as JSON, for other
// front-ends and for load testing:
//
//	GET  /api/v1/search?q=&source=&limit=
//	GET  /api/v1/resolve?source=&id=
//	GET  /api/v1/cache/stats
//	POST /api/v1/cache/invalidate
//
// Usage:
//
//	go run ./cmd/searcher [-config configs/development.yaml]
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
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/bot/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "searcher")
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	var (
		queryCache *cache.QueryCache
		limiter    middleware.Limiter
	)
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		local := ratelimit.NewLocal(cfg.Server.RateLimit, cfg.Server.RateWindow)
		go local.Run(ctx, cfg.Server.RateWindow)
		limiter = local
		checker.Register("redis", health.StaticCheck(health.StatusDegraded, "unreachable at startup, using in-process fallback"))
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		limiter = ratelimit.NewRedis(redisClient, cfg.Server.RateLimit, cfg.Server.RateWindow)
		checker.Register("redis", redisClient.Health)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		collector = analytics.NewCollector(producer, cfg.Analytics, m)
		collector.Start(ctx)
		defer collector.Close()
		slog.Info("analytics collector started", "topic", cfg.Kafka.Topics.AnalyticsEvents)
	}

	providers := searcher.NewProviders(cfg.Providers, m)
	for _, p := range providers {
		checker.Register("provider_"+string(p.Source()), p.Health)
	}
	service := searcher.New(searcher.NewEngine(cfg, providers), queryCache, collector, m)
	h := handler.New(service, queryCache, cfg.Search.MaxResults)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("GET /api/v1/resolve", h.Resolve)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	chain := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recover,
		middleware.Logging,
		middleware.Metrics(m),
		middleware.Trace(tracing.NewTracer(cfg.Tracing)),
		middleware.CORS(corsConfig(cfg.Server.CORSOrigins)),
		middleware.RateLimit(limiter, m.RateLimitedTotal.Inc),
		middleware.Timeout(cfg.Server.WriteTimeout),
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

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func corsConfig(origins []string) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(origins) > 0 {
		c.AllowOrigins = origins
	}
	return c
}
