// Command bot runs the Telegram music search bot.
//
// It long-polls Telegram, answers inline queries and private messages
// through the shared search service, and delivers audio into chats. A small
// HTTP server exposes health probes and Prometheus metrics.
//
// Usage:
//
//	go run ./cmd/bot [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/bot"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/bot/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/postgres"
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

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "bot")
	if cfg.Telegram.Token == "" {
		slog.Error("telegram token is not configured (TB_TELEGRAM_TOKEN)")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := storage.New(db)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}
	checker.Register("postgres", db.Health)

	var (
		queryCache *cache.QueryCache
		catalog    bot.Catalog
		limiter    ratelimit.Limiter
	)
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, using in-process cache and rate limiter", "error", err)
		local := ratelimit.NewLocal(cfg.Telegram.RateLimit, cfg.Telegram.RateWindow)
		go local.Run(ctx, cfg.Telegram.RateWindow)
		limiter = local
		checker.Register("redis", health.StaticCheck(health.StatusDegraded, "unreachable at startup, using in-process fallback"))
	} else {
		defer redisClient.Close()
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		catalog = bot.NewRedisCatalog(redisClient, cfg.Redis.CacheTTL)
		limiter = ratelimit.NewRedis(redisClient, cfg.Telegram.RateLimit, cfg.Telegram.RateWindow)
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

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		slog.Error("failed to authorize bot", "error", err)
		os.Exit(1)
	}
	slog.Info("bot authorized", "username", api.Self.UserName)

	opts := bot.Options{
		Username:  api.Self.UserName,
		Catalog:   catalog,
		Limiter:   limiter,
		Collector: collector,
		Metrics:   m,
		Tracer:    tracing.NewTracer(cfg.Tracing),
	}
	if queryCache != nil {
		opts.CacheStats = queryCache
	}
	b := bot.New(api, cfg.Telegram, service, store, opts)

	ops := metrics.NewOpsServer(metrics.ServerConfig{
		Port:         cfg.Metrics.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Probes:       checker,
	})
	ops.Start()

	if err := b.Run(ctx); err != nil {
		slog.Error("bot stopped with error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		slog.Error("ops server shutdown error", "error", err)
	}
	slog.Info("bot stopped")
}
