// Package bot adapts Telegram updates to the search service: inline
// queries, chosen inline results, callback buttons and private messages.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/bot/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/storage"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/tracing"
)

// API is the part of *tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Searcher interface {
	Search(ctx context.Context, req searcher.Request) (*searcher.Response, error)
	Resolve(ctx context.Context, key track.Key, locator string) (string, error)
}

type Store interface {
	AddUser(ctx context.Context, userID int64) error
	CountActive(ctx context.Context) (int, error)
	MarkInactive(ctx context.Context, userID int64) error
	CachedFile(ctx context.Context, key track.Key) (storage.CachedFile, error)
	SaveFile(ctx context.Context, f storage.CachedFile) error
}

// CacheStats reports query cache counters for /stats.
type CacheStats interface {
	Stats() (hits, misses int64)
}

// Options carries the optional collaborators. Zero values are replaced by
// in-process defaults.
type Options struct {
	Username      string
	Catalog       Catalog
	Limiter       ratelimit.Limiter
	Collector     *analytics.Collector
	Metrics       *metrics.Metrics
	Tracer        *tracing.Tracer
	CacheStats    CacheStats
	Workers       int
	UpdateTimeout time.Duration
}

type Bot struct {
	api        API
	cfg        config.TelegramConfig
	search     Searcher
	store      Store
	catalog    Catalog
	limiter    ratelimit.Limiter
	collector  *analytics.Collector
	metrics    *metrics.Metrics
	tracer     *tracing.Tracer
	cacheStats CacheStats
	username   string
	workers    int
	timeout    time.Duration
	logger     *slog.Logger
}

func New(api API, cfg config.TelegramConfig, s Searcher, store Store, opts Options) *Bot {
	if opts.Catalog == nil {
		opts.Catalog = NewMemoryCatalog(0)
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.NewLocal(cfg.RateLimit, cfg.RateWindow)
	}
	if opts.Workers <= 0 {
		opts.Workers = 16
	}
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = 30 * time.Second
	}
	if cfg.InlineLimit <= 0 {
		cfg.InlineLimit = 10
	}
	return &Bot{
		api:        api,
		cfg:        cfg,
		search:     s,
		store:      store,
		catalog:    opts.Catalog,
		limiter:    opts.Limiter,
		collector:  opts.Collector,
		metrics:    opts.Metrics,
		tracer:     opts.Tracer,
		cacheStats: opts.CacheStats,
		username:   opts.Username,
		workers:    opts.Workers,
		timeout:    opts.UpdateTimeout,
		logger:     slog.Default().With("component", "bot"),
	}
}

// Run long-polls Telegram until ctx is cancelled, handling up to Workers
// updates concurrently. In-flight updates finish before Run returns.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.PollTimeout
	u.AllowedUpdates = []string{"message", "inline_query", "chosen_inline_result", "callback_query"}
	updates := b.api.GetUpdatesChan(u)

	var g errgroup.Group
	g.SetLimit(b.workers)
	b.logger.Info("bot polling started", "username", b.username, "workers", b.workers)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			_ = g.Wait()
			b.logger.Info("bot polling stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				_ = g.Wait()
				return nil
			}
			g.Go(func() error {
				b.Handle(ctx, update)
				return nil
			})
		}
	}
}

// Handle processes one update. It never panics.
func (b *Bot) Handle(ctx context.Context, update tgbotapi.Update) {
	kind := updateKind(update)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	ctx, span := tracing.StartSpan(ctx, "bot."+kind, "")
	ctx = logger.WithRequestID(ctx, span.TraceID)
	ctx = logger.With(ctx, "update_id", update.UpdateID, "kind", kind)
	defer b.tracer.Finish(span)

	defer func() {
		if rec := recover(); rec != nil {
			logger.FromContext(ctx).Error("update handler panicked",
				"panic", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if b.metrics != nil {
		b.metrics.BotUpdatesTotal.WithLabelValues(kind).Inc()
	}

	switch {
	case update.InlineQuery != nil:
		b.handleInline(ctx, update.InlineQuery)
	case update.ChosenInlineResult != nil:
		b.handleChosen(ctx, update.ChosenInlineResult)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.InlineQuery != nil:
		return "inline_query"
	case update.ChosenInlineResult != nil:
		return "chosen_inline_result"
	case update.CallbackQuery != nil:
		return "callback_query"
	case update.Message != nil && update.Message.IsCommand():
		return "command"
	case update.Message != nil:
		return "message"
	}
	return "other"
}

// allow applies the per-user rate limit.
func (b *Bot) allow(ctx context.Context, userID int64) bool {
	if b.limiter.Allow(ctx, fmt.Sprintf("tg:%d", userID)) {
		return true
	}
	if b.metrics != nil {
		b.metrics.RateLimitedTotal.Inc()
	}
	logger.FromContext(ctx).Info("user rate limited", "user_id", userID)
	return false
}
