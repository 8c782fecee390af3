package searcher

import (
	"log/slog"
	"time"

	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider/piped"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider/soundcloud"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/ranker"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/scorer"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/resilience"
)

// NewProviders builds every enabled provider behind its guard.
func NewProviders(cfg config.ProvidersConfig, m *metrics.Metrics) []*provider.Guarded {
	var out []*provider.Guarded
	if sc := cfg.SoundCloud; sc.Enabled {
		client := soundcloud.New(sc, nil, provider.DefaultHTTPClient)
		out = append(out, provider.Guard(client, guardConfig(sc.Timeout, sc.MaxConcurrent, m)))
	}
	if p := cfg.Piped; p.Enabled {
		client := piped.New(p, provider.DefaultHTTPClient)
		out = append(out, provider.Guard(client, guardConfig(p.Timeout, p.MaxConcurrent, m)))
	}
	for _, g := range out {
		slog.Info("provider enabled", "source", g.Source())
	}
	return out
}

// guardConfig gives resolves twice the search timeout: they chain two
// upstream requests for SoundCloud.
func guardConfig(timeout time.Duration, maxConcurrent int, m *metrics.Metrics) provider.GuardConfig {
	return provider.GuardConfig{
		SearchTimeout:  timeout,
		ResolveTimeout: 2 * timeout,
		MaxConcurrent:  maxConcurrent,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
		},
		ResolveRetry: resilience.RetryConfig{
			MaxAttempts:  2,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     time.Second,
		},
		Metrics: m,
	}
}

// NewEngine wires the ranking core to the guarded providers.
func NewEngine(cfg *config.Config, providers []*provider.Guarded) *engine.Engine {
	r := ranker.New(scorer.New(cfg.Ranking))
	return engine.New(r, cfg.Search, lo.Map(providers, func(g *provider.Guarded, _ int) provider.Provider {
		return g
	})...)
}
