package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/tracing"
)

// GuardConfig configures Guard. Zero values disable the matching
// protection, except MaxConcurrent which defaults to 4.
type GuardConfig struct {
	SearchTimeout  time.Duration
	ResolveTimeout time.Duration
	MaxConcurrent  int
	Breaker        resilience.CircuitBreakerConfig
	ResolveRetry   resilience.RetryConfig
	Metrics        *metrics.Metrics
}

// Guarded wraps a Provider with resilience and instrumentation.
type Guarded struct {
	inner   Provider
	cfg     GuardConfig
	sem     *semaphore.Weighted
	breaker *resilience.CircuitBreaker
}

// Guard decorates p. It is safe for concurrent use.
func Guard(p Provider, cfg GuardConfig) *Guarded {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = CountsAsOutage
	}
	name := string(p.Source())
	if cfg.Metrics != nil && cfg.Breaker.OnStateChange == nil {
		gauge := cfg.Metrics.CircuitBreakerState
		cfg.Breaker.OnStateChange = func(name string, _, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
		gauge.WithLabelValues(name).Set(float64(resilience.StateClosed))
	}
	if cfg.Metrics != nil && cfg.ResolveRetry.OnRetry == nil {
		retries := cfg.Metrics.ProviderRetriesTotal.WithLabelValues(name)
		cfg.ResolveRetry.OnRetry = func(int, error) { retries.Inc() }
	}
	if cfg.ResolveRetry.Retryable == nil {
		cfg.ResolveRetry.Retryable = func(err error) bool {
			return apperrors.Retryable(err) && !errors.Is(err, resilience.ErrCircuitOpen)
		}
	}
	return &Guarded{
		inner:   p,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		breaker: resilience.NewCircuitBreaker(name, cfg.Breaker),
	}
}

func (g *Guarded) Source() track.Source {
	return g.inner.Source()
}

// State exposes the breaker state for health checks.
func (g *Guarded) State() resilience.State {
	return g.breaker.GetState()
}

// Health reports an open or probing breaker as degraded. Searches still run
// against the other providers meanwhile.
func (g *Guarded) Health(context.Context) health.ComponentHealth {
	snap := g.breaker.Snapshot()
	if snap.State == resilience.StateClosed {
		return health.ComponentHealth{Status: health.StatusUp}
	}
	return health.ComponentHealth{
		Status:  health.StatusDegraded,
		Message: fmt.Sprintf("circuit %s since %s", snap.State, snap.OpenedAt.UTC().Format(time.RFC3339)),
	}
}

func (g *Guarded) Search(ctx context.Context, query string) ([]track.Candidate, error) {
	ctx, span := tracing.StartChildSpan(ctx, "provider.search."+string(g.Source()))
	defer span.End()

	out, err := guardedCall(ctx, g, g.cfg.SearchTimeout, func(ctx context.Context) ([]track.Candidate, error) {
		return g.inner.Search(ctx, query)
	})
	span.SetAttr("results", len(out))
	if !errors.Is(err, context.Canceled) {
		span.SetError(err)
	}
	return out, err
}

func (g *Guarded) Resolve(ctx context.Context, externalID, locator string) (string, error) {
	return resilience.RetryValue(ctx, "resolve."+string(g.Source()), g.cfg.ResolveRetry, func() (string, error) {
		return guardedCall(ctx, g, g.cfg.ResolveTimeout, func(ctx context.Context) (string, error) {
			return g.inner.Resolve(ctx, externalID, locator)
		})
	})
}

// guardedCall acquires a concurrency slot, then runs fn through the breaker
// under the timeout and records the outcome.
func guardedCall[T any](ctx context.Context, g *Guarded, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return zero, fmt.Errorf("%s: waiting for slot: %w", g.Source(), err)
	}
	defer g.sem.Release(1)

	start := time.Now()
	out, err := resilience.Call(g.breaker, func() (T, error) {
		return resilience.WithTimeoutValue(ctx, timeout, string(g.Source()), fn)
	})
	g.observe(start, err)
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", apperrors.ErrTimeout, err)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		err = fmt.Errorf("%w: %w", apperrors.ErrProviderUnavailable, err)
	}
	return out, err
}

func (g *Guarded) observe(start time.Time, err error) {
	m := g.cfg.Metrics
	if m == nil {
		return
	}
	name := string(g.Source())
	status := "ok"
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		status = "open"
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	m.ProviderRequestsTotal.WithLabelValues(name, status).Inc()
	m.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
