// Package searcher is the search entry point shared by the bot and the HTTP
// API: it puts the query cache in front of the engine and records metrics
// and analytics for every search.
package searcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
)

// Origins tag where a search came from in analytics.
const (
	OriginInline  = "inline"
	OriginMessage = "message"
	OriginAPI     = "api"
)

type Request struct {
	Query  string
	Mode   engine.Mode
	Limit  int
	Origin string
}

type Response struct {
	*engine.Result
	CacheHit  bool  `json:"cache_hit"`
	LatencyMs int64 `json:"latency_ms"`
}

// Service is safe for concurrent use. The cache, collector and metrics are
// optional.
type Service struct {
	engine    *engine.Engine
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func New(e *engine.Engine, c *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics) *Service {
	return &Service{
		engine:    e,
		cache:     c,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "searcher"),
	}
}

func (s *Service) Cache() *cache.QueryCache {
	return s.cache
}

func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	limit := s.engine.ClampLimit(req.Limit)

	compute := func() (*engine.Result, error) {
		return s.engine.Search(ctx, req.Query, req.Mode, limit)
	}
	var (
		result   *engine.Result
		cacheHit bool
		err      error
	)
	if s.cache != nil {
		result, cacheHit, err = s.cache.GetOrCompute(ctx, req.Query, req.Mode, limit, compute)
	} else {
		result, err = compute()
	}
	elapsed := time.Since(start)

	if err != nil {
		s.observe("error", "", elapsed, nil)
		log.Error("search failed", "query", req.Query, "mode", req.Mode, "error", err)
		return nil, err
	}

	resp := &Response{Result: result, CacheHit: cacheHit, LatencyMs: elapsed.Milliseconds()}
	s.record(ctx, req, resp, elapsed)
	log.Info("search completed",
		"query", req.Query,
		"mode", req.Mode,
		"origin", req.Origin,
		"returned", len(result.Results),
		"cache_hit", cacheHit,
		"latency_ms", resp.LatencyMs,
	)
	return resp, nil
}

func (s *Service) Resolve(ctx context.Context, key track.Key, locator string) (string, error) {
	return s.engine.Resolve(ctx, key.Source, key.ExternalID, locator)
}

func (s *Service) record(ctx context.Context, req Request, resp *Response, elapsed time.Duration) {
	resultType, cacheStatus := "miss", "miss"
	if s.cache == nil {
		cacheStatus = "none"
	}
	if resp.CacheHit {
		resultType, cacheStatus = "hit", "hit"
	}
	if len(resp.Results) == 0 {
		resultType = "zero_result"
	}
	s.observe(resultType, cacheStatus, elapsed, resp)

	s.collector.Track(analytics.SearchEvent{
		Query:      req.Query,
		Mode:       string(req.Mode),
		Origin:     req.Origin,
		Variants:   resp.Variants,
		Considered: resp.Considered,
		Banned:     resp.Banned,
		Returned:   len(resp.Results),
		FailedCall: resp.FailedCalls,
		LatencyMs:  resp.LatencyMs,
		CacheHit:   resp.CacheHit,
		Timestamp:  time.Now().UTC(),
		RequestID:  logger.RequestID(ctx),
	})
}

func (s *Service) observe(resultType, cacheStatus string, elapsed time.Duration, resp *Response) {
	if s.metrics == nil {
		return
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	if resp == nil {
		return
	}
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(elapsed.Seconds())
	s.metrics.SearchResultsCount.Observe(float64(len(resp.Results)))
	if !resp.CacheHit {
		s.metrics.CandidatesBannedTotal.Add(float64(resp.Banned))
	}
}
