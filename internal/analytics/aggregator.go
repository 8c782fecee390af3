package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/kafka"
)

// maxLatencySamples bounds the latency window used for percentiles.
const maxLatencySamples = 10000

type AggregatedStats struct {
	TotalSearches     int64                    `json:"total_searches"`
	CacheHits         int64                    `json:"cache_hits"`
	CacheMisses       int64                    `json:"cache_misses"`
	ZeroResultCount   int64                    `json:"zero_result_count"`
	DegradedSearches  int64                    `json:"degraded_searches"`
	BannedCandidates  int64                    `json:"banned_candidates"`
	AvgLatencyMs      float64                  `json:"avg_latency_ms"`
	P50LatencyMs      int64                    `json:"p50_latency_ms"`
	P95LatencyMs      int64                    `json:"p95_latency_ms"`
	P99LatencyMs      int64                    `json:"p99_latency_ms"`
	TopQueries        []QueryCount             `json:"top_queries"`
	ZeroResultQueries []QueryCount             `json:"zero_result_queries"`
	QueriesPerMinute  float64                  `json:"queries_per_minute"`
	Deliveries        map[string]DeliveryCount `json:"deliveries"`
	CapturedAt        time.Time                `json:"captured_at"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

type DeliveryCount struct {
	OK     int64 `json:"ok"`
	Failed int64 `json:"failed"`
}

// Aggregator folds search and delivery events into running totals.
type Aggregator struct {
	mu                sync.RWMutex
	totalSearches     int64
	cacheHits         int64
	cacheMisses       int64
	zeroResults       int64
	degraded          int64
	banned            int64
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	deliveries        map[string]DeliveryCount
	topN              int
	startTime         time.Time
	now               func() time.Time
}

func NewAggregator(topN int) *Aggregator {
	if topN <= 0 {
		topN = 10
	}
	return &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		deliveries:        make(map[string]DeliveryCount),
		topN:              topN,
		startTime:         time.Now(),
		now:               time.Now,
	}
}

// Handle is the kafka.MessageHandler for the analytics topic. Undecodable
// and unknown records come back wrapped in kafka.ErrMalformed so the
// consumer skips them without retrying.
func (a *Aggregator) Handle(_ context.Context, msg kafka.Message) error {
	switch t := EventType(msg.Headers[HeaderType]); t {
	case EventSearch:
		event, err := kafka.DecodeJSON[SearchEvent](msg.Value)
		if err != nil {
			return fmt.Errorf("search event: %w", err)
		}
		a.RecordSearch(event)
	case EventDelivery:
		event, err := kafka.DecodeJSON[DeliveryEvent](msg.Value)
		if err != nil {
			return fmt.Errorf("delivery event: %w", err)
		}
		a.RecordDelivery(event)
	default:
		return fmt.Errorf("%w: unknown event type %q", kafka.ErrMalformed, t)
	}
	return nil
}

func (a *Aggregator) RecordSearch(event SearchEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.totalSearches++
	if event.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}
	if event.FailedCall > 0 && event.Returned == 0 {
		a.degraded++
	}
	a.banned += int64(event.Banned)

	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, event.LatencyMs)
	} else {
		a.latencies[a.next] = event.LatencyMs
		a.next = (a.next + 1) % maxLatencySamples
	}

	a.queryCounts[event.Query]++
	if event.Returned == 0 {
		a.zeroResults++
		a.zeroResultQueries[event.Query]++
	}
}

func (a *Aggregator) RecordDelivery(event DeliveryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.deliveries[event.Method]
	if event.OK {
		c.OK++
	} else {
		c.Failed++
	}
	a.deliveries[event.Method] = c
}

func (a *Aggregator) Stats() AggregatedStats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := AggregatedStats{
		TotalSearches:    a.totalSearches,
		CacheHits:        a.cacheHits,
		CacheMisses:      a.cacheMisses,
		ZeroResultCount:  a.zeroResults,
		DegradedSearches: a.degraded,
		BannedCandidates: a.banned,
		Deliveries:       make(map[string]DeliveryCount, len(a.deliveries)),
		CapturedAt:       a.now().UTC(),
	}
	for k, v := range a.deliveries {
		stats.Deliveries[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, a.topN)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, a.topN)
	if elapsed := a.now().Sub(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.TotalSearches) / elapsed
	}
	return stats
}

// Restore seeds the counters from a persisted snapshot so totals survive
// restarts. Latency samples are not restored.
func (a *Aggregator) Restore(s AggregatedStats) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalSearches = s.TotalSearches
	a.cacheHits = s.CacheHits
	a.cacheMisses = s.CacheMisses
	a.zeroResults = s.ZeroResultCount
	a.degraded = s.DegradedSearches
	a.banned = s.BannedCandidates
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] = q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] = q.Count
	}
	for k, v := range s.Deliveries {
		a.deliveries[k] = v
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count descending, then query ascending so output is
// stable across calls.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
