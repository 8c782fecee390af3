package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.data[key] = string(v)
	case string:
		m.data[key] = v
	default:
		return errors.New("unsupported value")
	}
	m.ttls[key] = ttl
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func sampleResult() *engine.Result {
	return &engine.Result{
		Query:   "cadillac",
		Mode:    engine.ModeAll,
		Results: []track.Candidate{{Source: track.SoundCloud, ExternalID: "1", Title: "Cadillac", Score: 300, Scored: true}},
		Calls:   2,
	}
}

func TestBuildKey(t *testing.T) {
	a := BuildKey("  Cadillac   Morgen ", engine.ModeAll, 10)
	assert.Equal(t, a, BuildKey("cadillac morgen", engine.ModeAll, 10))
	assert.NotEqual(t, a, BuildKey("cadillac morgen", engine.ModeYouTube, 10))
	assert.NotEqual(t, a, BuildKey("cadillac morgen", engine.ModeAll, 5))
	assert.True(t, strings.HasPrefix(a, keyPrefix))
}

func TestGetOrComputeCachesResult(t *testing.T) {
	store := newMemStore()
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	c := New(store, 10*time.Minute, m)
	ctx := context.Background()

	var computed atomic.Int32
	compute := func() (*engine.Result, error) {
		computed.Add(1)
		return sampleResult(), nil
	}

	res, hit, err := c.GetOrCompute(ctx, "cadillac", engine.ModeAll, 10, compute)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "1", res.Results[0].ExternalID)

	res, hit, err = c.GetOrCompute(ctx, "Cadillac", engine.ModeAll, 10, compute)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, sampleResult(), res)
	assert.Equal(t, int32(1), computed.Load())

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal))
	assert.Equal(t, 10*time.Minute, store.ttls[BuildKey("cadillac", engine.ModeAll, 10)])
}

func TestDegradedResultsAreNotCached(t *testing.T) {
	store := newMemStore()
	c := New(store, time.Minute, nil)
	degraded := &engine.Result{Query: "x", Calls: 2, FailedCalls: 2, Results: []track.Candidate{}}

	_, _, err := c.GetOrCompute(context.Background(), "x", engine.ModeAll, 10, func() (*engine.Result, error) {
		return degraded, nil
	})
	require.NoError(t, err)
	assert.Empty(t, store.data)
}

func TestComputeErrorPropagates(t *testing.T) {
	c := New(newMemStore(), time.Minute, nil)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "x", engine.ModeAll, 10, func() (*engine.Result, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestCorruptEntryIsAMiss(t *testing.T) {
	store := newMemStore()
	store.data[BuildKey("x", engine.ModeAll, 10)] = "{not json"
	c := New(store, time.Minute, nil)

	_, ok := c.Get(context.Background(), "x", engine.ModeAll, 10)
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	store := newMemStore()
	store.data["other:key"] = "keep"
	c := New(store, time.Minute, nil)
	ctx := context.Background()
	c.Set(ctx, "a", engine.ModeAll, 10, sampleResult())
	c.Set(ctx, "b", engine.ModeAll, 10, sampleResult())

	n, err := c.Invalidate(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, map[string]string{"other:key": "keep"}, store.data)
}
