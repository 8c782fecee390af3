package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLocalTokenBucket(t *testing.T) {
	c := &clock{t: time.Unix(1_000_000, 0)}
	l := NewLocal(3, 3*time.Second)
	l.now = c.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow(ctx, "u1"), "request %d", i)
	}
	assert.False(t, l.Allow(ctx, "u1"))
	assert.True(t, l.Allow(ctx, "u2"))

	c.t = c.t.Add(time.Second)
	assert.True(t, l.Allow(ctx, "u1"))
	assert.False(t, l.Allow(ctx, "u1"))

	l.Reset("u1")
	assert.True(t, l.Allow(ctx, "u1"))
}

func TestLocalEvictsIdleKeys(t *testing.T) {
	c := &clock{t: time.Unix(1_000_000, 0)}
	l := NewLocal(1, time.Second)
	l.now = c.now
	l.Allow(context.Background(), "old")

	c.t = c.t.Add(time.Minute)
	l.Allow(context.Background(), "fresh")
	l.evict()
	assert.Equal(t, 1, l.size())
}

type fakeCounter struct {
	counts map[string]int64
	ttl    time.Duration
	err    error
}

func (f *fakeCounter) IncrWindow(_ context.Context, key string, ttl time.Duration) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	f.ttl = ttl
	return f.counts[key], nil
}

func TestRedisFixedWindow(t *testing.T) {
	fc := &fakeCounter{counts: map[string]int64{}}
	c := &clock{t: time.Unix(600, 0)}
	r := NewRedis(fc, 2, time.Minute)
	r.now = c.now
	ctx := context.Background()

	assert.True(t, r.Allow(ctx, "7"))
	assert.True(t, r.Allow(ctx, "7"))
	assert.False(t, r.Allow(ctx, "7"))
	assert.Equal(t, int64(3), fc.counts["rl:7:600"])
	assert.Equal(t, time.Minute, fc.ttl)

	c.t = c.t.Add(time.Minute)
	assert.True(t, r.Allow(ctx, "7"))
}

func TestRedisFailsOpen(t *testing.T) {
	r := NewRedis(&fakeCounter{err: errors.New("connection refused")}, 1, time.Minute)
	assert.True(t, r.Allow(context.Background(), "7"))
	assert.True(t, r.Allow(context.Background(), "7"))
}
