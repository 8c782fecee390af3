package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

func captureTracer(cfg config.TracingConfig) (*Tracer, *bytes.Buffer) {
	var buf bytes.Buffer
	t := NewTracer(cfg)
	t.logger = slog.New(slog.NewTextHandler(&buf, nil))
	t.sample = func() float64 { return 0.5 }
	return t, &buf
}

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "")
	require.NotEmpty(t, root.TraceID)

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, child := StartChildSpan(ctx, "provider.soundcloud")
			child.SetAttr("results", 12)
			child.End()
		})
	}
	wg.Wait()

	require.Len(t, root.Children, 8)
	assert.Equal(t, root.TraceID, root.Children[0].TraceID)
	assert.Equal(t, 12, root.Children[0].Attrs["results"])
	assert.False(t, root.Failed())

	tr, buf := captureTracer(config.TracingConfig{Enabled: true, SampleRate: 1})
	tr.Finish(root)
	assert.Equal(t, 9, strings.Count(buf.String(), "msg=span"))
	assert.Contains(t, buf.String(), "parent=search")
}

func TestFinishSampling(t *testing.T) {
	tr, buf := captureTracer(config.TracingConfig{Enabled: true, SampleRate: 0.1, SlowThreshold: time.Hour})
	_, ok := StartSpan(context.Background(), "ok", "t1")
	tr.Finish(ok)
	assert.Empty(t, buf.String(), "sampled out")

	ctx, failing := StartSpan(context.Background(), "failing", "t2")
	_, child := StartChildSpan(ctx, "provider.youtube")
	child.SetError(errors.New("upstream 502"))
	tr.Finish(failing)
	assert.Contains(t, buf.String(), "trace_id=t2")
	assert.Contains(t, buf.String(), `error="upstream 502"`)
	assert.Contains(t, buf.String(), "level=WARN")

	buf.Reset()
	tr.slowThreshold = time.Nanosecond
	_, slow := StartSpan(context.Background(), "slow", "t3")
	time.Sleep(time.Millisecond)
	tr.Finish(slow)
	assert.Contains(t, buf.String(), "trace_id=t3")
}

func TestDisabledAndNilTracer(t *testing.T) {
	tr, buf := captureTracer(config.TracingConfig{SampleRate: 1})
	_, root := StartSpan(context.Background(), "x", "")
	tr.Finish(root)
	assert.Empty(t, buf.String())
	assert.True(t, root.ended)

	var nilTracer *Tracer
	_, other := StartSpan(context.Background(), "y", "")
	nilTracer.Finish(other)
}

func TestEndOnce(t *testing.T) {
	_, s := StartSpan(context.Background(), "x", "id")
	s.End()
	first := s.Duration
	time.Sleep(2 * time.Millisecond)
	s.End()
	assert.Equal(t, first, s.Duration)
}

func TestOrphanChildAndNilSpan(t *testing.T) {
	ctx, child := StartChildSpan(context.Background(), "orphan")
	assert.Empty(t, child.TraceID)
	assert.Same(t, child, SpanFromContext(ctx))

	var s *Span
	s.SetAttr("k", "v")
	s.SetError(errors.New("ignored"))
	s.End()
	assert.Nil(t, SpanFromContext(context.Background()))
}
