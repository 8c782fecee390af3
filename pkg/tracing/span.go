// Package tracing records in-process span trees keyed by a trace id and
// logs finished traces through slog.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

type spanKey struct{}

// Span is one timed operation. Children are appended concurrently by
// goroutines that fan out from the same parent.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	Err       error

	mu    sync.Mutex
	ended bool
}

func newSpan(name, traceID string) *Span {
	return &Span{Name: name, TraceID: traceID, StartTime: time.Now(), Attrs: map[string]any{}}
}

// StartSpan opens a root span. An empty traceID gets a fresh UUID.
func StartSpan(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	s := newSpan(name, traceID)
	return context.WithValue(ctx, spanKey{}, s), s
}

// StartChildSpan opens a span under the one in ctx. Without a parent the
// span is detached: it has no trace id and is never logged.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		s := newSpan(name, "")
		return context.WithValue(ctx, spanKey{}, s), s
	}
	s := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, s)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, s), s
}

func SpanFromContext(ctx context.Context) *Span {
	s, _ := ctx.Value(spanKey{}).(*Span)
	return s
}

// End fixes the duration. Only the first call counts; nil spans are ignored.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.Duration = time.Since(s.StartTime)
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SetError marks the span failed. A nil err is ignored.
func (s *Span) SetError(err error) {
	if s == nil || err == nil {
		return
	}
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// Failed reports whether s or any descendant recorded an error.
func (s *Span) Failed() bool {
	s.mu.Lock()
	failed := s.Err != nil
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	if failed {
		return true
	}
	for _, c := range children {
		if c.Failed() {
			return true
		}
	}
	return false
}

// Tracer decides which finished traces are logged.
type Tracer struct {
	enabled       bool
	sampleRate    float64
	slowThreshold time.Duration
	sample        func() float64
	logger        *slog.Logger
}

// NewTracer builds a Tracer from config. A nil or disabled tracer is valid
// and logs nothing.
func NewTracer(cfg config.TracingConfig) *Tracer {
	return &Tracer{
		enabled:       cfg.Enabled,
		sampleRate:    cfg.SampleRate,
		slowThreshold: cfg.SlowThreshold,
		sample:        rand.Float64,
		logger:        slog.Default().With("component", "tracing"),
	}
}

// Finish ends root and logs its tree if the trace failed, was slow, or was
// picked by sampling.
func (t *Tracer) Finish(root *Span) {
	root.End()
	if t == nil || !t.enabled || root.TraceID == "" {
		return
	}
	if !t.keep(root) {
		return
	}
	root.emit(t.logger, "")
}

func (t *Tracer) keep(root *Span) bool {
	if root.Failed() {
		return true
	}
	if t.slowThreshold > 0 && root.Duration >= t.slowThreshold {
		return true
	}
	return t.sampleRate >= 1 || t.sample() < t.sampleRate
}

func (s *Span) emit(l *slog.Logger, parent string) {
	s.mu.Lock()
	attrs := make([]any, 0, 10+2*len(s.Attrs))
	attrs = append(attrs, "trace_id", s.TraceID, "span", s.Name, "duration_ms", s.Duration.Milliseconds())
	if parent != "" {
		attrs = append(attrs, "parent", parent)
	}
	if s.Err != nil {
		attrs = append(attrs, "error", s.Err.Error())
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	failed := s.Err != nil
	s.mu.Unlock()

	level := slog.LevelInfo
	if failed {
		level = slog.LevelWarn
	}
	l.Log(context.Background(), level, "span", attrs...)
	for _, c := range children {
		c.emit(l, s.Name)
	}
}
