// Package engine fans a query out to every enabled provider, once per
// query variant, and ranks the merged candidates.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/provider"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/ranker"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/tracing"
)

// Mode restricts a search to some providers.
type Mode string

const (
	ModeAll        Mode = "all"
	ModeSoundCloud Mode = "soundcloud"
	ModeYouTube    Mode = "youtube"
)

// ParseMode accepts the canonical names, the short codes and "" for all.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return ModeAll, nil
	case "soundcloud", "sc":
		return ModeSoundCloud, nil
	case "youtube", "yt":
		return ModeYouTube, nil
	}
	return "", fmt.Errorf("search mode %q: %w", s, apperrors.ErrInvalidInput)
}

// Includes reports whether src is searched in mode m.
func (m Mode) Includes(src track.Source) bool {
	switch m {
	case ModeAll:
		return true
	case ModeSoundCloud:
		return src == track.SoundCloud
	case ModeYouTube:
		return src == track.YouTube
	}
	return false
}

type Result struct {
	Query       string            `json:"query"`
	Cleaned     string            `json:"cleaned"`
	Mode        Mode              `json:"mode"`
	Variants    []string          `json:"variants"`
	Results     []track.Candidate `json:"results"`
	Considered  int               `json:"considered"`
	Banned      int               `json:"banned"`
	Duplicates  int               `json:"duplicates"`
	Calls       int               `json:"calls"`
	FailedCalls int               `json:"failed_calls"`
}

// Degraded reports whether every provider call failed. Such results are
// empty but must not be cached.
func (r *Result) Degraded() bool {
	return r.Calls > 0 && r.FailedCalls == r.Calls
}

type Engine struct {
	providers []provider.Provider
	ranker    *ranker.Ranker
	cfg       config.SearchConfig
}

// New builds an engine. Provider order is significant: with first-seen
// retention the earlier provider wins duplicates.
func New(r *ranker.Ranker, cfg config.SearchConfig, providers ...provider.Provider) *Engine {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 6
	}
	return &Engine{
		providers: providers,
		ranker:    r,
		cfg:       cfg,
	}
}

func (e *Engine) Sources() []track.Source {
	return lo.Map(e.providers, func(p provider.Provider, _ int) track.Source { return p.Source() })
}

// ClampLimit applies the default and maximum result counts.
func (e *Engine) ClampLimit(limit int) int {
	if limit <= 0 {
		limit = e.cfg.DefaultLimit
	}
	if e.cfg.MaxResults > 0 && limit > e.cfg.MaxResults {
		limit = e.cfg.MaxResults
	}
	return limit
}

type call struct {
	variant  string
	provider provider.Provider
}

// Search runs one provider call per (variant, provider) pair with bounded
// concurrency. A failed call contributes no candidates. Queries shorter
// than the configured minimum return an empty result.
func (e *Engine) Search(ctx context.Context, raw string, mode Mode, limit int) (*Result, error) {
	ctx, span := tracing.StartChildSpan(ctx, "engine.search")
	defer span.End()
	log := logger.FromContext(ctx).With("component", "search-engine")

	q := e.ranker.Scorer().Prepare(raw)
	res := &Result{
		Query:    raw,
		Cleaned:  q.Cleaned,
		Mode:     mode,
		Variants: q.SearchTexts(),
		Results:  []track.Candidate{},
	}
	if utf8.RuneCountInString(strings.TrimSpace(raw)) < e.cfg.MinQueryLength || len(res.Variants) == 0 {
		return res, nil
	}

	providers := lo.Filter(e.providers, func(p provider.Provider, _ int) bool { return mode.Includes(p.Source()) })
	if len(providers) == 0 {
		return nil, fmt.Errorf("no provider enabled for mode %q: %w", mode, apperrors.ErrProviderUnavailable)
	}

	var calls []call
	for _, v := range res.Variants {
		for _, p := range providers {
			calls = append(calls, call{variant: v, provider: p})
		}
	}

	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	slots := make([][]track.Candidate, len(calls))
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(e.cfg.MaxConcurrent)
	for i, c := range calls {
		g.Go(func() error {
			start := time.Now()
			found, err := c.provider.Search(ctx, c.variant)
			if err != nil {
				failed.Add(1)
				log.Warn("provider search failed",
					"provider", c.provider.Source(),
					"variant", c.variant,
					"error", err,
					"elapsed", time.Since(start),
				)
				return nil
			}
			slots[i] = found
			return nil
		})
	}
	_ = g.Wait()

	merged := lo.Flatten(slots)
	ranked := e.ranker.Rank(q, merged, e.ClampLimit(limit))

	res.Results = ranked.Candidates
	res.Considered = ranked.Considered
	res.Banned = ranked.Banned
	res.Duplicates = ranked.Duplicates
	res.Calls = len(calls)
	res.FailedCalls = int(failed.Load())

	span.SetAttr("calls", res.Calls)
	span.SetAttr("failed_calls", res.FailedCalls)
	span.SetAttr("considered", res.Considered)
	span.SetAttr("returned", len(res.Results))
	log.Debug("search ranked",
		"query", raw,
		"variants", len(res.Variants),
		"calls", res.Calls,
		"failed_calls", res.FailedCalls,
		"considered", res.Considered,
		"banned", res.Banned,
		"returned", len(res.Results),
	)
	return res, nil
}

// Resolve asks the provider that owns src for a direct stream URL.
func (e *Engine) Resolve(ctx context.Context, src track.Source, externalID, locator string) (string, error) {
	p, ok := lo.Find(e.providers, func(p provider.Provider) bool { return p.Source() == src })
	if !ok {
		return "", fmt.Errorf("resolve %s:%s: no such provider: %w", src, externalID, apperrors.ErrInvalidInput)
	}
	return p.Resolve(ctx, externalID, locator)
}
