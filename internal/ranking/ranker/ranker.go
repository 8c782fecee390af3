package ranker

import (
	"sort"

	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/scorer"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

type Result struct {
	Candidates []track.Candidate `json:"candidates"`
	Considered int               `json:"considered"`
	Banned     int               `json:"banned"`
	Duplicates int               `json:"duplicates"`
}

type Ranker struct {
	scorer    *scorer.Scorer
	retention string
	mode      string
}

func New(s *scorer.Scorer) *Ranker {
	cfg := s.Config()
	return &Ranker{
		scorer:    s,
		retention: cfg.Retention,
		mode:      cfg.OutputMode,
	}
}

func (r *Ranker) Scorer() *scorer.Scorer {
	return r.scorer
}

// Rank drops banned candidates, scores the rest, removes duplicate
// (source, external id) pairs and orders the survivors. limit <= 0 keeps
// everything. The input slice is not modified.
func (r *Ranker) Rank(q scorer.Query, candidates []track.Candidate, limit int) Result {
	res := Result{Considered: len(candidates)}
	if len(candidates) == 0 {
		res.Candidates = []track.Candidate{}
		return res
	}

	scored := make([]track.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if r.scorer.IsBanned(q, c) {
			res.Banned++
			continue
		}
		c.Score = r.scorer.Score(q, c)
		c.Scored = true
		scored = append(scored, c)
	}

	unique, dups := Dedupe(scored, r.retention)
	res.Duplicates = dups

	SortByScore(unique)
	if r.mode == config.OutputInterleave {
		unique = Interleave(unique)
	}
	if limit > 0 && len(unique) > limit {
		unique = unique[:limit]
	}
	res.Candidates = unique
	return res
}

func (r *Ranker) RankRaw(raw string, candidates []track.Candidate, limit int) Result {
	return r.Rank(r.scorer.Prepare(raw), candidates, limit)
}

// Dedupe keeps one candidate per key and returns how many were dropped.
// RetainFirstSeen keeps the earliest entry; RetainHighestScore keeps the
// best scored one in the position of the earliest. Unknown policies fall
// back to first seen.
func Dedupe(candidates []track.Candidate, policy string) ([]track.Candidate, int) {
	if policy != config.RetainHighestScore {
		out := lo.UniqBy(candidates, func(c track.Candidate) track.Key { return c.Key() })
		return out, len(candidates) - len(out)
	}

	pos := make(map[track.Key]int, len(candidates))
	out := make([]track.Candidate, 0, len(candidates))
	for _, c := range candidates {
		i, seen := pos[c.Key()]
		if !seen {
			pos[c.Key()] = len(out)
			out = append(out, c)
			continue
		}
		if c.Score > out[i].Score {
			out[i] = c
		}
	}
	return out, len(candidates) - len(out)
}

// SortByScore orders candidates by descending score. Equal scores keep
// their input order.
func SortByScore(candidates []track.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

// Interleave takes one candidate per source in turn, preserving the order
// within each source. Sources rotate in order of first appearance.
func Interleave(candidates []track.Candidate) []track.Candidate {
	order := lo.Uniq(lo.Map(candidates, func(c track.Candidate, _ int) track.Source { return c.Source }))
	if len(order) < 2 {
		return candidates
	}
	buckets := lo.GroupBy(candidates, func(c track.Candidate) track.Source { return c.Source })

	out := make([]track.Candidate, 0, len(candidates))
	for i := 0; len(out) < len(candidates); i++ {
		for _, src := range order {
			if i < len(buckets[src]) {
				out = append(out, buckets[src][i])
			}
		}
	}
	return out
}
