// Package scorer assigns every candidate a single ordinal relevance score.
//
// The score accumulates independent signals: word coverage, exact phrase,
// artist match, popularity, source origin, duration and variant markers.
// It is a ranking heuristic, not a calibrated metric: only the relative
// order of candidates within one search is meaningful. Scoring is pure and
// safe for concurrent use.
package scorer

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/classifier"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/textnorm"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/translit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

// BannedScore is assigned to banned candidates. It sorts below anything the
// regular signals can produce.
const BannedScore = -1e9

// minPartialRunes is the shortest query word allowed to match inside an
// artist name ("морген" -> "morgenshtern").
const minPartialRunes = 3

// Scorer scores candidates against prepared queries.
type Scorer struct {
	cfg        config.RankingConfig
	normalizer *textnorm.Normalizer
	stopWords  *textnorm.StopWords
	classifier *classifier.Classifier
}

// New builds a Scorer from the ranking configuration.
func New(cfg config.RankingConfig) *Scorer {
	return &Scorer{
		cfg:        cfg,
		normalizer: textnorm.NewNormalizer(cfg.NoisePhrases),
		stopWords:  textnorm.NewStopWords(cfg.StopWords),
		classifier: classifier.New(cfg.BannedPhrases, cfg.JunkMarkers),
	}
}

// Config returns the configuration the scorer was built with.
func (s *Scorer) Config() config.RankingConfig {
	return s.cfg
}

// QueryVariant is one rendering of the query. Search is what providers are
// asked for; Text and Words are its normalized comparison keys.
type QueryVariant struct {
	Search         string
	Text           string
	Words          []string
	Transliterated bool
}

// Query holds the comparison keys derived from a raw query. Build it once
// per search with Prepare.
type Query struct {
	Raw            string
	Cleaned        string
	Variants       []QueryVariant
	AsksForVariant bool
}

// SearchTexts returns the non-empty provider search strings, in order.
func (q Query) SearchTexts() []string {
	texts := lo.Map(q.Variants, func(v QueryVariant, _ int) string { return v.Search })
	return lo.Compact(texts)
}

// Prepare derives the cleaned query and its normalized variants.
func (s *Scorer) Prepare(raw string) Query {
	cleaned := s.stopWords.Clean(raw)
	q := Query{
		Raw:            raw,
		Cleaned:        cleaned,
		AsksForVariant: s.classifier.QueryAsksForVariant(cleaned),
	}
	for _, v := range translit.Expand(cleaned) {
		words := s.normalizer.Words(v.Text)
		q.Variants = append(q.Variants, QueryVariant{
			Search:         strings.TrimSpace(v.Text),
			Text:           strings.Join(words, " "),
			Words:          lo.Uniq(words),
			Transliterated: v.Transliterated,
		})
	}
	return q
}

// Breakdown is the per-signal contribution for one candidate.
type Breakdown struct {
	Banned        bool    `json:"banned"`
	BannedPhrase  string  `json:"banned_phrase,omitempty"`
	CoverageRatio float64 `json:"coverage_ratio"`
	MatchedWords  int     `json:"matched_words"`
	Coverage      float64 `json:"coverage"`
	ExactPhrase   float64 `json:"exact_phrase"`
	Artist        float64 `json:"artist"`
	Popularity    float64 `json:"popularity"`
	Viral         float64 `json:"viral"`
	Source        float64 `json:"source"`
	Duration      float64 `json:"duration"`
	JunkMarker    string  `json:"junk_marker,omitempty"`
	Junk          float64 `json:"junk"`
}

// Total sums the signals, or returns BannedScore for banned candidates.
func (b Breakdown) Total() float64 {
	if b.Banned {
		return BannedScore
	}
	return b.Coverage + b.ExactPhrase + b.Artist + b.Popularity + b.Viral +
		b.Source + b.Duration + b.Junk
}

// Score returns the total score of c for q.
func (s *Scorer) Score(q Query, c track.Candidate) float64 {
	return s.Explain(q, c).Total()
}

// ScoreRaw prepares raw and scores c against it.
func (s *Scorer) ScoreRaw(raw string, c track.Candidate) float64 {
	return s.Score(s.Prepare(raw), c)
}

// IsBanned reports whether c must never be shown for q.
func (s *Scorer) IsBanned(q Query, c track.Candidate) bool {
	return s.classifier.Banned(c.Title, q.Cleaned)
}

// Explain computes every signal for c. Missing fields contribute nothing
// except duration, where unknown length counts as too short.
func (s *Scorer) Explain(q Query, c track.Candidate) Breakdown {
	var b Breakdown
	if phrase, ok := s.classifier.BannedPhrase(c.Title, q.Cleaned).Get(); ok {
		b.Banned = true
		b.BannedPhrase = phrase
		return b
	}

	artist := s.artistText(c.Artist)
	text := s.normalizer.Normalize(strings.TrimSpace(artist + " " + c.Title))
	words := textnorm.WordSet(strings.Fields(text))

	b.Coverage, b.CoverageRatio, b.MatchedWords = s.bestCoverage(q.Variants, words)
	b.ExactPhrase = s.exactPhrase(q.Variants, text)
	b.Artist = s.artistMatch(q.Variants, artist)

	viral := false
	if c.PlayCount > 0 {
		b.Popularity = math.Log10(float64(c.PlayCount)) * s.cfg.PopularityWeight
		if c.PlayCount > s.cfg.ViralThreshold {
			viral = true
			b.Viral = s.cfg.ViralBonus
		}
	}

	b.Source = s.cfg.SourceBonus[string(c.Source)]
	b.Duration = s.durationPoints(c.DurationMs)

	if !q.AsksForVariant {
		if marker, ok := s.classifier.JunkMarker(c.Title).Get(); ok {
			b.JunkMarker = marker
			if viral {
				b.Junk = s.cfg.ViralJunkBonus
			} else {
				b.Junk = -s.cfg.JunkPenalty
			}
		}
	}
	return b
}

// artistText returns the artist name, or "" for the missing-artist
// placeholder.
func (s *Scorer) artistText(artist string) string {
	artist = strings.TrimSpace(artist)
	if strings.EqualFold(artist, s.cfg.DefaultArtist) {
		return ""
	}
	return artist
}

// bestCoverage scores every variant and keeps the one worth the most
// points, returning those points with that variant's ratio and matched
// count. Variants with no words are skipped.
func (s *Scorer) bestCoverage(variants []QueryVariant, words map[string]struct{}) (float64, float64, int) {
	bestPoints, bestRatio, bestMatched := 0.0, 0.0, 0
	for _, v := range variants {
		if len(v.Words) == 0 {
			continue
		}
		matched := 0
		for _, w := range v.Words {
			if _, ok := words[w]; ok {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(v.Words))
		points := s.coveragePoints(ratio, matched)
		if points > bestPoints || (points == bestPoints && ratio > bestRatio) {
			bestPoints, bestRatio, bestMatched = points, ratio, matched
		}
	}
	return bestPoints, bestRatio, bestMatched
}

func (s *Scorer) coveragePoints(ratio float64, matched int) float64 {
	cov := s.cfg.Coverage
	switch {
	case matched == 0:
		return 0
	case ratio >= 1:
		return cov.Full
	case ratio >= cov.HighThreshold:
		return cov.High
	case ratio >= cov.MidThreshold:
		return cov.Mid
	}
	return math.Min(float64(matched)*cov.PerWord, cov.Mid/2)
}

func (s *Scorer) exactPhrase(variants []QueryVariant, text string) float64 {
	best := 0.0
	for _, v := range variants {
		if v.Text == "" || !strings.Contains(text, v.Text) {
			continue
		}
		bonus := s.cfg.ExactPhraseBonus
		if v.Transliterated {
			bonus = s.cfg.TranslitPhraseBonus
		}
		best = math.Max(best, bonus)
	}
	return best
}

// artistMatch grants the artist bonus when the artist name, or one of its
// words, appears in a query variant, or when a query word appears inside
// the artist name.
func (s *Scorer) artistMatch(variants []QueryVariant, artist string) float64 {
	name := s.normalizer.Normalize(artist)
	if name == "" {
		return 0
	}
	nameWords := lo.Filter(strings.Fields(name), func(w string, _ int) bool {
		return utf8.RuneCountInString(w) >= minPartialRunes
	})
	for _, v := range variants {
		if v.Text == "" {
			continue
		}
		if strings.Contains(" "+v.Text+" ", " "+name+" ") {
			return s.cfg.ArtistBonus
		}
		if lo.Some(v.Words, nameWords) {
			return s.cfg.ArtistBonus
		}
		for _, w := range v.Words {
			if utf8.RuneCountInString(w) >= minPartialRunes && strings.Contains(name, w) {
				return s.cfg.ArtistBonus
			}
		}
	}
	return 0
}

func (s *Scorer) durationPoints(durationMs int64) float64 {
	d := s.cfg.Duration
	secs := float64(durationMs) / 1000
	switch {
	case secs < float64(d.MinSeconds):
		return -d.ShortPenalty
	case secs > float64(d.MaxSeconds):
		return -d.LongPenalty
	}
	return d.NormalBonus
}
