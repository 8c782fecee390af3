package benchmark

import (
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/ranker"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/scorer"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/translit"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

var sampleQueries = []struct {
	name  string
	query string
}{
	{"latin", "eminem lose yourself"},
	{"cyrillic", "кино группа крови"},
	{"mixed", "морген cadillac"},
	{"noisy", "скачать бесплатно моргенштерн cadillac mp3 2024"},
	{"long", "the weeknd blinding lights official audio remastered extended version"},
}

var sampleTitles = []string{
	"Morgenshtern - Cadillac",
	"Cadillac (Official Video)",
	"Cadillac cover by Vasya",
	"Cadillac Reaction",
	"MORGENSHTERN, Элджей - Cadillac (slowed + reverb)",
	"Eminem - Lose Yourself [HD]",
	"Кино - Группа крови",
	"The Weeknd - Blinding Lights",
}

func candidates(n int) []track.Candidate {
	out := make([]track.Candidate, n)
	for i := range n {
		src := track.SoundCloud
		if i%2 == 1 {
			src = track.YouTube
		}
		out[i] = track.Candidate{
			Source:     src,
			ExternalID: fmt.Sprintf("id-%d", i%(n/2+1)),
			Title:      sampleTitles[i%len(sampleTitles)],
			Artist:     "Artist",
			PlayCount:  int64(i * 1000),
			DurationMs: int64(120_000 + i*1000),
		}
	}
	return out
}

// BenchmarkPrepare measures query cleaning and variant expansion.
func BenchmarkPrepare(b *testing.B) {
	s := scorer.New(config.DefaultRanking())
	for _, q := range sampleQueries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = s.Prepare(q.query)
			}
		})
	}
}

func BenchmarkTransliterate(b *testing.B) {
	for _, q := range sampleQueries {
		b.Run(q.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(q.query)))
			for i := 0; i < b.N; i++ {
				_ = translit.Expand(q.query)
			}
		})
	}
}

// BenchmarkScore measures scoring one candidate against a prepared query.
func BenchmarkScore(b *testing.B) {
	s := scorer.New(config.DefaultRanking())
	q := s.Prepare("морген cadillac")
	c := track.Candidate{
		Source:     track.SoundCloud,
		ExternalID: "1",
		Title:      "MORGENSHTERN - Cadillac (feat. Элджей)",
		Artist:     "MORGENSHTERN",
		PlayCount:  50_000_000,
		DurationMs: 180_000,
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = s.Score(q, c)
	}
}

// BenchmarkRank measures the full filter, score, dedupe and sort pass for
// candidate pools of typical provider sizes.
func BenchmarkRank(b *testing.B) {
	for _, n := range []int{20, 100, 500} {
		b.Run(fmt.Sprintf("candidates_%d", n), func(b *testing.B) {
			r := ranker.New(scorer.New(config.DefaultRanking()))
			q := r.Scorer().Prepare("морген cadillac")
			pool := candidates(n)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = r.Rank(q, pool, 10)
			}
		})
	}
}
