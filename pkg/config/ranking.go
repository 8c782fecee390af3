package config

import (
	"errors"
	"fmt"
	"math"
)

// Retention policies for duplicate (source, external id) pairs.
const (
	RetainFirstSeen    = "first_seen"
	RetainHighestScore = "highest_score"
)

// Output modes of the ranker.
const (
	OutputScore      = "score"
	OutputInterleave = "interleave"
)

// MaxRealisticPlays bounds the popularity signal when validating weights.
const MaxRealisticPlays = 1e9

// RankingConfig is the tunable surface of the relevance scorer and ranker.
// The scorer never mutates it; a zero value is not usable, start from
// DefaultRanking.
type RankingConfig struct {
	NoisePhrases  []string `yaml:"noisePhrases"`
	StopWords     []string `yaml:"stopWords"`
	BannedPhrases []string `yaml:"bannedPhrases"`
	JunkMarkers   []string `yaml:"junkMarkers"`
	DefaultArtist string   `yaml:"defaultArtist"`

	Coverage CoverageConfig `yaml:"coverage"`

	ExactPhraseBonus    float64 `yaml:"exactPhraseBonus"`
	TranslitPhraseBonus float64 `yaml:"translitPhraseBonus"`
	ArtistBonus         float64 `yaml:"artistBonus"`

	PopularityWeight float64 `yaml:"popularityWeight"`
	ViralThreshold   int64   `yaml:"viralThreshold"`
	ViralBonus       float64 `yaml:"viralBonus"`

	SourceBonus map[string]float64 `yaml:"sourceBonus"`

	Duration DurationConfig `yaml:"duration"`

	JunkPenalty    float64 `yaml:"junkPenalty"`
	ViralJunkBonus float64 `yaml:"viralJunkBonus"`

	Retention  string `yaml:"retention"`
	OutputMode string `yaml:"outputMode"`
}

// CoverageConfig maps the word-coverage ratio to points.
type CoverageConfig struct {
	Full          float64 `yaml:"full"`
	High          float64 `yaml:"high"`
	HighThreshold float64 `yaml:"highThreshold"`
	Mid           float64 `yaml:"mid"`
	MidThreshold  float64 `yaml:"midThreshold"`
	PerWord       float64 `yaml:"perWord"`
}

// DurationConfig holds the normal song-length band in seconds and the
// adjustments applied outside and inside it.
type DurationConfig struct {
	MinSeconds   int     `yaml:"minSeconds"`
	MaxSeconds   int     `yaml:"maxSeconds"`
	ShortPenalty float64 `yaml:"shortPenalty"`
	LongPenalty  float64 `yaml:"longPenalty"`
	NormalBonus  float64 `yaml:"normalBonus"`
}

// DefaultRanking returns the calibrated defaults, including the word lists
// the bot shipped with.
func DefaultRanking() RankingConfig {
	return RankingConfig{
		NoisePhrases: []string{
			"official video", "official audio", "lyrics", "video", "audio",
			"hq", "hd", "4k", "music", "mv", "clip", "клип", "премьера",
			"premiere", "single", "album", "full",
		},
		StopWords: []string{
			"скачать", "download", "mp3", "listen", "слушать", "free", "track", "песня",
		},
		BannedPhrases: []string{
			"reaction", "review", "tutorial", "lesson", "урок", "разбор",
			"parody", "пародия", "реакция", "instrumental", "karaoke", "караоке",
			"slowed", "reverb",
		},
		JunkMarkers: []string{
			"remix", "cover", "кавер", "speed up", "sped up", "nightcore",
			"minus", "минус", "bass boosted", "8d", "mashup", "ремикс",
		},
		DefaultArtist: "Unknown",
		Coverage: CoverageConfig{
			Full:          200,
			High:          90,
			HighThreshold: 0.75,
			Mid:           45,
			MidThreshold:  0.5,
			PerWord:       10,
		},
		ExactPhraseBonus:    100,
		TranslitPhraseBonus: 70,
		ArtistBonus:         90,
		PopularityWeight:    20,
		ViralThreshold:      5_000_000,
		ViralBonus:          40,
		SourceBonus: map[string]float64{
			"soundcloud": 10,
			"youtube":    0,
		},
		Duration: DurationConfig{
			MinSeconds:   45,
			MaxSeconds:   900,
			ShortPenalty: 50,
			LongPenalty:  30,
			NormalBonus:  10,
		},
		JunkPenalty:    120,
		ViralJunkBonus: 20,
		Retention:      RetainFirstSeen,
		OutputMode:     OutputScore,
	}
}

// Validate checks the invariants the ranking relies on.
func (r RankingConfig) Validate() error {
	var errs []error
	if r.PopularityWeight < 0 {
		errs = append(errs, errors.New("popularityWeight must not be negative"))
	}
	if r.PopularityWeight*math.Log10(MaxRealisticPlays) >= r.Coverage.Full {
		errs = append(errs, fmt.Errorf(
			"popularityWeight %.1f lets popularity outweigh full coverage (%.1f)",
			r.PopularityWeight, r.Coverage.Full,
		))
	}
	if r.Coverage.HighThreshold <= r.Coverage.MidThreshold || r.Coverage.HighThreshold > 1 {
		errs = append(errs, errors.New("coverage thresholds must satisfy mid < high <= 1"))
	}
	if !(r.Coverage.Full >= r.Coverage.High && r.Coverage.High >= r.Coverage.Mid && r.Coverage.Mid >= 0) {
		errs = append(errs, errors.New("coverage tiers must satisfy full >= high >= mid >= 0"))
	}
	if r.Duration.MinSeconds < 0 || r.Duration.MinSeconds >= r.Duration.MaxSeconds {
		errs = append(errs, errors.New("duration bounds must satisfy 0 <= min < max"))
	}
	for _, w := range []float64{
		r.Coverage.PerWord, r.ExactPhraseBonus, r.TranslitPhraseBonus, r.ArtistBonus,
		r.ViralBonus, r.Duration.ShortPenalty, r.Duration.LongPenalty, r.Duration.NormalBonus,
		r.JunkPenalty, r.ViralJunkBonus,
	} {
		if w < 0 {
			errs = append(errs, errors.New("bonuses and penalties are magnitudes and must not be negative"))
			break
		}
	}
	switch r.Retention {
	case RetainFirstSeen, RetainHighestScore:
	default:
		errs = append(errs, fmt.Errorf("unknown retention policy %q", r.Retention))
	}
	switch r.OutputMode {
	case OutputScore, OutputInterleave:
	default:
		errs = append(errs, fmt.Errorf("unknown output mode %q", r.OutputMode))
	}
	return errors.Join(errs...)
}
