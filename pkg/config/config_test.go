package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 600*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 60, cfg.Providers.SoundCloud.SearchLimit)
	assert.Equal(t, 40, cfg.Providers.Piped.SearchLimit)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Contains(t, cfg.Ranking.StopWords, "скачать")
	assert.Equal(t, RetainFirstSeen, cfg.Ranking.Retention)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "musicbot:", cfg.Redis.KeyPrefix)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, 30*24*time.Hour, cfg.Analytics.SnapshotRetention)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	yml := `
server:
  port: 9999
ranking:
  popularityWeight: 15
  stopWords: ["mp3"]
  sourceBonus:
    youtube: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("TB_REDIS_ADDR", "redis:6380")
	t.Setenv("TB_ADMIN_ID", "42")
	t.Setenv("TB_CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 15.0, cfg.Ranking.PopularityWeight)
	assert.Equal(t, []string{"mp3"}, cfg.Ranking.StopWords)
	assert.Equal(t, 3.0, cfg.Ranking.SourceBonus["youtube"])
	assert.Equal(t, 10.0, cfg.Ranking.SourceBonus["soundcloud"])
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/does/not/exist.yaml")
	require.Error(t, err)
}

func TestRankingValidate(t *testing.T) {
	require.NoError(t, DefaultRanking().Validate())

	tests := []struct {
		name   string
		mutate func(r *RankingConfig)
	}{
		{"popularity outweighs coverage", func(r *RankingConfig) { r.PopularityWeight = 30 }},
		{"inverted duration bounds", func(r *RankingConfig) { r.Duration.MinSeconds = 1000 }},
		{"inverted thresholds", func(r *RankingConfig) { r.Coverage.HighThreshold = 0.4 }},
		{"negative penalty", func(r *RankingConfig) { r.JunkPenalty = -5 }},
		{"unknown retention", func(r *RankingConfig) { r.Retention = "latest" }},
		{"unknown output mode", func(r *RankingConfig) { r.OutputMode = "random" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRanking()
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}
