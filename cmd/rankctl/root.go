package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/track"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "rankctl",
		Short:         "Score, explain and normalize music search candidates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file with a ranking section (defaults when empty)")

	cmd.AddCommand(
		newScoreCmd(opts),
		newExplainCmd(opts),
		newNormalizeCmd(opts),
	)
	return cmd
}

// ranking loads the ranking section of the config file, or the defaults.
func (o *rootOptions) ranking() (config.RankingConfig, error) {
	if o.configPath == "" {
		return config.DefaultRanking(), nil
	}
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.RankingConfig{}, err
	}
	return cfg.Ranking, nil
}

// loadCandidates reads a JSON array of candidates, as returned in the
// "results" field of the search API.
func loadCandidates(path string) ([]track.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading candidates: %w", err)
	}
	var candidates []track.Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parsing candidates %s: %w", path, err)
	}
	return candidates, nil
}
