package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/ranker"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/scorer"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/config"
)

type scoreOptions struct {
	query      string
	file       string
	limit      int
	interleave bool
	asJSON     bool
}

func (o *scoreOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.query, "query", "q", "", "raw user query")
	cmd.Flags().StringVarP(&o.file, "file", "f", "", "JSON file with an array of candidates")
	cmd.Flags().BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")
	_ = cmd.MarkFlagRequired("query")
	_ = cmd.MarkFlagRequired("file")
}

func newScoreCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Rank candidates for a query and print them with their scores",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rcfg, err := root.ranking()
			if err != nil {
				return err
			}
			if opts.interleave {
				rcfg.OutputMode = config.OutputInterleave
			}
			candidates, err := loadCandidates(opts.file)
			if err != nil {
				return err
			}

			res := ranker.New(scorer.New(rcfg)).RankRaw(opts.query, candidates, opts.limit)
			out := cmd.OutOrStdout()
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "#\tSCORE\tSOURCE\tID\tARTIST\tTITLE")
			for i, c := range res.Candidates {
				fmt.Fprintf(w, "%d\t%.2f\t%s\t%s\t%s\t%s\n", i+1, c.Score, c.Source, c.ExternalID, c.Artist, c.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "considered=%d banned=%d duplicates=%d\n", res.Considered, res.Banned, res.Duplicates)
			return nil
		},
	}
	opts.bind(cmd)
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "keep at most n results (0 keeps all)")
	cmd.Flags().BoolVar(&opts.interleave, "interleave", false, "alternate sources instead of pure score order")
	return cmd
}

func newExplainCmd(root *rootOptions) *cobra.Command {
	opts := &scoreOptions{}
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Print the per-signal score breakdown of every candidate",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rcfg, err := root.ranking()
			if err != nil {
				return err
			}
			candidates, err := loadCandidates(opts.file)
			if err != nil {
				return err
			}

			s := scorer.New(rcfg)
			q := s.Prepare(opts.query)
			out := cmd.OutOrStdout()

			type explained struct {
				ID        string           `json:"id"`
				Title     string           `json:"title"`
				Total     float64          `json:"total"`
				Breakdown scorer.Breakdown `json:"breakdown"`
			}
			rows := make([]explained, 0, len(candidates))
			for _, c := range candidates {
				b := s.Explain(q, c)
				rows = append(rows, explained{ID: c.Key().String(), Title: c.Title, Total: b.Total(), Breakdown: b})
			}
			if opts.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOTAL\tCOVER\tEXACT\tARTIST\tPOP\tVIRAL\tSRC\tDUR\tJUNK\tNOTE\tTITLE")
			for _, r := range rows {
				b := r.Breakdown
				note := b.JunkMarker
				if b.Banned {
					note = "banned:" + b.BannedPhrase
				}
				fmt.Fprintf(w, "%s\t%.2f\t%.0f\t%.0f\t%.0f\t%.2f\t%.0f\t%.0f\t%.0f\t%.0f\t%s\t%s\n",
					r.ID, r.Total, b.Coverage, b.ExactPhrase, b.Artist, b.Popularity, b.Viral,
					b.Source, b.Duration, b.Junk, note, r.Title)
			}
			return w.Flush()
		},
	}
	opts.bind(cmd)
	return cmd
}
