package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/scorer"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/internal/ranking/textnorm"
)

func newNormalizeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize TEXT...",
		Short: "Show how a query or title is normalized and which variants are searched",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rcfg, err := root.ranking()
			if err != nil {
				return err
			}
			text := strings.Join(args, " ")
			q := scorer.New(rcfg).Prepare(text)
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "normalized: %s\n", textnorm.NewNormalizer(rcfg.NoisePhrases).Normalize(text))
			fmt.Fprintf(out, "cleaned:    %s\n", q.Cleaned)
			fmt.Fprintf(out, "variant:    %t\n", q.AsksForVariant)
			for i, v := range q.Variants {
				kind := "original"
				if v.Transliterated {
					kind = "translit"
				}
				fmt.Fprintf(out, "query[%d]:   %s (%s) words=%s\n", i, v.Search, kind, strings.Join(v.Words, ","))
			}
			return nil
		},
	}
}
