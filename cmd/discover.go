package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
	"github.com/ridgeline-data/alpine-ledger/pkg/search"
)

var (
	discoverQuery  string
	discoverDryRun bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Search for new incident coverage and ingest it",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("discover"); err != nil {
			return err
		}

		client := search.NewClient(cfg.Search.Key)

		queries := search.IncidentQueries()
		if discoverQuery != "" {
			queries = []string{discoverQuery}
		}

		seen := map[string]bool{}
		var urls []string
		for _, q := range queries {
			resp, err := client.Search(ctx, search.Request{
				Query:      q,
				Topic:      "news",
				MaxResults: cfg.Search.MaxResults,
				Days:       cfg.Search.Days,
			})
			if err != nil {
				zap.L().Warn("discovery query failed", zap.String("query", q), zap.Error(err))
				continue
			}
			for _, r := range resp.Results {
				if !seen[r.URL] {
					seen[r.URL] = true
					urls = append(urls, r.URL)
				}
			}
		}

		zap.L().Info("discovery complete",
			zap.Int("queries", len(queries)),
			zap.Int("candidate_urls", len(urls)),
		)

		if discoverDryRun {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(urls)
		}
		if len(urls) == 0 {
			return nil
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		outcomes := p.Batch(ctx, urls, ingest.BatchOptions{
			Concurrency: cfg.Batch.Concurrency,
			WallClock:   time.Duration(cfg.Batch.WallClockSecs) * time.Second,
		})

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(outcomes)
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverQuery, "query", "", "override the standing discovery queries")
	discoverCmd.Flags().BoolVar(&discoverDryRun, "dry-run", false, "print candidate URLs without ingesting")
	rootCmd.AddCommand(discoverCmd)
}
