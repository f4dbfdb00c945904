package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
)

var (
	ingestURL      string
	ingestTextFile string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a single article by URL or from a text file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if ingestURL == "" && ingestTextFile == "" {
			return eris.New("one of --url or --text is required")
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		job := ingest.Job{URL: ingestURL}
		if ingestTextFile != "" {
			raw, err := os.ReadFile(ingestTextFile)
			if err != nil {
				return eris.Wrapf(err, "read %s", ingestTextFile)
			}
			job.Text = string(raw)
		}

		res, err := p.Ingest(ctx, job)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "article URL")
	ingestCmd.Flags().StringVar(&ingestTextFile, "text", "", "path to a pre-cleaned text file (skips fetch and clean)")
	rootCmd.AddCommand(ingestCmd)
}
