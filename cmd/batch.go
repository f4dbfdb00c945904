package main

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
)

var batchURLsFile string

var batchCmd = &cobra.Command{
	Use:   "batch [urls...]",
	Short: "Ingest many article URLs concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		urls := args
		if batchURLsFile != "" {
			fromFile, err := readURLFile(batchURLsFile)
			if err != nil {
				return err
			}
			urls = append(urls, fromFile...)
		}
		if len(urls) == 0 {
			return eris.New("no URLs given (pass as args or --urls file)")
		}
		if err := cfg.Validate("ingest"); err != nil {
			return err
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

// readURLFile reads one URL per line, skipping blanks and # comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	return urls, nil
}

func init() {
	batchCmd.Flags().StringVar(&batchURLsFile, "urls", "", "file with one URL per line")
	rootCmd.AddCommand(batchCmd)
}
