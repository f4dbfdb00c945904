package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/extract"
	"github.com/ridgeline-data/alpine-ledger/internal/merge"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
)

var (
	reprocessID  string
	reprocessAll bool
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess",
	Short: "Re-run deterministic extraction over stored source text",
	Long:  "Replays the extraction heuristics over the cleaned text already on record, without refetching. Useful after heuristic changes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if reprocessID == "" && !reprocessAll {
			return eris.New("one of --id or --all is required")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		var ids []string
		if reprocessID != "" {
			ids = []string{reprocessID}
		} else {
			incidents, err := st.ListIncidents(ctx, store.IncidentFilter{})
			if err != nil {
				return eris.Wrap(err, "list incidents")
			}
			for _, inc := range incidents {
				ids = append(ids, inc.ID)
			}
		}

		var done, failed int
		for _, id := range ids {
			if err := reprocessIncident(ctx, st, id); err != nil {
				zap.L().Warn("reprocess failed", zap.String("event_id", id), zap.Error(err))
				failed++
				continue
			}
			done++
		}

		zap.L().Info("reprocess complete", zap.Int("done", done), zap.Int("failed", failed))
		return nil
	},
}

// reprocessIncident replays extraction over an incident's sources, oldest
// first, so fields from newer coverage win where both articles state them.
func reprocessIncident(ctx context.Context, st store.Store, id string) error {
	srcs, err := st.ListSources(ctx, id)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return nil
	}

	for i := len(srcs) - 1; i >= 0; i-- {
		src := srcs[i]
		if src.CleanedText == "" {
			continue
		}
		res := extract.Run(src.CleanedText, src.DatePublished)

		if fields := merge.FromExtraction(res); len(fields) > 0 {
			if err := st.UpdateIncidentFields(ctx, id, fields); err != nil {
				return err
			}
		}
		if len(res.SAR) > 0 {
			if err := st.ReplaceSARSegments(ctx, id, res.SAR); err != nil {
				return err
			}
		}
		if len(res.Evidence) > 0 || len(res.SummaryBullets) > 0 {
			if err := st.UpdateSourceAnnotations(ctx, src.ID, res.Evidence, res.SummaryBullets); err != nil {
				return err
			}
		}
	}
	return nil
}

func init() {
	reprocessCmd.Flags().StringVar(&reprocessID, "id", "", "incident ID to reprocess")
	reprocessCmd.Flags().BoolVar(&reprocessAll, "all", false, "reprocess every incident")
	rootCmd.AddCommand(reprocessCmd)
}
