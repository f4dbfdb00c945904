package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
	"github.com/ridgeline-data/alpine-ledger/pkg/refine"
)

var (
	augmentID      string
	augmentAll     bool
	augmentPreview bool
)

var augmentCmd = &cobra.Command{
	Use:   "augment",
	Short: "Run the LLM refinement pass over incomplete incidents",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if augmentID == "" && !augmentAll {
			return eris.New("one of --id or --all is required")
		}
		if augmentPreview && augmentID == "" {
			return eris.New("--preview requires --id")
		}
		if err := cfg.Validate("augment"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		refiner, err := refine.New(refine.Config{
			Provider:  cfg.Refine.Provider,
			APIKey:    cfg.Refine.Key,
			Model:     cfg.Refine.Model,
			MaxTokens: cfg.Refine.MaxTokens,
		})
		if err != nil {
			return err
		}

		p := ingest.New(st, initFetcher(), refiner, initGeocoder(), ingest.Options{
			Augment: true,
			Geocode: cfg.Geocode.Enabled,
		})

		if augmentPreview {
			r, err := p.PreviewAugment(ctx, augmentID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}

		var ids []string
		if augmentID != "" {
			ids = []string{augmentID}
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
			if err := p.Augment(ctx, id); err != nil {
				zap.L().Warn("augment failed", zap.String("event_id", id), zap.Error(err))
				failed++
				continue
			}
			if cfg.Geocode.Enabled {
				if err := p.GeocodeIncident(ctx, id); err != nil {
					zap.L().Warn("geocode failed", zap.String("event_id", id), zap.Error(err))
				}
			}
			done++
		}

		zap.L().Info("augment complete", zap.Int("done", done), zap.Int("failed", failed))
		return nil
	},
}

func init() {
	augmentCmd.Flags().StringVar(&augmentID, "id", "", "incident ID to augment")
	augmentCmd.Flags().BoolVar(&augmentAll, "all", false, "augment every incomplete incident")
	augmentCmd.Flags().BoolVar(&augmentPreview, "preview", false, "print the merged update without persisting")
	rootCmd.AddCommand(augmentCmd)
}
