package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
)

var (
	eventsJurisdiction string
	eventsActivity     string
	eventsCause        string
	eventsSince        string
	eventsUntil        string
	eventsLimit        int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect and exchange incident records",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List incidents matching a filter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		filter := store.IncidentFilter{
			Jurisdiction: model.NormalizeJurisdiction(eventsJurisdiction),
			Activity:     strings.ToLower(eventsActivity),
			Cause:        strings.ToLower(eventsCause),
			Limit:        eventsLimit,
		}
		if eventsSince != "" {
			d, err := model.ParseDate(eventsSince)
			if err != nil {
				return eris.Wrapf(err, "parse --since %q", eventsSince)
			}
			filter.Since = &d
		}
		if eventsUntil != "" {
			d, err := model.ParseDate(eventsUntil)
			if err != nil {
				return eris.Wrapf(err, "parse --until %q", eventsUntil)
			}
			filter.Until = &d
		}

		incidents, err := st.ListIncidents(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list incidents")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(incidents)
	},
}

var eventsShowCmd = &cobra.Command{
	Use:   "show <event-id>",
	Short: "Show one incident with its sources and SAR segments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		inc, err := st.GetIncident(ctx, args[0])
		if err != nil {
			return err
		}
		segs, err := st.ListSARSegments(ctx, inc.ID)
		if err != nil {
			return err
		}
		srcs, err := st.ListSources(ctx, inc.ID)
		if err != nil {
			return err
		}
		for i := range srcs {
			// Full article text is noise on a terminal.
			srcs[i].CleanedText = ""
		}

		out := struct {
			Incident *model.Incident    `json:"incident"`
			SAR      []model.SARSegment `json:"sar,omitempty"`
			Sources  []model.Source     `json:"sources,omitempty"`
		}{inc, segs, srcs}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	eventsListCmd.Flags().StringVar(&eventsJurisdiction, "jurisdiction", "", "filter by jurisdiction (BC, AB, WA)")
	eventsListCmd.Flags().StringVar(&eventsActivity, "activity", "", "filter by activity")
	eventsListCmd.Flags().StringVar(&eventsCause, "cause", "", "filter by primary cause")
	eventsListCmd.Flags().StringVar(&eventsSince, "since", "", "only incidents on or after this date (YYYY-MM-DD)")
	eventsListCmd.Flags().StringVar(&eventsUntil, "until", "", "only incidents on or before this date (YYYY-MM-DD)")
	eventsListCmd.Flags().IntVar(&eventsLimit, "limit", 0, "max rows")
	eventsCmd.AddCommand(eventsListCmd)
	eventsCmd.AddCommand(eventsShowCmd)
	rootCmd.AddCommand(eventsCmd)
}
