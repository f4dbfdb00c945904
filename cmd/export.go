package main

import (
	"encoding/csv"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/db"
	"github.com/ridgeline-data/alpine-ledger/internal/model"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
)

// eventRow is the flat CSV shape for incident exchange. List fields are
// joined with "; " so the file stays readable in a spreadsheet.
type eventRow struct {
	ID                  string   `csv:"event_id"`
	Jurisdiction        string   `csv:"jurisdiction,omitempty"`
	LocationName        string   `csv:"location_name,omitempty"`
	PeakName            string   `csv:"peak_name,omitempty"`
	RouteName           string   `csv:"route_name,omitempty"`
	Activity            string   `csv:"activity,omitempty"`
	EventType           string   `csv:"event_type,omitempty"`
	CausePrimary        string   `csv:"cause_primary,omitempty"`
	ContributingFactors string   `csv:"contributing_factors,omitempty"`
	Phase               string   `csv:"phase,omitempty"`
	NFatalities         *int     `csv:"n_fatalities,omitempty"`
	NInjured            *int     `csv:"n_injured,omitempty"`
	PartySize           *int     `csv:"party_size,omitempty"`
	DateEventStart      string   `csv:"date_event_start,omitempty"`
	DateEventEnd        string   `csv:"date_event_end,omitempty"`
	DateOfDeath         string   `csv:"date_of_death,omitempty"`
	DateRecovery        string   `csv:"date_recovery,omitempty"`
	TimeToRecoveryDays  *int     `csv:"time_to_recovery_days,omitempty"`
	ISOCountry          string   `csv:"iso_country,omitempty"`
	AdminArea           string   `csv:"admin_area,omitempty"`
	TZLocal             string   `csv:"tz_local,omitempty"`
	Lat                 *float64 `csv:"lat,omitempty"`
	Lon                 *float64 `csv:"lon,omitempty"`
	MultiAgency         bool     `csv:"multi_agency,omitempty"`
	NamesDeceased       string   `csv:"names_deceased,omitempty"`
}

const listSep = "; "

func toRow(inc model.Incident) eventRow {
	dateStr := func(d *model.Date) string {
		if d == nil {
			return ""
		}
		return d.String()
	}
	return eventRow{
		ID:                  inc.ID,
		Jurisdiction:        inc.Jurisdiction,
		LocationName:        inc.LocationName,
		PeakName:            inc.PeakName,
		RouteName:           inc.RouteName,
		Activity:            inc.Activity,
		EventType:           inc.EventType,
		CausePrimary:        inc.CausePrimary,
		ContributingFactors: strings.Join(inc.ContributingFactors, listSep),
		Phase:               inc.Phase,
		NFatalities:         inc.NFatalities,
		NInjured:            inc.NInjured,
		PartySize:           inc.PartySize,
		DateEventStart:      dateStr(inc.DateEventStart),
		DateEventEnd:        dateStr(inc.DateEventEnd),
		DateOfDeath:         dateStr(inc.DateOfDeath),
		DateRecovery:        dateStr(inc.DateRecovery),
		TimeToRecoveryDays:  inc.TimeToRecoveryDays,
		ISOCountry:          inc.ISOCountry,
		AdminArea:           inc.AdminArea,
		TZLocal:             inc.TZLocal,
		Lat:                 inc.Lat,
		Lon:                 inc.Lon,
		MultiAgency:         inc.MultiAgency,
		NamesDeceased:       strings.Join(inc.NamesDeceased, listSep),
	}
}

var exportOut string

var eventsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export incidents to CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		incidents, err := st.ListIncidents(ctx, store.IncidentFilter{})
		if err != nil {
			return eris.Wrap(err, "list incidents")
		}

		rows := make([]eventRow, len(incidents))
		for i, inc := range incidents {
			rows[i] = toRow(inc)
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}

		w := csv.NewWriter(out)
		enc := csvutil.NewEncoder(w)
		if err := enc.Encode(rows); err != nil {
			return eris.Wrap(err, "encode csv")
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return eris.Wrap(err, "write csv")
		}

		zap.L().Info("export complete", zap.Int("rows", len(rows)))
		return nil
	},
}

// importColumns is the column order the bulk upsert copies; it must match
// rowValues below.
var importColumns = []string{
	"id", "jurisdiction", "location_name", "peak_name", "route_name",
	"activity", "event_type", "cause_primary", "contributing_factors", "phase",
	"n_fatalities", "n_injured", "party_size",
	"date_event_start", "date_event_end", "date_of_death", "date_recovery",
	"time_to_recovery_days", "iso_country", "admin_area", "tz_local",
	"lat", "lon", "multi_agency", "names_deceased",
	"created_at", "updated_at",
}

func rowValues(r eventRow, now time.Time) []any {
	splitList := func(s string) []string {
		if s == "" {
			return nil
		}
		parts := strings.Split(s, listSep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	dateVal := func(s string) *time.Time {
		d, err := model.ParseDate(s)
		if err != nil {
			return nil
		}
		return &d.Time
	}
	return []any{
		r.ID, nilIfEmpty(r.Jurisdiction), nilIfEmpty(r.LocationName), nilIfEmpty(r.PeakName), nilIfEmpty(r.RouteName),
		nilIfEmpty(r.Activity), nilIfEmpty(r.EventType), nilIfEmpty(r.CausePrimary), splitList(r.ContributingFactors), nilIfEmpty(r.Phase),
		r.NFatalities, r.NInjured, r.PartySize,
		dateVal(r.DateEventStart), dateVal(r.DateEventEnd), dateVal(r.DateOfDeath), dateVal(r.DateRecovery),
		r.TimeToRecoveryDays, nilIfEmpty(r.ISOCountry), nilIfEmpty(r.AdminArea), nilIfEmpty(r.TZLocal),
		r.Lat, r.Lon, r.MultiAgency, splitList(r.NamesDeceased),
		now, now,
	}
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	importCSVPath string
	importAppend  bool
)

var eventsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk import incidents from CSV (postgres only)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if cfg.Store.Driver != "postgres" {
			return eris.New("events import requires the postgres driver")
		}

		raw, err := os.ReadFile(importCSVPath)
		if err != nil {
			return eris.Wrapf(err, "read %s", importCSVPath)
		}
		var rows []eventRow
		if err := csvutil.Unmarshal(raw, &rows); err != nil {
			return eris.Wrap(err, "decode csv")
		}

		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return eris.Wrap(err, "init postgres store")
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		now := time.Now().UTC()
		values := make([][]any, len(rows))
		for i, r := range rows {
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			values[i] = rowValues(r, now)
		}

		var n int64
		if importAppend {
			// Straight COPY, no conflict handling. Fails on duplicate ids.
			n, err = db.CopyFrom(ctx, st.Pool(), "incidents", importColumns, values)
			if err != nil {
				return eris.Wrap(err, "copy incidents")
			}
		} else {
			// Re-imports refresh every column except the key and creation time.
			updateCols := make([]string, 0, len(importColumns))
			for _, c := range importColumns {
				if c != "id" && c != "created_at" {
					updateCols = append(updateCols, c)
				}
			}
			n, err = db.BulkUpsert(ctx, st.Pool(), db.UpsertConfig{
				Table:        "incidents",
				Columns:      importColumns,
				ConflictKeys: []string{"id"},
				UpdateCols:   updateCols,
			}, values)
			if err != nil {
				return eris.Wrap(err, "bulk upsert")
			}
		}

		zap.L().Info("import complete",
			zap.Int("rows", len(rows)),
			zap.Int64("upserted", n),
			zap.String("csv", importCSVPath),
		)
		return nil
	},
}

func init() {
	eventsExportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	eventsImportCmd.Flags().StringVar(&importCSVPath, "csv", "", "path to CSV file (required)")
	eventsImportCmd.Flags().BoolVar(&importAppend, "append", false, "plain COPY instead of upsert; errors on duplicate ids")
	_ = eventsImportCmd.MarkFlagRequired("csv")
	eventsCmd.AddCommand(eventsExportCmd)
	eventsCmd.AddCommand(eventsImportCmd)
}
