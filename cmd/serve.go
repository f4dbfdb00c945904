package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
	"github.com/ridgeline-data/alpine-ledger/internal/model"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ledger read API and ingestion webhook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		p, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st, p),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter builds the HTTP API.
func newRouter(st store.Store, p *ingest.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := st.Ping(req.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
			handleListEvents(w, req, st)
		})
		r.Get("/events/{id}", func(w http.ResponseWriter, req *http.Request) {
			handleGetEvent(w, req, st)
		})
		r.Get("/events/{id}/sources", func(w http.ResponseWriter, req *http.Request) {
			handleEventSources(w, req, st)
		})
		r.Post("/events/{id}/reprocess", func(w http.ResponseWriter, req *http.Request) {
			handleReprocess(w, req, st)
		})
		r.Post("/events/{id}/augment", func(w http.ResponseWriter, req *http.Request) {
			handleAugment(w, req, st, p)
		})
		r.Post("/events/{id}/augment/preview", func(w http.ResponseWriter, req *http.Request) {
			handleAugmentPreview(w, req, st, p)
		})
		r.Get("/export.csv", func(w http.ResponseWriter, req *http.Request) {
			handleExportCSV(w, req, st)
		})
		r.Post("/ingest", func(w http.ResponseWriter, req *http.Request) {
			handleIngest(w, req, p)
		})
		r.Post("/ingest/batch", func(w http.ResponseWriter, req *http.Request) {
			handleIngestBatch(w, req, p)
		})
		r.Post("/admin/reset", func(w http.ResponseWriter, req *http.Request) {
			handleAdminReset(w, req, st)
		})
	})
	return r
}

func handleListEvents(w http.ResponseWriter, req *http.Request, st store.Store) {
	q := req.URL.Query()
	filter := store.IncidentFilter{
		Jurisdiction: model.NormalizeJurisdiction(q.Get("jurisdiction")),
		Activity:     q.Get("activity"),
		Cause:        q.Get("cause"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}
	if since := q.Get("since"); since != "" {
		d, err := model.ParseDate(since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid since date, want YYYY-MM-DD"})
			return
		}
		filter.Since = &d
	}
	if until := q.Get("until"); until != "" {
		d, err := model.ParseDate(until)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid until date, want YYYY-MM-DD"})
			return
		}
		filter.Until = &d
	}

	incidents, err := st.ListIncidents(req.Context(), filter)
	if err != nil {
		zap.L().Error("list events failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": incidents, "count": len(incidents)})
}

func handleGetEvent(w http.ResponseWriter, req *http.Request, st store.Store) {
	id := chi.URLParam(req, "id")
	inc, err := st.GetIncident(req.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	segs, err := st.ListSARSegments(req.Context(), id)
	if err != nil {
		zap.L().Error("list sar segments failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	srcs, err := st.ListSources(req.Context(), id)
	if err != nil {
		zap.L().Error("list sources failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	for i := range srcs {
		srcs[i].CleanedText = ""
	}

	writeJSON(w, http.StatusOK, struct {
		Incident *model.Incident    `json:"incident"`
		SAR      []model.SARSegment `json:"sar,omitempty"`
		Sources  []model.Source     `json:"sources,omitempty"`
	}{inc, segs, srcs})
}

// handleEventSources returns an incident's source documents with their
// cleaned text, the raw-archive view the slim event detail omits.
func handleEventSources(w http.ResponseWriter, req *http.Request, st store.Store) {
	id := chi.URLParam(req, "id")
	if _, err := st.GetIncident(req.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	srcs, err := st.ListSources(req.Context(), id)
	if err != nil {
		zap.L().Error("list sources failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": srcs, "count": len(srcs)})
}

func handleReprocess(w http.ResponseWriter, req *http.Request, st store.Store) {
	id := chi.URLParam(req, "id")
	if _, err := st.GetIncident(req.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	if err := reprocessIncident(req.Context(), st, id); err != nil {
		zap.L().Error("reprocess failed", zap.String("event_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reprocess failed"})
		return
	}
	inc, err := st.GetIncident(req.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "reprocessed", "incident": inc})
}

func handleAugment(w http.ResponseWriter, req *http.Request, st store.Store, p *ingest.Pipeline) {
	id := chi.URLParam(req, "id")
	if _, err := st.GetIncident(req.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	if err := p.Augment(req.Context(), id); err != nil {
		zap.L().Error("augment failed", zap.String("event_id", id), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "augment failed"})
		return
	}
	inc, err := st.GetIncident(req.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "augmented", "incident": inc})
}

func handleAugmentPreview(w http.ResponseWriter, req *http.Request, st store.Store, p *ingest.Pipeline) {
	id := chi.URLParam(req, "id")
	if _, err := st.GetIncident(req.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
		return
	}
	r, err := p.PreviewAugment(req.Context(), id)
	if err != nil {
		zap.L().Error("augment preview failed", zap.String("event_id", id), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "augment preview failed"})
		return
	}
	writeJSON(w, http.StatusOK, r)
}

func handleExportCSV(w http.ResponseWriter, req *http.Request, st store.Store) {
	incidents, err := st.ListIncidents(req.Context(), store.IncidentFilter{})
	if err != nil {
		zap.L().Error("export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}
	rows := make([]eventRow, len(incidents))
	for i, inc := range incidents {
		rows[i] = toRow(inc)
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="events.csv"`)
	cw := csv.NewWriter(w)
	if err := csvutil.NewEncoder(cw).Encode(rows); err != nil {
		zap.L().Error("encode csv failed", zap.Error(err))
		return
	}
	cw.Flush()
}

func handleIngestBatch(w http.ResponseWriter, req *http.Request, p *ingest.Pipeline) {
	var body struct {
		URLs        []string `json:"urls"`
		Concurrency int      `json:"concurrency"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(body.URLs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "urls is required"})
		return
	}

	outcomes := p.Batch(req.Context(), body.URLs, ingest.BatchOptions{Concurrency: body.Concurrency})
	writeJSON(w, http.StatusOK, map[string]any{"outcomes": outcomes, "count": len(outcomes)})
}

func handleAdminReset(w http.ResponseWriter, req *http.Request, st store.Store) {
	var body struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil || body.Confirm != "reset" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": `reset requires {"confirm": "reset"}`})
		return
	}
	if err := st.Reset(req.Context()); err != nil {
		zap.L().Error("reset failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reset failed"})
		return
	}
	zap.L().Warn("ledger reset via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func handleIngest(w http.ResponseWriter, req *http.Request, p *ingest.Pipeline) {
	var body struct {
		URL  string `json:"url"`
		Text string `json:"text"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.URL == "" && body.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url or text is required"})
		return
	}

	start := time.Now()
	res, err := p.Ingest(req.Context(), ingest.Job{URL: body.URL, Text: body.Text})
	if err != nil {
		zap.L().Error("webhook ingest failed", zap.String("url", body.URL), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "ingest failed"})
		return
	}

	zap.L().Info("webhook ingest complete",
		zap.String("url", body.URL),
		zap.String("status", res.Status),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
