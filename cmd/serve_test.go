package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridgeline-data/alpine-ledger/internal/ingest"
	"github.com/ridgeline-data/alpine-ledger/internal/model"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
)

func newTestRouter(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "serve.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	p := ingest.New(st, nil, nil, nil, ingest.Options{})
	return newRouter(st, p), st
}

func TestServeHealth(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestServeListEvents(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	inc, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateIncidentFields(ctx, inc.ID, model.FieldUpdate{
		"jurisdiction": "BC", "activity": "hiking", "cause_primary": "fall",
	}))
	other, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateIncidentFields(ctx, other.ID, model.FieldUpdate{"jurisdiction": "AB"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?jurisdiction=bc", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Events []model.Incident `json:"events"`
		Count  int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, inc.ID, resp.Events[0].ID)
	assert.Equal(t, "hiking", resp.Events[0].Activity)
}

func TestServeListEventsBadSince(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events?since=last-tuesday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeGetEvent(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	inc, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	_, err = st.CreateSource(ctx, &model.Source{IncidentID: inc.ID, URL: "https://news.example/x", CleanedText: "full article text"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/"+inc.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Incident model.Incident `json:"incident"`
		Sources  []model.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, inc.ID, resp.Incident.ID)
	require.Len(t, resp.Sources, 1)
	// Article bodies stay out of API responses.
	assert.Empty(t, resp.Sources[0].CleanedText)
}

func TestServeGetEventNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/no-such-id", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeIngestText(t *testing.T) {
	router, st := newTestRouter(t)

	body := `{"url": "https://news.example/posted", "text": "Two hikers went missing near Mount Example on June 2, 2023. Bodies were recovered June 10, 2023."}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res ingest.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ingest.StatusCreated, res.Status)

	inc, err := st.GetIncident(context.Background(), res.IncidentID)
	require.NoError(t, err)
	require.NotNil(t, inc.NFatalities)
	assert.Equal(t, 2, *inc.NFatalities)
}

func TestServeIngestRejectsEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeEventSources(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	inc, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	_, err = st.CreateSource(ctx, &model.Source{IncidentID: inc.ID, URL: "https://news.example/s", CleanedText: "full article text"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/"+inc.ID+"/sources", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Sources []model.Source `json:"sources"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "full article text", resp.Sources[0].CleanedText)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/events/no-such-id/sources", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeReprocess(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	inc, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	_, err = st.CreateSource(ctx, &model.Source{
		IncidentID:  inc.ID,
		URL:         "https://news.example/r",
		CleanedText: "A climber died in an avalanche near Rogers Pass in British Columbia on March 4, 2022.",
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events/"+inc.ID+"/reprocess", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Status   string         `json:"status"`
		Incident model.Incident `json:"incident"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "reprocessed", resp.Status)
	assert.Equal(t, "BC", resp.Incident.Jurisdiction)
	assert.Equal(t, "avalanche", resp.Incident.CausePrimary)
}

func TestServeAugmentPreviewUnconfigured(t *testing.T) {
	router, st := newTestRouter(t)

	inc, err := st.CreateIncident(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/events/"+inc.ID+"/augment/preview", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestServeExportCSV(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	inc, err := st.CreateIncident(ctx)
	require.NoError(t, err)
	require.NoError(t, st.UpdateIncidentFields(ctx, inc.ID, model.FieldUpdate{"jurisdiction": "WA", "peak_name": "Mount Rainier"}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/export.csv", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event_id")
	assert.Contains(t, rec.Body.String(), "Mount Rainier")
}

func TestServeIngestBatchRejectsEmpty(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest/batch", strings.NewReader(`{"urls": []}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeAdminReset(t *testing.T) {
	router, st := newTestRouter(t)
	ctx := context.Background()

	_, err := st.CreateIncident(ctx)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/reset", strings.NewReader(`{"confirm": "yes?"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/reset", strings.NewReader(`{"confirm": "reset"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	left, err := st.ListIncidents(ctx, store.IncidentFilter{})
	require.NoError(t, err)
	assert.Empty(t, left)
}
