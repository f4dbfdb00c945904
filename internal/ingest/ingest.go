// Package ingest drives one article through the pipeline: fetch, duplicate
// check, clean, deterministic extraction, persistence, and the optional
// refinement and geocoding passes. Each stage either advances the job or
// ends it with a terminal status; there are no retries inside a run.
package ingest

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ridgeline-data/alpine-ledger/internal/extract"
	"github.com/ridgeline-data/alpine-ledger/internal/merge"
	"github.com/ridgeline-data/alpine-ledger/internal/model"
	"github.com/ridgeline-data/alpine-ledger/internal/store"
	"github.com/ridgeline-data/alpine-ledger/pkg/clean"
	"github.com/ridgeline-data/alpine-ledger/pkg/fetch"
	"github.com/ridgeline-data/alpine-ledger/pkg/geocode"
	"github.com/ridgeline-data/alpine-ledger/pkg/refine"
)

// Terminal statuses for a single ingestion run.
const (
	StatusCreated = "created"
	StatusExists  = "exists"
	StatusSkipped = "skipped"
)

// Job is one article to ingest. URL is required unless Text is supplied
// directly. A job with Text skips fetching and cleaning; a job with HTML
// skips only fetching.
type Job struct {
	URL       string
	HTML      string
	Text      string
	Publisher string
	Title     string
	Published *model.Date
}

// Result reports where a job ended up.
type Result struct {
	Status     string `json:"status"`
	IncidentID string `json:"event_id,omitempty"`
	SourceID   string `json:"source_id,omitempty"`
}

// Options toggles the post-persist passes.
type Options struct {
	Augment bool
	Geocode bool
}

// Pipeline owns the collaborators a run needs. Refiner and geocoder may be
// nil when the corresponding pass is disabled.
type Pipeline struct {
	store    store.Store
	fetcher  fetch.Fetcher
	refiner  refine.Refiner
	geocoder geocode.Client
	opts     Options
}

// New assembles a pipeline.
func New(st store.Store, f fetch.Fetcher, r refine.Refiner, g geocode.Client, opts Options) *Pipeline {
	return &Pipeline{store: st, fetcher: f, refiner: r, geocoder: g, opts: opts}
}

// Ingest runs one job to a terminal status. A robots-blocked URL is
// skipped, a URL already on record short-circuits to exists, and anything
// else that goes wrong is an error with no terminal status.
func (p *Pipeline) Ingest(ctx context.Context, job Job) (*Result, error) {
	url := job.URL
	html := job.HTML
	text := job.Text
	title := job.Title
	published := job.Published

	if text == "" && html == "" {
		if url == "" {
			return nil, eris.New("ingest: job has neither url nor content")
		}
		page, err := p.fetcher.Fetch(ctx, url)
		if err != nil {
			if eris.Is(err, fetch.ErrRobotsBlocked) {
				zap.L().Info("skipping robots-blocked url", zap.String("url", url))
				return &Result{Status: StatusSkipped}, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}
			// Fail fast: a hard fetch error ends the run with no retry and
			// nothing persisted.
			zap.L().Warn("skipping url after fetch failure", zap.String("url", url), zap.Error(err))
			return &Result{Status: StatusSkipped}, nil
		}
		html = page.HTML
		url = page.FinalURL
	}

	if url != "" {
		existing, err := p.store.GetSourceByURL(ctx, url)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return &Result{Status: StatusExists, IncidentID: existing.IncidentID, SourceID: existing.ID}, nil
		}
	}

	if text == "" {
		var meta clean.Meta
		text, meta = clean.Clean(html)
		if title == "" {
			title = meta.Title
		}
		if published == nil && meta.Published != nil {
			d := model.DateOf(*meta.Published)
			published = &d
		}
	}
	if text == "" {
		zap.L().Info("skipping url with no extractable text", zap.String("url", url))
		return &Result{Status: StatusSkipped}, nil
	}

	res := extract.Run(text, published)

	result, err := p.persist(ctx, job, url, title, published, text, res)
	if err != nil || result.Status != StatusCreated {
		return result, err
	}

	if p.opts.Augment && p.refiner != nil {
		if err := p.Augment(ctx, result.IncidentID); err != nil {
			zap.L().Warn("refinement pass failed, keeping deterministic record",
				zap.String("event_id", result.IncidentID), zap.Error(err))
		}
	}
	if p.opts.Geocode && p.geocoder != nil {
		if err := p.GeocodeIncident(ctx, result.IncidentID); err != nil {
			zap.L().Warn("geocode pass failed",
				zap.String("event_id", result.IncidentID), zap.Error(err))
		}
	}
	return result, nil
}

// persist creates the incident and source, applies the extraction's field
// update, and replaces SAR segments. Losing the unique-URL race to a
// concurrent worker resolves to the winner's record.
func (p *Pipeline) persist(ctx context.Context, job Job, url, title string, published *model.Date, text string, res model.ExtractionResult) (*Result, error) {
	inc, err := p.store.CreateIncident(ctx)
	if err != nil {
		return nil, err
	}

	src, err := p.store.CreateSource(ctx, &model.Source{
		IncidentID:    inc.ID,
		URL:           url,
		Publisher:     job.Publisher,
		ArticleTitle:  title,
		DatePublished: published,
		CleanedText:   text,
		DateScraped:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if src.IncidentID != inc.ID {
		// Lost the race: another worker persisted this URL between our
		// duplicate check and insert. Drop the orphan incident.
		if delErr := p.store.DeleteIncident(ctx, inc.ID); delErr != nil {
			zap.L().Warn("failed to delete orphan incident after url race",
				zap.String("event_id", inc.ID), zap.Error(delErr))
		}
		return &Result{Status: StatusExists, IncidentID: src.IncidentID, SourceID: src.ID}, nil
	}

	if fields := merge.FromExtraction(res); len(fields) > 0 {
		if err := p.store.UpdateIncidentFields(ctx, inc.ID, fields); err != nil {
			return nil, err
		}
	}
	if len(res.SAR) > 0 {
		if err := p.store.ReplaceSARSegments(ctx, inc.ID, res.SAR); err != nil {
			return nil, err
		}
	}
	if len(res.Evidence) > 0 || len(res.SummaryBullets) > 0 {
		if err := p.store.UpdateSourceAnnotations(ctx, src.ID, res.Evidence, res.SummaryBullets); err != nil {
			return nil, err
		}
	}

	zap.L().Info("incident created",
		zap.String("event_id", inc.ID),
		zap.String("url", url),
		zap.String("jurisdiction", res.Jurisdiction),
		zap.String("cause", res.CausePrimary),
	)
	return &Result{Status: StatusCreated, IncidentID: inc.ID, SourceID: src.ID}, nil
}

// needsAugment reports whether any core field is still missing or
// placeholder, making a refinement call worth its cost.
func needsAugment(inc *model.Incident) bool {
	switch {
	case inc.Jurisdiction == "",
		inc.LocationName == "",
		inc.PeakName == "",
		inc.RouteName == "",
		inc.Activity == "" || inc.Activity == model.ActivityUnknown,
		inc.CausePrimary == "",
		inc.NFatalities == nil,
		inc.DateEventStart == nil,
		inc.DateEventEnd == nil,
		inc.DateOfDeath == nil:
		return true
	}
	return false
}

// Augment runs the refinement pass over an incident's combined sources and
// applies the reconciled update. A complete record is left alone.
func (p *Pipeline) Augment(ctx context.Context, incidentID string) error {
	if p.refiner == nil {
		return nil
	}
	inc, err := p.store.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	if !needsAugment(inc) {
		return nil
	}

	r, srcs, err := p.refineUpdate(ctx, inc)
	if err != nil || r == nil {
		return err
	}
	if len(r.Fields) > 0 {
		if err := p.store.UpdateIncidentFields(ctx, incidentID, r.Fields); err != nil {
			return err
		}
	}
	if r.SAR != nil {
		if err := p.store.ReplaceSARSegments(ctx, incidentID, r.SAR); err != nil {
			return err
		}
	}
	if len(r.Quotes) > 0 || len(r.Bullets) > 0 {
		if err := p.store.UpdateSourceAnnotations(ctx, srcs[0].ID, r.Quotes, r.Bullets); err != nil {
			return err
		}
	}
	if r.Source.Publisher != "" || r.Source.ArticleTitle != "" || r.Source.DatePublished != nil {
		meta := store.SourceMetaUpdate{
			Publisher:     r.Source.Publisher,
			ArticleTitle:  r.Source.ArticleTitle,
			DatePublished: r.Source.DatePublished,
		}
		if err := p.store.UpdateSourceMeta(ctx, srcs[0].ID, meta); err != nil {
			return err
		}
	}

	zap.L().Info("incident augmented",
		zap.String("event_id", incidentID),
		zap.Int("fields", len(r.Fields)),
		zap.Float64("confidence", r.Confidence),
	)
	return nil
}

// refineUpdate calls the refiner over an incident's combined sources and
// returns the reconciled update without applying it. A nil result with a
// nil error means there was nothing to refine.
func (p *Pipeline) refineUpdate(ctx context.Context, inc *model.Incident) (*merge.Result, []model.Source, error) {
	srcs, err := p.store.ListSources(ctx, inc.ID)
	if err != nil {
		return nil, nil, err
	}
	if len(srcs) == 0 {
		return nil, nil, nil
	}

	req := refine.Request{Current: inc}
	// Sources are listed newest first; the newest carries the request
	// metadata, all of them contribute text.
	req.Publisher = srcs[0].Publisher
	req.Title = srcs[0].ArticleTitle
	if srcs[0].DatePublished != nil {
		req.Published = srcs[0].DatePublished.String()
	}
	for i := len(srcs) - 1; i >= 0; i-- {
		if req.Text != "" {
			req.Text += "\n\n---\n\n"
		}
		req.Text += srcs[i].CleanedText
	}

	payload, err := p.refiner.Refine(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if payload == nil {
		return nil, nil, nil
	}

	r := merge.Refined(payload)
	return &r, srcs, nil
}

// PreviewAugment returns the update a refinement pass would apply, without
// persisting anything. The completeness gate is bypassed so a preview can
// be requested for any incident.
func (p *Pipeline) PreviewAugment(ctx context.Context, incidentID string) (*merge.Result, error) {
	if p.refiner == nil {
		return nil, eris.New("ingest: refiner is not configured")
	}
	inc, err := p.store.GetIncident(ctx, incidentID)
	if err != nil {
		return nil, err
	}
	r, _, err := p.refineUpdate(ctx, inc)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return &merge.Result{Fields: model.FieldUpdate{}}, nil
	}
	return r, nil
}

// GeocodeIncident resolves coordinates for an incident that has a place
// name but no coordinates yet. Existing coordinates are never overwritten,
// and an unmatched lookup writes nothing.
func (p *Pipeline) GeocodeIncident(ctx context.Context, incidentID string) error {
	if p.geocoder == nil {
		return nil
	}
	inc, err := p.store.GetIncident(ctx, incidentID)
	if err != nil {
		return err
	}
	if inc.Lat != nil && inc.Lon != nil {
		return nil
	}

	query := inc.PeakName
	if query == "" {
		query = inc.LocationName
	}
	if query == "" {
		return nil
	}

	res, err := p.geocoder.Geocode(ctx, query, inc.Jurisdiction)
	if err != nil {
		return err
	}
	if !res.Matched {
		return nil
	}

	fields := model.FieldUpdate{"lat": res.Lat, "lon": res.Lon}
	if inc.ISOCountry == "" && res.ISOCountry != "" {
		fields["iso_country"] = res.ISOCountry
	}
	if inc.AdminArea == "" && res.AdminArea != "" {
		fields["admin_area"] = res.AdminArea
	}
	return p.store.UpdateIncidentFields(ctx, incidentID, fields)
}
