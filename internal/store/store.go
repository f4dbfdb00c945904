package store

import (
	"context"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// IncidentFilter specifies criteria for listing incidents.
type IncidentFilter struct {
	Jurisdiction string      `json:"jurisdiction,omitempty"`
	Activity     string      `json:"activity,omitempty"`
	Cause        string      `json:"cause,omitempty"`
	Since        *model.Date `json:"since,omitempty"`
	Until        *model.Date `json:"until,omitempty"`
	Limit        int         `json:"limit,omitempty"`
	Offset       int         `json:"offset,omitempty"`
}

// Store defines the persistence interface for the incident ledger.
// CreateSource is idempotent on URL: when a concurrent worker wins the
// unique-constraint race, the winner's row is returned instead of an error.
type Store interface {
	// Incidents
	CreateIncident(ctx context.Context) (*model.Incident, error)
	GetIncident(ctx context.Context, id string) (*model.Incident, error)
	ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error)
	UpdateIncidentFields(ctx context.Context, id string, fields model.FieldUpdate) error
	DeleteIncident(ctx context.Context, id string) error

	// Sources
	GetSourceByURL(ctx context.Context, url string) (*model.Source, error)
	CreateSource(ctx context.Context, src *model.Source) (*model.Source, error)
	UpdateSourceMeta(ctx context.Context, id string, meta SourceMetaUpdate) error
	UpdateSourceAnnotations(ctx context.Context, id string, quotes map[string]string, bullets []string) error
	ListSources(ctx context.Context, incidentID string) ([]model.Source, error)

	// SAR segments
	ReplaceSARSegments(ctx context.Context, incidentID string, segs []model.SARSegment) error
	ListSARSegments(ctx context.Context, incidentID string) ([]model.SARSegment, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Reset(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// SourceMetaUpdate carries metadata corrections for a source document.
// Empty/nil fields are left untouched.
type SourceMetaUpdate struct {
	Publisher     string
	ArticleTitle  string
	DatePublished *model.Date
}

// incidentColumns whitelists the columns a partial field update may touch.
// Anything else in a FieldUpdate is dropped, which keeps refiner output
// from ever steering SQL.
var incidentColumns = map[string]bool{
	"jurisdiction":          true,
	"location_name":         true,
	"peak_name":             true,
	"route_name":            true,
	"activity":              true,
	"event_type":            true,
	"cause_primary":         true,
	"contributing_factors":  true,
	"phase":                 true,
	"n_fatalities":          true,
	"n_injured":             true,
	"party_size":            true,
	"date_event_start":      true,
	"date_event_end":        true,
	"date_of_death":         true,
	"date_recovery":         true,
	"time_to_recovery_days": true,
	"iso_country":           true,
	"admin_area":            true,
	"tz_local":              true,
	"lat":                   true,
	"lon":                   true,
	"multi_agency":          true,
	"names_all":             true,
	"names_deceased":        true,
	"names_relatives":       true,
	"names_responders":      true,
	"names_spokespersons":   true,
	"names_medics":          true,
}
