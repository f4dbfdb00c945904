package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ridgeline-data/alpine-ledger/internal/db"
	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const uniqueViolation = "23505"

// Names of the statements prepared on every pooled connection. Call sites
// on the hot ingestion paths execute by name.
const (
	stmtGetSourceByURL = "get_source_by_url"
	stmtInsertSource   = "insert_source"
	stmtGetIncident    = "get_incident"
	stmtDeleteSAR      = "delete_sar"
	stmtInsertSAR      = "insert_sar"
	stmtListSAR        = "list_sar"
	stmtListSources    = "list_sources"
)

var preparedStatements = map[string]string{
	stmtGetSourceByURL: `SELECT id, incident_id, url, publisher, article_title, date_published, cleaned_text, quoted_evidence, summary_bullets, date_scraped FROM sources WHERE url = $1`,
	stmtInsertSource:   `INSERT INTO sources (id, incident_id, url, publisher, article_title, date_published, cleaned_text, date_scraped) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	stmtGetIncident:    `SELECT ` + incidentCols + ` FROM incidents WHERE id = $1`,
	stmtDeleteSAR:      `DELETE FROM sar_segments WHERE incident_id = $1`,
	stmtInsertSAR:      `INSERT INTO sar_segments (id, incident_id, op_type, agency, started_at, ended_at, outcome) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	stmtListSAR:        `SELECT id, incident_id, op_type, agency, started_at, ended_at, outcome FROM sar_segments WHERE incident_id = $1 ORDER BY started_at NULLS LAST, op_type`,
	stmtListSources:    `SELECT id, incident_id, url, publisher, article_title, date_published, cleaned_text, quoted_evidence, summary_bullets, date_scraped FROM sources WHERE incident_id = $1 ORDER BY date_scraped DESC`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need
// direct query access (e.g., the CSV import path).
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const incidentCols = `id, jurisdiction, location_name, peak_name, route_name, activity, event_type,
	cause_primary, contributing_factors, phase, n_fatalities, n_injured, party_size,
	date_event_start, date_event_end, date_of_death, date_recovery, time_to_recovery_days,
	iso_country, admin_area, tz_local, lat, lon, multi_agency,
	names_all, names_deceased, names_relatives, names_responders, names_spokespersons, names_medics,
	created_at, updated_at`

const postgresMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	id                    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	jurisdiction          TEXT,
	location_name         TEXT,
	peak_name             TEXT,
	route_name            TEXT,
	activity              TEXT,
	event_type            TEXT,
	cause_primary         TEXT,
	contributing_factors  TEXT[],
	phase                 TEXT,
	n_fatalities          INTEGER CHECK (n_fatalities >= 0),
	n_injured             INTEGER CHECK (n_injured >= 0),
	party_size            INTEGER CHECK (party_size >= 0),
	date_event_start      DATE,
	date_event_end        DATE,
	date_of_death         DATE,
	date_recovery         DATE,
	time_to_recovery_days INTEGER,
	iso_country           TEXT,
	admin_area            TEXT,
	tz_local              TEXT,
	lat                   DOUBLE PRECISION,
	lon                   DOUBLE PRECISION,
	multi_agency          BOOLEAN NOT NULL DEFAULT false,
	names_all             TEXT[],
	names_deceased        TEXT[],
	names_relatives       TEXT[],
	names_responders      TEXT[],
	names_spokespersons   TEXT[],
	names_medics          TEXT[],
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	incident_id     TEXT NOT NULL REFERENCES incidents(id),
	url             TEXT NOT NULL UNIQUE,
	publisher       TEXT,
	article_title   TEXT,
	date_published  DATE,
	cleaned_text    TEXT,
	quoted_evidence JSONB,
	summary_bullets TEXT[],
	date_scraped    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sar_segments (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	incident_id TEXT NOT NULL REFERENCES incidents(id),
	op_type     TEXT NOT NULL,
	agency      TEXT,
	started_at  DATE,
	ended_at    DATE,
	outcome     TEXT
);

CREATE INDEX IF NOT EXISTS idx_sources_incident_id ON sources(incident_id);
CREATE INDEX IF NOT EXISTS idx_sources_url ON sources(url);
CREATE INDEX IF NOT EXISTS idx_sar_segments_incident_id ON sar_segments(incident_id);
CREATE INDEX IF NOT EXISTS idx_incidents_jurisdiction ON incidents(jurisdiction);
CREATE INDEX IF NOT EXISTS idx_incidents_date_event_start ON incidents(date_event_start);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Reset empties the ledger. Admin use only.
func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE sar_segments, sources, incidents`)
	return eris.Wrap(err, "postgres: reset")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateIncident(ctx context.Context) (*model.Incident, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, created_at, updated_at) VALUES ($1, $2, $3)`,
		id, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert incident")
	}
	return &model.Incident{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *PostgresStore) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	row := s.pool.QueryRow(ctx, stmtGetIncident, id)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get incident %s", id)
	}
	return inc, nil
}

func (s *PostgresStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	query := `SELECT ` + incidentCols + ` FROM incidents WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Jurisdiction != "" {
		query += fmt.Sprintf(` AND jurisdiction = $%d`, argIdx)
		args = append(args, filter.Jurisdiction)
		argIdx++
	}
	if filter.Activity != "" {
		query += fmt.Sprintf(` AND activity = $%d`, argIdx)
		args = append(args, filter.Activity)
		argIdx++
	}
	if filter.Cause != "" {
		query += fmt.Sprintf(` AND cause_primary = $%d`, argIdx)
		args = append(args, filter.Cause)
		argIdx++
	}
	if filter.Since != nil {
		query += fmt.Sprintf(` AND date_event_start >= $%d`, argIdx)
		args = append(args, filter.Since.Time)
		argIdx++
	}
	if filter.Until != nil {
		query += fmt.Sprintf(` AND date_event_start <= $%d`, argIdx)
		args = append(args, filter.Until.Time)
		argIdx++
	}
	query += ` ORDER BY date_event_start DESC NULLS LAST, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list incidents")
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident")
		}
		incidents = append(incidents, *inc)
	}
	return incidents, eris.Wrap(rows.Err(), "postgres: list incidents iterate")
}

func (s *PostgresStore) UpdateIncidentFields(ctx context.Context, id string, fields model.FieldUpdate) error {
	cols, args := updateClauses(fields)
	if len(cols) == 0 {
		return nil
	}

	set := ""
	for i, col := range cols {
		set += fmt.Sprintf("%s = $%d, ", col, i+1)
	}
	n := len(cols)
	query := fmt.Sprintf(`UPDATE incidents SET %supdated_at = $%d WHERE id = $%d`, set, n+1, n+2)
	args = append(args, time.Now().UTC(), id)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update incident %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("incident not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteIncident(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: delete incident begin")
	}
	defer tx.Rollback(ctx)

	for _, q := range []string{
		`DELETE FROM sar_segments WHERE incident_id = $1`,
		`DELETE FROM sources WHERE incident_id = $1`,
		`DELETE FROM incidents WHERE id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return eris.Wrapf(err, "postgres: delete incident %s", id)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: delete incident commit")
}

func (s *PostgresStore) GetSourceByURL(ctx context.Context, url string) (*model.Source, error) {
	row := s.pool.QueryRow(ctx, stmtGetSourceByURL, url)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get source by url")
	}
	return src, nil
}

// CreateSource inserts a source document. A unique-violation on url means a
// concurrent worker already ingested it; the winner's row is re-read and
// returned, so callers can detect the race by comparing incident IDs.
func (s *PostgresStore) CreateSource(ctx context.Context, src *model.Source) (*model.Source, error) {
	id := uuid.New().String()
	scraped := src.DateScraped
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, stmtInsertSource,
		id, src.IncidentID, src.URL, nullStr(src.Publisher), nullStr(src.ArticleTitle),
		dateArg(src.DatePublished), src.CleanedText, scraped,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			winner, readErr := s.GetSourceByURL(ctx, src.URL)
			if readErr != nil {
				return nil, readErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, eris.Wrap(err, "postgres: insert source")
	}

	out := *src
	out.ID = id
	out.DateScraped = scraped
	return &out, nil
}

func (s *PostgresStore) UpdateSourceMeta(ctx context.Context, id string, meta SourceMetaUpdate) error {
	query := `UPDATE sources SET `
	args := []any{}
	argIdx := 1

	if meta.Publisher != "" {
		query += fmt.Sprintf(`publisher = $%d, `, argIdx)
		args = append(args, meta.Publisher)
		argIdx++
	}
	if meta.ArticleTitle != "" {
		query += fmt.Sprintf(`article_title = $%d, `, argIdx)
		args = append(args, meta.ArticleTitle)
		argIdx++
	}
	if meta.DatePublished != nil && !meta.DatePublished.IsZero() {
		query += fmt.Sprintf(`date_published = $%d, `, argIdx)
		args = append(args, meta.DatePublished.Time)
		argIdx++
	}
	if len(args) == 0 {
		return nil
	}
	query = query[:len(query)-2] + fmt.Sprintf(` WHERE id = $%d`, argIdx)
	args = append(args, id)

	_, err := s.pool.Exec(ctx, query, args...)
	return eris.Wrapf(err, "postgres: update source meta %s", id)
}

func (s *PostgresStore) UpdateSourceAnnotations(ctx context.Context, id string, quotes map[string]string, bullets []string) error {
	var quotesJSON any
	if len(quotes) > 0 {
		b, err := json.Marshal(quotes)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal quotes")
		}
		quotesJSON = b
	}

	_, err := s.pool.Exec(ctx,
		`UPDATE sources SET quoted_evidence = COALESCE($1, quoted_evidence), summary_bullets = COALESCE($2, summary_bullets) WHERE id = $3`,
		quotesJSON, bullets, id,
	)
	return eris.Wrapf(err, "postgres: update source annotations %s", id)
}

func (s *PostgresStore) ListSources(ctx context.Context, incidentID string) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, stmtListSources, incidentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: list sources iterate")
}

// ReplaceSARSegments swaps the full segment set for an incident in one
// transaction. Delete-then-insert keeps re-extraction from accumulating
// duplicates.
func (s *PostgresStore) ReplaceSARSegments(ctx context.Context, incidentID string, segs []model.SARSegment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: replace sar begin")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, stmtDeleteSAR, incidentID); err != nil {
		return eris.Wrapf(err, "postgres: delete sar for %s", incidentID)
	}
	for _, seg := range segs {
		if _, err := tx.Exec(ctx, stmtInsertSAR,
			uuid.New().String(), incidentID, seg.OpType, nullStr(seg.Agency),
			dateArg(seg.StartedAt), dateArg(seg.EndedAt), nullStr(seg.Outcome),
		); err != nil {
			return eris.Wrapf(err, "postgres: insert sar for %s", incidentID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: replace sar commit")
}

func (s *PostgresStore) ListSARSegments(ctx context.Context, incidentID string) ([]model.SARSegment, error) {
	rows, err := s.pool.Query(ctx, stmtListSAR, incidentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sar")
	}
	defer rows.Close()

	var segs []model.SARSegment
	for rows.Next() {
		var seg model.SARSegment
		var agency, outcome *string
		var started, ended *time.Time
		if err := rows.Scan(&seg.ID, &seg.IncidentID, &seg.OpType, &agency, &started, &ended, &outcome); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sar")
		}
		seg.Agency = deref(agency)
		seg.Outcome = deref(outcome)
		seg.StartedAt = dateFromTime(started)
		seg.EndedAt = dateFromTime(ended)
		segs = append(segs, seg)
	}
	return segs, eris.Wrap(rows.Err(), "postgres: list sar iterate")
}

// updateClauses converts a FieldUpdate into a deterministic column/arg list,
// dropping anything outside the whitelist and converting ledger types to
// driver-friendly ones.
func updateClauses(fields model.FieldUpdate) ([]string, []any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if incidentColumns[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	args := make([]any, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case model.Date:
			args = append(args, v.Time)
		case *model.Date:
			args = append(args, dateArg(v))
		default:
			args = append(args, v)
		}
	}
	return keys, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (*model.Incident, error) {
	var inc model.Incident
	var jurisdiction, location, peak, route, activity, eventType, cause, phase *string
	var isoCountry, adminArea, tzLocal *string
	var start, end, death, recovery *time.Time

	err := row.Scan(
		&inc.ID, &jurisdiction, &location, &peak, &route, &activity, &eventType,
		&cause, &inc.ContributingFactors, &phase, &inc.NFatalities, &inc.NInjured, &inc.PartySize,
		&start, &end, &death, &recovery, &inc.TimeToRecoveryDays,
		&isoCountry, &adminArea, &tzLocal, &inc.Lat, &inc.Lon, &inc.MultiAgency,
		&inc.NamesAll, &inc.NamesDeceased, &inc.NamesRelatives, &inc.NamesResponders,
		&inc.NamesSpokespersons, &inc.NamesMedics,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.Jurisdiction = deref(jurisdiction)
	inc.LocationName = deref(location)
	inc.PeakName = deref(peak)
	inc.RouteName = deref(route)
	inc.Activity = deref(activity)
	inc.EventType = deref(eventType)
	inc.CausePrimary = deref(cause)
	inc.Phase = deref(phase)
	inc.ISOCountry = deref(isoCountry)
	inc.AdminArea = deref(adminArea)
	inc.TZLocal = deref(tzLocal)
	inc.DateEventStart = dateFromTime(start)
	inc.DateEventEnd = dateFromTime(end)
	inc.DateOfDeath = dateFromTime(death)
	inc.DateRecovery = dateFromTime(recovery)
	return &inc, nil
}

func scanSource(row rowScanner) (*model.Source, error) {
	var src model.Source
	var publisher, title, text *string
	var published *time.Time
	var quotesJSON []byte

	err := row.Scan(
		&src.ID, &src.IncidentID, &src.URL, &publisher, &title, &published,
		&text, &quotesJSON, &src.SummaryBullets, &src.DateScraped,
	)
	if err != nil {
		return nil, err
	}

	src.Publisher = deref(publisher)
	src.ArticleTitle = deref(title)
	src.CleanedText = deref(text)
	src.DatePublished = dateFromTime(published)
	if len(quotesJSON) > 0 {
		if err := json.Unmarshal(quotesJSON, &src.QuotedEvidence); err != nil {
			return nil, eris.Wrap(err, "unmarshal quoted evidence")
		}
	}
	return &src, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateArg(d *model.Date) *time.Time {
	if d == nil || d.IsZero() {
		return nil
	}
	t := d.Time
	return &t
}

func dateFromTime(t *time.Time) *model.Date {
	if t == nil || t.IsZero() {
		return nil
	}
	return &model.Date{Time: *t}
}
