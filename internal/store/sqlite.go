package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ridgeline-data/alpine-ledger/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. List-valued
// columns are stored as JSON text; dates as ISO strings.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS incidents (
	id                    TEXT PRIMARY KEY,
	jurisdiction          TEXT,
	location_name         TEXT,
	peak_name             TEXT,
	route_name            TEXT,
	activity              TEXT,
	event_type            TEXT,
	cause_primary         TEXT,
	contributing_factors  TEXT,
	phase                 TEXT,
	n_fatalities          INTEGER,
	n_injured             INTEGER,
	party_size            INTEGER,
	date_event_start      TEXT,
	date_event_end        TEXT,
	date_of_death         TEXT,
	date_recovery         TEXT,
	time_to_recovery_days INTEGER,
	iso_country           TEXT,
	admin_area            TEXT,
	tz_local              TEXT,
	lat                   REAL,
	lon                   REAL,
	multi_agency          INTEGER NOT NULL DEFAULT 0,
	names_all             TEXT,
	names_deceased        TEXT,
	names_relatives       TEXT,
	names_responders      TEXT,
	names_spokespersons   TEXT,
	names_medics          TEXT,
	created_at            DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at            DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sources (
	id              TEXT PRIMARY KEY,
	incident_id     TEXT NOT NULL REFERENCES incidents(id),
	url             TEXT NOT NULL UNIQUE,
	publisher       TEXT,
	article_title   TEXT,
	date_published  TEXT,
	cleaned_text    TEXT,
	quoted_evidence TEXT,
	summary_bullets TEXT,
	date_scraped    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sar_segments (
	id          TEXT PRIMARY KEY,
	incident_id TEXT NOT NULL REFERENCES incidents(id),
	op_type     TEXT NOT NULL,
	agency      TEXT,
	started_at  TEXT,
	ended_at    TEXT,
	outcome     TEXT
);

CREATE INDEX IF NOT EXISTS idx_sources_incident_id ON sources(incident_id);
CREATE INDEX IF NOT EXISTS idx_sar_segments_incident_id ON sar_segments(incident_id);
CREATE INDEX IF NOT EXISTS idx_incidents_jurisdiction ON incidents(jurisdiction);
`

// listColumns are the incident columns stored as JSON arrays in SQLite.
var listColumns = map[string]bool{
	"contributing_factors": true,
	"names_all":            true,
	"names_deceased":       true,
	"names_relatives":      true,
	"names_responders":     true,
	"names_spokespersons":  true,
	"names_medics":         true,
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Reset empties the ledger. Admin use only.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	for _, table := range []string{"sar_segments", "sources", "incidents"} {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return eris.Wrapf(err, "sqlite: reset %s", table)
		}
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIncident(ctx context.Context) (*model.Incident, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO incidents (id, created_at, updated_at) VALUES (?, ?, ?)`,
		id, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert incident")
	}
	return &model.Incident{ID: id, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) GetIncident(ctx context.Context, id string) (*model.Incident, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+incidentCols+` FROM incidents WHERE id = ?`, id)
	inc, err := scanSQLiteIncident(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get incident %s", id)
	}
	return inc, nil
}

func (s *SQLiteStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	query := `SELECT ` + incidentCols + ` FROM incidents WHERE 1=1`
	args := []any{}

	if filter.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, filter.Jurisdiction)
	}
	if filter.Activity != "" {
		query += ` AND activity = ?`
		args = append(args, filter.Activity)
	}
	if filter.Cause != "" {
		query += ` AND cause_primary = ?`
		args = append(args, filter.Cause)
	}
	if filter.Since != nil {
		query += ` AND date_event_start >= ?`
		args = append(args, filter.Since.String())
	}
	if filter.Until != nil {
		query += ` AND date_event_start <= ?`
		args = append(args, filter.Until.String())
	}
	query += ` ORDER BY date_event_start DESC, created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list incidents")
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		inc, err := scanSQLiteIncident(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident")
		}
		incidents = append(incidents, *inc)
	}
	return incidents, eris.Wrap(rows.Err(), "sqlite: list incidents iterate")
}

func (s *SQLiteStore) UpdateIncidentFields(ctx context.Context, id string, fields model.FieldUpdate) error {
	cols, args := updateClauses(fields)
	if len(cols) == 0 {
		return nil
	}

	set := make([]string, 0, len(cols)+1)
	sqlArgs := make([]any, 0, len(args)+2)
	for i, col := range cols {
		set = append(set, col+" = ?")
		sqlArgs = append(sqlArgs, sqliteValue(col, args[i]))
	}
	set = append(set, "updated_at = ?")
	sqlArgs = append(sqlArgs, time.Now().UTC(), id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE incidents SET %s WHERE id = ?`, strings.Join(set, ", ")),
		sqlArgs...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update incident %s", id)
	}
	return checkRowsAffected(res, "incident", id)
}

func (s *SQLiteStore) DeleteIncident(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: delete incident begin")
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM sar_segments WHERE incident_id = ?`,
		`DELETE FROM sources WHERE incident_id = ?`,
		`DELETE FROM incidents WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return eris.Wrapf(err, "sqlite: delete incident %s", id)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: delete incident commit")
}

func (s *SQLiteStore) GetSourceByURL(ctx context.Context, url string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, incident_id, url, publisher, article_title, date_published, cleaned_text, quoted_evidence, summary_bullets, date_scraped
		 FROM sources WHERE url = ?`,
		url,
	)
	src, err := scanSQLiteSource(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: get source by url")
	}
	return src, nil
}

func (s *SQLiteStore) CreateSource(ctx context.Context, src *model.Source) (*model.Source, error) {
	id := uuid.New().String()
	scraped := src.DateScraped
	if scraped.IsZero() {
		scraped = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (id, incident_id, url, publisher, article_title, date_published, cleaned_text, date_scraped)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, src.IncidentID, src.URL, src.Publisher, src.ArticleTitle,
		dateText(src.DatePublished), src.CleanedText, scraped,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			winner, readErr := s.GetSourceByURL(ctx, src.URL)
			if readErr != nil {
				return nil, readErr
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, eris.Wrap(err, "sqlite: insert source")
	}

	out := *src
	out.ID = id
	out.DateScraped = scraped
	return &out, nil
}

func (s *SQLiteStore) UpdateSourceMeta(ctx context.Context, id string, meta SourceMetaUpdate) error {
	set := []string{}
	args := []any{}
	if meta.Publisher != "" {
		set = append(set, "publisher = ?")
		args = append(args, meta.Publisher)
	}
	if meta.ArticleTitle != "" {
		set = append(set, "article_title = ?")
		args = append(args, meta.ArticleTitle)
	}
	if meta.DatePublished != nil && !meta.DatePublished.IsZero() {
		set = append(set, "date_published = ?")
		args = append(args, meta.DatePublished.String())
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sources SET %s WHERE id = ?`, strings.Join(set, ", ")),
		args...,
	)
	return eris.Wrapf(err, "sqlite: update source meta %s", id)
}

func (s *SQLiteStore) UpdateSourceAnnotations(ctx context.Context, id string, quotes map[string]string, bullets []string) error {
	set := []string{}
	args := []any{}
	if len(quotes) > 0 {
		b, err := json.Marshal(quotes)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal quotes")
		}
		set = append(set, "quoted_evidence = ?")
		args = append(args, string(b))
	}
	if len(bullets) > 0 {
		b, err := json.Marshal(bullets)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal bullets")
		}
		set = append(set, "summary_bullets = ?")
		args = append(args, string(b))
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)

	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE sources SET %s WHERE id = ?`, strings.Join(set, ", ")),
		args...,
	)
	return eris.Wrapf(err, "sqlite: update source annotations %s", id)
}

func (s *SQLiteStore) ListSources(ctx context.Context, incidentID string) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, url, publisher, article_title, date_published, cleaned_text, quoted_evidence, summary_bullets, date_scraped
		 FROM sources WHERE incident_id = ? ORDER BY date_scraped DESC`,
		incidentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		src, err := scanSQLiteSource(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		sources = append(sources, *src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: list sources iterate")
}

func (s *SQLiteStore) ReplaceSARSegments(ctx context.Context, incidentID string, segs []model.SARSegment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: replace sar begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sar_segments WHERE incident_id = ?`, incidentID); err != nil {
		return eris.Wrapf(err, "sqlite: delete sar for %s", incidentID)
	}
	for _, seg := range segs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sar_segments (id, incident_id, op_type, agency, started_at, ended_at, outcome)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), incidentID, seg.OpType, seg.Agency,
			dateText(seg.StartedAt), dateText(seg.EndedAt), seg.Outcome,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert sar for %s", incidentID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: replace sar commit")
}

func (s *SQLiteStore) ListSARSegments(ctx context.Context, incidentID string) ([]model.SARSegment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, incident_id, op_type, agency, started_at, ended_at, outcome
		 FROM sar_segments WHERE incident_id = ? ORDER BY started_at, op_type`,
		incidentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sar")
	}
	defer rows.Close()

	var segs []model.SARSegment
	for rows.Next() {
		var seg model.SARSegment
		var agency, outcome, started, ended sql.NullString
		if err := rows.Scan(&seg.ID, &seg.IncidentID, &seg.OpType, &agency, &started, &ended, &outcome); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sar")
		}
		seg.Agency = agency.String
		seg.Outcome = outcome.String
		seg.StartedAt = dateFromText(started)
		seg.EndedAt = dateFromText(ended)
		segs = append(segs, seg)
	}
	return segs, eris.Wrap(rows.Err(), "sqlite: list sar iterate")
}

// sqliteValue adapts a whitelisted update value to SQLite storage: lists
// become JSON text, dates become ISO strings.
func sqliteValue(col string, v any) any {
	if listColumns[col] {
		if list, ok := v.([]string); ok {
			b, err := json.Marshal(list)
			if err == nil {
				return string(b)
			}
		}
	}
	if t, ok := v.(time.Time); ok {
		return t.Format("2006-01-02")
	}
	return v
}

func dateText(d *model.Date) any {
	if d == nil || d.IsZero() {
		return nil
	}
	return d.String()
}

func dateFromText(s sql.NullString) *model.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", s.String)
	if err != nil {
		return nil
	}
	d := model.DateOf(t)
	return &d
}

func scanSQLiteIncident(row rowScanner) (*model.Incident, error) {
	var inc model.Incident
	var jurisdiction, location, peak, route, activity, eventType, cause, phase sql.NullString
	var isoCountry, adminArea, tzLocal sql.NullString
	var factors, namesAll, namesDec, namesRel, namesResp, namesSpoke, namesMed sql.NullString
	var start, end, death, recovery sql.NullString
	var multiAgency int

	err := row.Scan(
		&inc.ID, &jurisdiction, &location, &peak, &route, &activity, &eventType,
		&cause, &factors, &phase, &inc.NFatalities, &inc.NInjured, &inc.PartySize,
		&start, &end, &death, &recovery, &inc.TimeToRecoveryDays,
		&isoCountry, &adminArea, &tzLocal, &inc.Lat, &inc.Lon, &multiAgency,
		&namesAll, &namesDec, &namesRel, &namesResp, &namesSpoke, &namesMed,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inc.Jurisdiction = jurisdiction.String
	inc.LocationName = location.String
	inc.PeakName = peak.String
	inc.RouteName = route.String
	inc.Activity = activity.String
	inc.EventType = eventType.String
	inc.CausePrimary = cause.String
	inc.Phase = phase.String
	inc.ISOCountry = isoCountry.String
	inc.AdminArea = adminArea.String
	inc.TZLocal = tzLocal.String
	inc.MultiAgency = multiAgency != 0
	inc.DateEventStart = dateFromText(start)
	inc.DateEventEnd = dateFromText(end)
	inc.DateOfDeath = dateFromText(death)
	inc.DateRecovery = dateFromText(recovery)
	inc.ContributingFactors = listFromJSON(factors)
	inc.NamesAll = listFromJSON(namesAll)
	inc.NamesDeceased = listFromJSON(namesDec)
	inc.NamesRelatives = listFromJSON(namesRel)
	inc.NamesResponders = listFromJSON(namesResp)
	inc.NamesSpokespersons = listFromJSON(namesSpoke)
	inc.NamesMedics = listFromJSON(namesMed)
	return &inc, nil
}

func scanSQLiteSource(row rowScanner) (*model.Source, error) {
	var src model.Source
	var publisher, title, published, text, quotes, bullets sql.NullString

	err := row.Scan(
		&src.ID, &src.IncidentID, &src.URL, &publisher, &title, &published,
		&text, &quotes, &bullets, &src.DateScraped,
	)
	if err != nil {
		return nil, err
	}

	src.Publisher = publisher.String
	src.ArticleTitle = title.String
	src.CleanedText = text.String
	src.DatePublished = dateFromText(published)
	if quotes.Valid && quotes.String != "" {
		if err := json.Unmarshal([]byte(quotes.String), &src.QuotedEvidence); err != nil {
			return nil, eris.Wrap(err, "unmarshal quoted evidence")
		}
	}
	src.SummaryBullets = listFromJSON(bullets)
	return &src, nil
}

func listFromJSON(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil
	}
	return out
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}
