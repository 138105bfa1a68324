package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/deal-radar/internal/model"
)

// SQLiteStore implements the store capabilities using modernc.org/sqlite,
// intended for local development and tests. SQLite has no stored procedures,
// so the operator transitions are guarded UPDATE statements with the same
// fail-on-unknown-id contract as the Postgres procedures.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ingest() IngestStore     { return s }
func (s *SQLiteStore) Health() HealthStore     { return s }
func (s *SQLiteStore) Operator() OperatorStore { return s }

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS radar_items (
	id         TEXT PRIMARY KEY,
	url_hash   TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	snippet    TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL DEFAULT '',
	hostname   TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT 'serper',
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_radar_items_fetched_at ON radar_items(fetched_at);

CREATE TABLE IF NOT EXISTS deals (
	id                TEXT PRIMARY KEY,
	dedupe_key        TEXT NOT NULL UNIQUE,
	hostname          TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	canonical_name    TEXT NOT NULL DEFAULT '',
	one_liner         TEXT NOT NULL DEFAULT '',
	evidence_urls     TEXT NOT NULL DEFAULT '[]',
	topic             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new'
	                  CHECK (status IN ('new', 'shortlisted', 'dismissed', 'archived')),
	score             REAL,
	seen_count        INTEGER DEFAULT 1,
	first_seen_at     DATETIME NOT NULL,
	last_seen_at      DATETIME NOT NULL,
	dismissed_reason  TEXT,
	dismissed_at      DATETIME,
	status_changed_at DATETIME,
	created_at        DATETIME NOT NULL,
	updated_at        DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);
CREATE INDEX IF NOT EXISTS idx_deals_last_seen_at ON deals(last_seen_at);

CREATE TABLE IF NOT EXISTS weekly_reports (
	id         TEXT PRIMARY KEY,
	week_start DATE NOT NULL UNIQUE,
	markdown   TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertItem(ctx context.Context, item model.RadarItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO radar_items (id, url_hash, url, title, snippet, topic, hostname, source, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url_hash) DO NOTHING`,
		item.ID, item.URLHash, item.URL, item.Title, item.Snippet,
		item.Topic, item.Hostname, item.Source, item.FetchedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: insert radar item %s", item.URLHash)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func scanSQLiteDeal(row rowScanner) (*model.Deal, error) {
	var d model.Deal
	var evidenceJSON string
	var seenCount sql.NullInt64
	var score sql.NullFloat64
	var dismissedReason sql.NullString
	var dismissedAt sql.NullTime

	err := row.Scan(
		&d.ID, &d.DedupeKey, &d.Hostname, &d.Title, &d.URL, &d.Description,
		&d.CanonicalName, &d.OneLiner, &evidenceJSON, &d.Topic, &d.Status,
		&score, &seenCount, &d.FirstSeenAt, &d.LastSeenAt,
		&dismissedReason, &dismissedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seenCount.Valid {
		d.SeenCount = int(seenCount.Int64)
	}
	if score.Valid {
		d.Score = &score.Float64
	}
	if dismissedReason.Valid {
		d.DismissedReason = &dismissedReason.String
	}
	if dismissedAt.Valid {
		d.DismissedAt = &dismissedAt.Time
	}
	if evidenceJSON != "" {
		if err := json.Unmarshal([]byte(evidenceJSON), &d.EvidenceURLs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal evidence urls")
		}
	}
	return &d, nil
}

func (s *SQLiteStore) GetDealByKey(ctx context.Context, dedupeKey string) (*model.Deal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE dedupe_key = ?`,
		dedupeKey,
	)
	d, err := scanSQLiteDeal(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get deal by key %s", dedupeKey)
	}
	return d, nil
}

func (s *SQLiteStore) InsertDeal(ctx context.Context, deal model.Deal) error {
	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}

	evidenceJSON, err := json.Marshal(deal.EvidenceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence urls")
	}

	var score any
	if deal.Score != nil {
		score = *deal.Score
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO deals (id, dedupe_key, hostname, title, url, description, canonical_name,
		                    one_liner, evidence_urls, topic, status, score, seen_count,
		                    first_seen_at, last_seen_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'new', ?, 1, ?, ?, ?, ?)`,
		deal.ID, deal.DedupeKey, deal.Hostname, deal.Title, deal.URL, deal.Description,
		deal.CanonicalName, deal.OneLiner, string(evidenceJSON), deal.Topic, score,
		deal.FirstSeenAt, deal.FirstSeenAt, deal.FirstSeenAt, deal.FirstSeenAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDealExists
		}
		return eris.Wrapf(err, "sqlite: insert deal %s", deal.DedupeKey)
	}
	return nil
}

func (s *SQLiteStore) RecordSighting(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error {
	evidenceJSON, err := json.Marshal(evidenceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE deals
		 SET last_seen_at = ?,
		     seen_count = COALESCE(seen_count, 0) + 1,
		     evidence_urls = ?,
		     updated_at = ?
		 WHERE id = ?`,
		seenAt, string(evidenceJSON), seenAt, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: record sighting %s", dealID)
	}
	return requireRow(res, nil)
}

func (s *SQLiteStore) ReviveDeal(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error {
	evidenceJSON, err := json.Marshal(evidenceURLs)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal evidence urls")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE deals
		 SET status = 'new',
		     dismissed_reason = NULL,
		     dismissed_at = NULL,
		     status_changed_at = NULL,
		     last_seen_at = ?,
		     seen_count = COALESCE(seen_count, 0) + 1,
		     evidence_urls = ?,
		     updated_at = ?
		 WHERE id = ?`,
		seenAt, string(evidenceJSON), seenAt, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: revive deal %s", dealID)
	}
	return requireRow(res, nil)
}

func (s *SQLiteStore) DealsSeenBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+dealColumns+` FROM deals
		 WHERE last_seen_at >= ? AND last_seen_at < ?
		 ORDER BY topic, last_seen_at DESC
		 LIMIT ?`,
		from, to, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: deals seen between")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanSQLiteDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: deals seen between iterate")
}

func (s *SQLiteStore) UpsertWeeklyReport(ctx context.Context, report model.WeeklyReport) error {
	id := report.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO weekly_reports (id, week_start, markdown, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (week_start) DO UPDATE SET markdown = excluded.markdown, updated_at = excluded.updated_at`,
		id, report.WeekStart, report.Markdown, now, now,
	)
	return eris.Wrap(err, "sqlite: upsert weekly report")
}

func (s *SQLiteStore) CountDealsWithEvidenceOver(ctx context.Context, ceiling int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE json_array_length(evidence_urls) > ?`,
		ceiling,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count deals with evidence over ceiling")
}

func (s *SQLiteStore) CountDealsMissingSeenCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals WHERE seen_count IS NULL`,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count deals missing seen_count")
}

func (s *SQLiteStore) LatestDealSighting(ctx context.Context) (*time.Time, error) {
	var latest sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(last_seen_at) FROM deals`,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest deal sighting")
	}
	if !latest.Valid {
		return nil, nil
	}
	return &latest.Time, nil
}

func (s *SQLiteStore) CountFallbackRevivalCandidates(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM deals
		 WHERE status IN ('dismissed', 'archived')
		   AND status_changed_at IS NOT NULL
		   AND last_seen_at > status_changed_at`,
	).Scan(&count)
	return count, eris.Wrap(err, "sqlite: count fallback revival candidates")
}

func (s *SQLiteStore) DismissDeal(ctx context.Context, dealID, reason string) error {
	var reasonArg any
	if reason != "" {
		reasonArg = reason
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals
		 SET status = 'dismissed', dismissed_reason = ?, dismissed_at = ?,
		     status_changed_at = ?, updated_at = ?
		 WHERE id = ?`,
		reasonArg, now, now, now, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: dismiss deal %s", dealID)
	}
	return requireRow(res, nil)
}

func (s *SQLiteStore) ShortlistDeal(ctx context.Context, dealID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET status = 'shortlisted', status_changed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: shortlist deal %s", dealID)
	}
	return requireRow(res, nil)
}

func (s *SQLiteStore) ArchiveDeal(ctx context.Context, dealID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE deals SET status = 'archived', status_changed_at = ?, updated_at = ? WHERE id = ?`,
		now, now, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: archive deal %s", dealID)
	}
	return requireRow(res, nil)
}

func (s *SQLiteStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE true`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Topic != "" {
		query += ` AND topic = ?`
		args = append(args, filter.Topic)
	}
	query += ` ORDER BY last_seen_at DESC`

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
		return nil, eris.Wrap(err, "sqlite: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanSQLiteDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "sqlite: list deals iterate")
}

// requireRow converts a zero-row UPDATE into ErrDealNotFound.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return ErrDealNotFound
	}
	return nil
}
