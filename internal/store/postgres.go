package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-radar/internal/db"
	"github.com/sells-group/deal-radar/internal/model"
)

// PostgresStore implements the store capabilities using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
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

func (s *PostgresStore) Ingest() IngestStore     { return s }
func (s *PostgresStore) Health() HealthStore     { return s }
func (s *PostgresStore) Operator() OperatorStore { return s }

const postgresMigration = `
CREATE TABLE IF NOT EXISTS radar_items (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	url_hash   TEXT NOT NULL UNIQUE,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	snippet    TEXT NOT NULL DEFAULT '',
	topic      TEXT NOT NULL DEFAULT '',
	hostname   TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT 'serper',
	fetched_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_radar_items_fetched_at ON radar_items(fetched_at);
CREATE INDEX IF NOT EXISTS idx_radar_items_topic ON radar_items(topic);

CREATE TABLE IF NOT EXISTS deals (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dedupe_key        TEXT NOT NULL UNIQUE,
	hostname          TEXT NOT NULL DEFAULT '',
	title             TEXT NOT NULL DEFAULT '',
	url               TEXT NOT NULL DEFAULT '',
	description       TEXT NOT NULL DEFAULT '',
	canonical_name    TEXT NOT NULL DEFAULT '',
	one_liner         TEXT NOT NULL DEFAULT '',
	evidence_urls     JSONB NOT NULL DEFAULT '[]',
	topic             TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'new'
	                  CHECK (status IN ('new', 'shortlisted', 'dismissed', 'archived')),
	score             DOUBLE PRECISION,
	seen_count        INTEGER DEFAULT 1,
	first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_seen_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	dismissed_reason  TEXT,
	dismissed_at      TIMESTAMPTZ,
	status_changed_at TIMESTAMPTZ,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_deals_status ON deals(status);
CREATE INDEX IF NOT EXISTS idx_deals_topic ON deals(topic);
CREATE INDEX IF NOT EXISTS idx_deals_last_seen_at ON deals(last_seen_at);

CREATE TABLE IF NOT EXISTS weekly_reports (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	week_start DATE NOT NULL UNIQUE,
	markdown   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION deal_dismiss(p_id TEXT, p_reason TEXT DEFAULT NULL) RETURNS void AS $$
BEGIN
	UPDATE deals
	SET status = 'dismissed',
	    dismissed_reason = p_reason,
	    dismissed_at = now(),
	    status_changed_at = now(),
	    updated_at = now()
	WHERE id = p_id;
	IF NOT FOUND THEN
		RAISE EXCEPTION 'deal not found: %', p_id;
	END IF;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION deal_shortlist(p_id TEXT) RETURNS void AS $$
BEGIN
	UPDATE deals
	SET status = 'shortlisted',
	    status_changed_at = now(),
	    updated_at = now()
	WHERE id = p_id;
	IF NOT FOUND THEN
		RAISE EXCEPTION 'deal not found: %', p_id;
	END IF;
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION deal_archive(p_id TEXT) RETURNS void AS $$
BEGIN
	UPDATE deals
	SET status = 'archived',
	    status_changed_at = now(),
	    updated_at = now()
	WHERE id = p_id;
	IF NOT FOUND THEN
		RAISE EXCEPTION 'deal not found: %', p_id;
	END IF;
END;
$$ LANGUAGE plpgsql;
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) InsertItem(ctx context.Context, item model.RadarItem) (bool, error) {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO radar_items (id, url_hash, url, title, snippet, topic, hostname, source, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (url_hash) DO NOTHING`,
		item.ID, item.URLHash, item.URL, item.Title, item.Snippet,
		item.Topic, item.Hostname, item.Source, item.FetchedAt,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: insert radar item %s", item.URLHash)
	}
	return tag.RowsAffected() > 0, nil
}

const dealColumns = `id, dedupe_key, hostname, title, url, description, canonical_name, one_liner,
	evidence_urls, topic, status, score, seen_count, first_seen_at, last_seen_at,
	dismissed_reason, dismissed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeal(row rowScanner) (*model.Deal, error) {
	var d model.Deal
	var evidenceJSON []byte
	var seenCount *int

	err := row.Scan(
		&d.ID, &d.DedupeKey, &d.Hostname, &d.Title, &d.URL, &d.Description,
		&d.CanonicalName, &d.OneLiner, &evidenceJSON, &d.Topic, &d.Status,
		&d.Score, &seenCount, &d.FirstSeenAt, &d.LastSeenAt,
		&d.DismissedReason, &d.DismissedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seenCount != nil {
		d.SeenCount = *seenCount
	}
	if len(evidenceJSON) > 0 {
		if err := json.Unmarshal(evidenceJSON, &d.EvidenceURLs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal evidence urls")
		}
	}
	return &d, nil
}

func (s *PostgresStore) GetDealByKey(ctx context.Context, dedupeKey string) (*model.Deal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dealColumns+` FROM deals WHERE dedupe_key = $1`,
		dedupeKey,
	)
	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get deal by key %s", dedupeKey)
	}
	return d, nil
}

func (s *PostgresStore) InsertDeal(ctx context.Context, deal model.Deal) error {
	if deal.ID == "" {
		deal.ID = uuid.New().String()
	}

	evidenceJSON, err := json.Marshal(deal.EvidenceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence urls")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO deals (id, dedupe_key, hostname, title, url, description, canonical_name,
		                    one_liner, evidence_urls, topic, status, score, seen_count,
		                    first_seen_at, last_seen_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 'new', $11, 1, $12, $12, $12, $12)`,
		deal.ID, deal.DedupeKey, deal.Hostname, deal.Title, deal.URL, deal.Description,
		deal.CanonicalName, deal.OneLiner, evidenceJSON, deal.Topic, deal.Score,
		deal.FirstSeenAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDealExists
		}
		return eris.Wrapf(err, "postgres: insert deal %s", deal.DedupeKey)
	}
	return nil
}

func (s *PostgresStore) RecordSighting(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error {
	evidenceJSON, err := json.Marshal(evidenceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence urls")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE deals
		 SET last_seen_at = $1,
		     seen_count = COALESCE(seen_count, 0) + 1,
		     evidence_urls = $2,
		     updated_at = $1
		 WHERE id = $3`,
		seenAt, evidenceJSON, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: record sighting %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

func (s *PostgresStore) ReviveDeal(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error {
	evidenceJSON, err := json.Marshal(evidenceURLs)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal evidence urls")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE deals
		 SET status = 'new',
		     dismissed_reason = NULL,
		     dismissed_at = NULL,
		     status_changed_at = NULL,
		     last_seen_at = $1,
		     seen_count = COALESCE(seen_count, 0) + 1,
		     evidence_urls = $2,
		     updated_at = $1
		 WHERE id = $3`,
		seenAt, evidenceJSON, dealID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: revive deal %s", dealID)
	}
	if tag.RowsAffected() == 0 {
		return ErrDealNotFound
	}
	return nil
}

func (s *PostgresStore) DealsSeenBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Deal, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+dealColumns+` FROM deals
		 WHERE last_seen_at >= $1 AND last_seen_at < $2
		 ORDER BY topic, last_seen_at DESC
		 LIMIT $3`,
		from, to, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: deals seen between")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: deals seen between iterate")
}

func (s *PostgresStore) UpsertWeeklyReport(ctx context.Context, report model.WeeklyReport) error {
	id := report.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO weekly_reports (id, week_start, markdown, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 ON CONFLICT (week_start) DO UPDATE SET markdown = $3, updated_at = $4`,
		id, report.WeekStart, report.Markdown, now,
	)
	return eris.Wrap(err, "postgres: upsert weekly report")
}

// Health check queries

func (s *PostgresStore) CountDealsWithEvidenceOver(ctx context.Context, ceiling int) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM deals WHERE jsonb_array_length(evidence_urls) > $1`,
		ceiling,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count deals with evidence over ceiling")
}

func (s *PostgresStore) CountDealsMissingSeenCount(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM deals WHERE seen_count IS NULL`,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count deals missing seen_count")
}

func (s *PostgresStore) LatestDealSighting(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(last_seen_at) FROM deals`,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest deal sighting")
	}
	return latest, nil
}

func (s *PostgresStore) CountFallbackRevivalCandidates(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM deals
		 WHERE status IN ('dismissed', 'archived')
		   AND status_changed_at IS NOT NULL
		   AND last_seen_at > status_changed_at`,
	).Scan(&count)
	return count, eris.Wrap(err, "postgres: count fallback revival candidates")
}

// Operator status transitions, routed through the stored procedures so the
// database remains the single arbiter of human-driven mutations.

func (s *PostgresStore) DismissDeal(ctx context.Context, dealID, reason string) error {
	var reasonArg *string
	if reason != "" {
		reasonArg = &reason
	}
	_, err := s.pool.Exec(ctx, `SELECT deal_dismiss($1, $2)`, dealID, reasonArg)
	return wrapProcErr(err, "deal_dismiss", dealID)
}

func (s *PostgresStore) ShortlistDeal(ctx context.Context, dealID string) error {
	_, err := s.pool.Exec(ctx, `SELECT deal_shortlist($1)`, dealID)
	return wrapProcErr(err, "deal_shortlist", dealID)
}

func (s *PostgresStore) ArchiveDeal(ctx context.Context, dealID string) error {
	_, err := s.pool.Exec(ctx, `SELECT deal_archive($1)`, dealID)
	return wrapProcErr(err, "deal_archive", dealID)
}

// wrapProcErr maps the procedures' raise_exception fault onto ErrDealNotFound.
func wrapProcErr(err error, proc, dealID string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "P0001" {
		return ErrDealNotFound
	}
	return eris.Wrapf(err, "postgres: %s %s", proc, dealID)
}

func (s *PostgresStore) ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error) {
	query := `SELECT ` + dealColumns + ` FROM deals WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Topic != "" {
		query += fmt.Sprintf(` AND topic = $%d`, argIdx)
		args = append(args, filter.Topic)
		argIdx++
	}
	query += ` ORDER BY last_seen_at DESC`

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
		return nil, eris.Wrap(err, "postgres: list deals")
	}
	defer rows.Close()

	var deals []model.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan deal")
		}
		deals = append(deals, *d)
	}
	return deals, eris.Wrap(rows.Err(), "postgres: list deals iterate")
}
