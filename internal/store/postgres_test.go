package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/deal-radar/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func dealRow(d model.Deal) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "dedupe_key", "hostname", "title", "url", "description",
		"canonical_name", "one_liner", "evidence_urls", "topic", "status",
		"score", "seen_count", "first_seen_at", "last_seen_at",
		"dismissed_reason", "dismissed_at", "created_at", "updated_at",
	})
	evidence := []byte("[]")
	if len(d.EvidenceURLs) > 0 {
		evidence = []byte(`["` + d.EvidenceURLs[0] + `"]`)
	}
	seen := d.SeenCount
	rows.AddRow(
		d.ID, d.DedupeKey, d.Hostname, d.Title, d.URL, d.Description,
		d.CanonicalName, d.OneLiner, evidence, d.Topic, d.Status,
		d.Score, &seen, d.FirstSeenAt, d.LastSeenAt,
		d.DismissedReason, d.DismissedAt, d.CreatedAt, d.UpdatedAt,
	)
	return rows
}

func TestPing(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertItem(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO radar_items`).
		WithArgs(pgxmock.AnyArg(), "abc123", "https://example.com/post", "Title", "Snippet",
			"vertical-saas", "example.com", "serper", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	inserted, err := s.InsertItem(ctx, model.RadarItem{
		URLHash:   "abc123",
		URL:       "https://example.com/post",
		Title:     "Title",
		Snippet:   "Snippet",
		Topic:     "vertical-saas",
		Hostname:  "example.com",
		Source:    "serper",
		FetchedAt: time.Now(),
	})
	require.NoError(t, err)
	assert.True(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertItem_Duplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO radar_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	inserted, err := s.InsertItem(context.Background(), model.RadarItem{URLHash: "dup"})
	require.NoError(t, err)
	assert.False(t, inserted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDealByKey(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	want := model.Deal{
		ID:           "deal-1",
		DedupeKey:    "ht:deadbeef",
		Hostname:     "example.com",
		Title:        "acme raises series a",
		URL:          "https://example.com/acme",
		EvidenceURLs: []string{"https://example.com/acme"},
		Topic:        "vertical-saas",
		Status:       model.DealStatusNew,
		SeenCount:    3,
		FirstSeenAt:  now,
		LastSeenAt:   now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	mock.ExpectQuery(`SELECT (.+) FROM deals WHERE dedupe_key`).
		WithArgs("ht:deadbeef").
		WillReturnRows(dealRow(want))

	got, err := s.GetDealByKey(context.Background(), "ht:deadbeef")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "deal-1", got.ID)
	assert.Equal(t, model.DealStatusNew, got.Status)
	assert.Equal(t, 3, got.SeenCount)
	assert.Equal(t, []string{"https://example.com/acme"}, got.EvidenceURLs)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDealByKey_Absent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM deals WHERE dedupe_key`).
		WithArgs("ht:missing").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := s.GetDealByKey(context.Background(), "ht:missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertDeal_Conflict(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO deals`).
		WithArgs(pgxmock.AnyArg(), "ht:deadbeef", "example.com", "acme", "https://example.com",
			"", "Acme", "", pgxmock.AnyArg(), "vertical-saas", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := s.InsertDeal(context.Background(), model.Deal{
		DedupeKey:     "ht:deadbeef",
		Hostname:      "example.com",
		Title:         "acme",
		URL:           "https://example.com",
		CanonicalName: "Acme",
		Topic:         "vertical-saas",
		FirstSeenAt:   time.Now(),
	})
	assert.ErrorIs(t, err, ErrDealExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSighting(t *testing.T) {
	s, mock := newMockStore(t)
	seenAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE deals`).
		WithArgs(seenAt, pgxmock.AnyArg(), "deal-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.RecordSighting(context.Background(), "deal-1", seenAt, []string{"https://a.com"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSighting_Unknown(t *testing.T) {
	s, mock := newMockStore(t)
	seenAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE deals`).
		WithArgs(seenAt, pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.RecordSighting(context.Background(), "nope", seenAt, nil)
	assert.ErrorIs(t, err, ErrDealNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviveDeal(t *testing.T) {
	s, mock := newMockStore(t)
	seenAt := time.Now().UTC()

	mock.ExpectExec(`UPDATE deals\s+SET status = 'new'`).
		WithArgs(seenAt, pgxmock.AnyArg(), "deal-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.ReviveDeal(context.Background(), "deal-1", seenAt, []string{"https://a.com"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWeeklyReport(t *testing.T) {
	s, mock := newMockStore(t)
	weekStart := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO weekly_reports`).
		WithArgs(pgxmock.AnyArg(), weekStart, "# Weekly Radar", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertWeeklyReport(context.Background(), model.WeeklyReport{
		WeekStart: weekStart,
		Markdown:  "# Weekly Radar",
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCounts(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deals WHERE jsonb_array_length`).
		WithArgs(20).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deals WHERE seen_count IS NULL`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))

	over, err := s.CountDealsWithEvidenceOver(ctx, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, over)

	missing, err := s.CountDealsMissingSeenCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, missing)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestDealSighting_Empty(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT MAX\(last_seen_at\) FROM deals`).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow((*time.Time)(nil)))

	latest, err := s.LatestDealSighting(context.Background())
	require.NoError(t, err)
	assert.Nil(t, latest)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountFallbackRevivalCandidates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM deals\s+WHERE status IN`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))

	n, err := s.CountFallbackRevivalCandidates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDismissDeal(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`SELECT deal_dismiss`).
		WithArgs("deal-1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	err := s.DismissDeal(context.Background(), "deal-1", "not a fit")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDismissDeal_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`SELECT deal_dismiss`).
		WithArgs("nope", pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "P0001", Message: "deal not found: nope"})

	err := s.DismissDeal(context.Background(), "nope", "")
	assert.ErrorIs(t, err, ErrDealNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestShortlistAndArchive(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(`SELECT deal_shortlist`).
		WithArgs("deal-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`SELECT deal_archive`).
		WithArgs("deal-1").
		WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.ShortlistDeal(ctx, "deal-1"))
	require.NoError(t, s.ArchiveDeal(ctx, "deal-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDeals_Filtered(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT (.+) FROM deals WHERE true AND status = \$1 AND topic = \$2`).
		WithArgs("shortlisted", "vertical-saas", 50).
		WillReturnRows(dealRow(model.Deal{
			ID:          "deal-1",
			DedupeKey:   "ht:x",
			Status:      model.DealStatusShortlisted,
			Topic:       "vertical-saas",
			SeenCount:   2,
			FirstSeenAt: now,
			LastSeenAt:  now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}))

	deals, err := s.ListDeals(context.Background(), DealFilter{
		Status: model.DealStatusShortlisted,
		Topic:  "vertical-saas",
		Limit:  50,
	})
	require.NoError(t, err)
	require.Len(t, deals, 1)
	assert.Equal(t, model.DealStatusShortlisted, deals[0].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}
