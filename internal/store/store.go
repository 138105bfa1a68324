// Package store persists radar items, deals, and weekly reports.
//
// The write surface is split into two capability sets that are never unified:
// IngestStore (what the automated pipeline may do: insert rows, bump
// recurrence counters, revive) and OperatorStore (what humans may do: the
// dismiss/shortlist/archive status transitions). The split is the enforcement
// of the rule that automated ingestion never dismisses, shortlists, or
// archives a deal.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-radar/internal/model"
)

// ErrDealExists is returned by InsertDeal when another row already holds the
// candidate's dedupe key. Callers are expected to fall through to the
// recurrence/revival path rather than treat this as a failure.
var ErrDealExists = eris.New("store: deal already exists")

// ErrDealNotFound is returned when a deal id does not match any row.
var ErrDealNotFound = eris.New("store: deal not found")

// IngestStore is the ingestion-write capability.
type IngestStore interface {
	// InsertItem appends one observation to the radar_items log. Returns
	// false when the url_hash was already recorded; the existing row is
	// left untouched either way.
	InsertItem(ctx context.Context, item model.RadarItem) (bool, error)

	// GetDealByKey returns the deal holding dedupeKey, or nil when absent.
	GetDealByKey(ctx context.Context, dedupeKey string) (*model.Deal, error)

	// InsertDeal creates a new deal with status "new" and seen_count 1.
	// Returns ErrDealExists on a dedupe_key conflict.
	InsertDeal(ctx context.Context, deal model.Deal) error

	// RecordSighting bumps seen_count, advances last_seen_at, and replaces
	// the evidence list. Status is not touched.
	RecordSighting(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error

	// ReviveDeal is RecordSighting plus flipping the status back to "new"
	// and clearing the dismissal fields.
	ReviveDeal(ctx context.Context, dealID string, seenAt time.Time, evidenceURLs []string) error

	// DealsSeenBetween lists deals with last_seen_at in [from, to), newest
	// first, for the weekly digest.
	DealsSeenBetween(ctx context.Context, from, to time.Time, limit int) ([]model.Deal, error)

	// UpsertWeeklyReport inserts the report or replaces the markdown of the
	// existing row for the same week_start.
	UpsertWeeklyReport(ctx context.Context, report model.WeeklyReport) error
}

// HealthStore is the read-only capability behind the post-run health check.
type HealthStore interface {
	// CountDealsWithEvidenceOver counts deals whose evidence list exceeds
	// the ceiling, a signal of an over-broad dedupe key.
	CountDealsWithEvidenceOver(ctx context.Context, ceiling int) (int, error)

	// CountDealsMissingSeenCount counts deals with a NULL seen_count,
	// expected to be zero outside of migration gaps.
	CountDealsMissingSeenCount(ctx context.Context) (int, error)

	// LatestDealSighting returns the most recent last_seen_at across all
	// deals, or nil when the table is empty.
	LatestDealSighting(ctx context.Context) (*time.Time, error)

	// CountFallbackRevivalCandidates counts deals still dismissed/archived
	// whose last_seen_at passed the status-change timestamp: sightings that
	// should have revived the row but did not, e.g. because a run died
	// mid-flight or raced a manual transition.
	CountFallbackRevivalCandidates(ctx context.Context) (int, error)
}

// DealFilter specifies criteria for listing deals.
type DealFilter struct {
	Status model.DealStatus `json:"status,omitempty"`
	Topic  string           `json:"topic,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// OperatorStore is the human-driven status-mutation capability. The Postgres
// backend routes every transition through the deal_dismiss / deal_shortlist /
// deal_archive stored procedures; each fails with ErrDealNotFound rather than
// silently no-oping on an unknown id.
type OperatorStore interface {
	DismissDeal(ctx context.Context, dealID, reason string) error
	ShortlistDeal(ctx context.Context, dealID string) error
	ArchiveDeal(ctx context.Context, dealID string) error
	ListDeals(ctx context.Context, filter DealFilter) ([]model.Deal, error)
}

// Backend bundles the capability views of one database plus lifecycle
// management. Components receive only the capability they need.
type Backend interface {
	Ingest() IngestStore
	Health() HealthStore
	Operator() OperatorStore

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
