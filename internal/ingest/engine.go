package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/store"
)

// evidenceCap bounds the evidence list per deal. Oldest entries fall off
// first when a new sighting would push past it.
const evidenceCap = 20

// Outcome classifies what Process did with one candidate.
type Outcome int

const (
	OutcomeNewDeal Outcome = iota
	OutcomeRecurrence
	OutcomeRevived
)

// Engine folds candidates into the store: append the observation, then either
// create a deal, bump the existing one, or revive a dead one.
type Engine struct {
	store store.IngestStore
}

func NewEngine(st store.IngestStore) *Engine {
	return &Engine{store: st}
}

// Process handles one candidate. The radar item insert and the deal upsert
// are two steps on purpose: the observation log keeps every sighting even
// when the deal row already existed.
func (e *Engine) Process(ctx context.Context, cand Candidate, now time.Time) (Outcome, bool, error) {
	inserted, err := e.store.InsertItem(ctx, cand.Item)
	if err != nil {
		return 0, false, eris.Wrap(err, "ingest: insert item")
	}

	outcome, err := e.upsertDeal(ctx, cand.Deal, now)
	if err != nil {
		return 0, inserted, err
	}
	return outcome, inserted, nil
}

func (e *Engine) upsertDeal(ctx context.Context, deal model.Deal, now time.Time) (Outcome, error) {
	existing, err := e.store.GetDealByKey(ctx, deal.DedupeKey)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: get deal")
	}

	if existing == nil {
		err := e.store.InsertDeal(ctx, deal)
		if err == nil {
			return OutcomeNewDeal, nil
		}
		if !errors.Is(err, store.ErrDealExists) {
			return 0, eris.Wrap(err, "ingest: insert deal")
		}
		// A concurrent insert won the race; re-read and fall through to the
		// sighting path.
		existing, err = e.store.GetDealByKey(ctx, deal.DedupeKey)
		if err != nil {
			return 0, eris.Wrap(err, "ingest: get deal after conflict")
		}
		if existing == nil {
			return 0, eris.Errorf("ingest: deal %s vanished after conflict", deal.DedupeKey)
		}
	}

	evidence := mergeEvidence(existing.EvidenceURLs, deal.EvidenceURLs)

	if existing.Status.Revivable() {
		if err := e.store.ReviveDeal(ctx, existing.ID, now, evidence); err != nil {
			return 0, eris.Wrap(err, "ingest: revive deal")
		}
		zap.L().Info("deal revived",
			zap.String("deal_id", existing.ID),
			zap.String("previous_status", string(existing.Status)),
		)
		return OutcomeRevived, nil
	}

	if err := e.store.RecordSighting(ctx, existing.ID, now, evidence); err != nil {
		return 0, eris.Wrap(err, "ingest: record sighting")
	}
	return OutcomeRecurrence, nil
}

// mergeEvidence unions the existing list with the new sighting's URLs,
// preserving order, newest last. When the union exceeds the cap the oldest
// entries are dropped.
func mergeEvidence(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, u := range existing {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}
	for _, u := range incoming {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		merged = append(merged, u)
	}
	if len(merged) > evidenceCap {
		merged = merged[len(merged)-evidenceCap:]
	}
	return merged
}
