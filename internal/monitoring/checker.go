package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/store"
)

// HealthReport is a point-in-time view of store invariants. Violations are
// warnings, never run failures; the numbers point at dedupe keys that got too
// broad, migration gaps, and revivals the application path missed.
type HealthReport struct {
	EvidenceOverCeiling       int        `json:"evidence_over_ceiling"`
	SeenCountNull             int        `json:"seen_count_null"`
	FallbackRevivalCandidates int        `json:"fallback_revival_candidates"`
	LatestSighting            *time.Time `json:"latest_sighting,omitempty"`
	Stale                     bool       `json:"stale"`
	CheckedAt                 time.Time  `json:"checked_at"`
}

// Healthy reports whether no invariant tripped.
func (r *HealthReport) Healthy() bool {
	return r.EvidenceOverCeiling == 0 &&
		r.SeenCountNull == 0 &&
		r.FallbackRevivalCandidates == 0 &&
		!r.Stale
}

// Checker evaluates store invariants after runs and on a timer.
type Checker struct {
	health          store.HealthStore
	evidenceCeiling int
	staleAfter      time.Duration
}

// NewChecker creates a health checker. evidenceCeiling bounds the evidence
// list length per deal; staleAfter bounds how old the newest sighting may be
// before the pipeline is considered stalled.
func NewChecker(health store.HealthStore, evidenceCeiling int, staleAfter time.Duration) *Checker {
	if evidenceCeiling <= 0 {
		evidenceCeiling = 20
	}
	if staleAfter <= 0 {
		staleAfter = 48 * time.Hour
	}
	return &Checker{health: health, evidenceCeiling: evidenceCeiling, staleAfter: staleAfter}
}

// Check gathers the invariant counters. Fallback revival candidates are
// reported only; the rows are left for an operator to inspect, since an
// automated fix here would race the manual transitions it is detecting.
func (c *Checker) Check(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{CheckedAt: time.Now().UTC()}

	over, err := c.health.CountDealsWithEvidenceOver(ctx, c.evidenceCeiling)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count evidence over ceiling")
	}
	report.EvidenceOverCeiling = over

	missing, err := c.health.CountDealsMissingSeenCount(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count missing seen_count")
	}
	report.SeenCountNull = missing

	candidates, err := c.health.CountFallbackRevivalCandidates(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count fallback revival candidates")
	}
	report.FallbackRevivalCandidates = candidates

	latest, err := c.health.LatestDealSighting(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: latest sighting")
	}
	report.LatestSighting = latest
	if latest != nil && time.Since(*latest) > c.staleAfter {
		report.Stale = true
	}

	c.logReport(report)
	return report, nil
}

func (c *Checker) logReport(report *HealthReport) {
	log := zap.L().With(zap.String("component", "monitoring.checker"))
	if report.Healthy() {
		log.Info("health check passed")
		return
	}
	if report.EvidenceOverCeiling > 0 {
		log.Warn("deals exceed evidence ceiling",
			zap.Int("count", report.EvidenceOverCeiling),
			zap.Int("ceiling", c.evidenceCeiling),
		)
	}
	if report.SeenCountNull > 0 {
		log.Warn("deals missing seen_count", zap.Int("count", report.SeenCountNull))
	}
	if report.FallbackRevivalCandidates > 0 {
		log.Warn("dismissed or archived deals sighted after their status change",
			zap.Int("count", report.FallbackRevivalCandidates),
		)
	}
	if report.Stale {
		log.Warn("no recent sightings",
			zap.Timep("latest_sighting", report.LatestSighting),
			zap.Duration("stale_after", c.staleAfter),
		)
	}
}

// Run starts a periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 6 * time.Hour
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting health checker", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("health checker stopped")
			return
		case <-ticker.C:
			if _, err := c.Check(ctx); err != nil {
				log.Error("health check failed", zap.Error(err))
			}
		}
	}
}
