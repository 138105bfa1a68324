package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/monitoring"
)

// Runner drives one complete scan: fetch, normalize, upsert, health check.
type Runner struct {
	fetcher *Fetcher
	engine  *Engine
	checker *monitoring.Checker
}

func NewRunner(fetcher *Fetcher, engine *Engine, checker *monitoring.Checker) *Runner {
	return &Runner{fetcher: fetcher, engine: engine, checker: checker}
}

// Run executes the scan. The returned summary is valid even when err is
// non-nil, so callers can emit it unconditionally. Only context cancellation
// and a dead store are fatal; per-query and per-candidate failures are
// counted and skipped.
func (r *Runner) Run(ctx context.Context, topics []model.Topic) (monitoring.RunSummary, error) {
	log := zap.L().With(zap.String("component", "ingest.runner"))
	now := time.Now().UTC()
	stats := monitoring.NewRunStats(now)

	queries := 0
	for _, t := range topics {
		queries += len(t.Queries)
	}
	log.Info("scan starting",
		zap.Int("topics", len(topics)),
		zap.Int("queries", queries),
	)

	hits := r.fetcher.Fetch(ctx, topics, stats)
	if err := ctx.Err(); err != nil {
		return r.abort(log, stats, err)
	}

	for _, hit := range hits {
		cand, err := BuildCandidate(hit, now)
		if err != nil {
			stats.IncDropped()
			log.Debug("candidate dropped", zap.String("url", hit.URL), zap.Error(err))
			continue
		}

		outcome, inserted, err := r.engine.Process(ctx, *cand, now)
		if err != nil {
			if ctx.Err() != nil {
				return r.abort(log, stats, ctx.Err())
			}
			stats.IncErrors()
			log.Warn("upsert failed", zap.String("dedupe_key", cand.Deal.DedupeKey), zap.Error(err))
			continue
		}

		if inserted {
			stats.IncUpserted()
		}
		switch outcome {
		case OutcomeNewDeal:
			stats.IncNewDeal()
		case OutcomeRecurrence:
			stats.IncRecurrence()
		case OutcomeRevived:
			stats.IncRevived()
		}
	}

	var health *monitoring.HealthReport
	if r.checker != nil {
		var err error
		health, err = r.checker.Check(ctx)
		if err != nil {
			stats.IncErrors()
			log.Warn("health check failed", zap.Error(err))
			health = nil
		}
	}

	summary := stats.Summarize(time.Now().UTC(), health)
	log.Info("scan complete", summaryFields(summary)...)
	return summary, nil
}

// abort freezes and logs the summary before returning the fatal error, so
// runs killed by the wall-clock ceiling or a signal still report their
// counters.
func (r *Runner) abort(log *zap.Logger, stats *monitoring.RunStats, err error) (monitoring.RunSummary, error) {
	summary := stats.Summarize(time.Now().UTC(), nil)
	fields := append(summaryFields(summary), zap.Error(err))
	log.Warn("scan aborted", fields...)
	return summary, err
}

func summaryFields(summary monitoring.RunSummary) []zap.Field {
	return []zap.Field{
		zap.Int("fetched", summary.Fetched),
		zap.Int("upserted", summary.Upserted),
		zap.Int("new_deals", summary.NewDeals),
		zap.Int("recurrences", summary.Recurrences),
		zap.Int("revived", summary.Revived),
		zap.Int("errors", summary.Errors),
		zap.Int("dropped", summary.Dropped),
		zap.Float64("elapsed_secs", summary.ElapsedSecs),
	}
}
