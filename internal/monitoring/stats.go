// Package monitoring accumulates per-run counters and checks store invariants
// after each scan.
package monitoring

import (
	"sync"
	"time"
)

// RunStats collects counters during a scan run. All methods are safe for
// concurrent use; the fetch workers and the upsert loop both write to it.
type RunStats struct {
	mu sync.Mutex

	fetched     int
	upserted    int
	newDeals    int
	recurrences int
	revived     int
	errors      int
	dropped     int

	startedAt time.Time
}

// NewRunStats starts the run clock.
func NewRunStats(startedAt time.Time) *RunStats {
	return &RunStats{startedAt: startedAt}
}

// AddFetched records n raw search hits returned by the provider.
func (s *RunStats) AddFetched(n int) {
	s.mu.Lock()
	s.fetched += n
	s.mu.Unlock()
}

// IncUpserted records one radar item written to the observation log.
func (s *RunStats) IncUpserted() {
	s.mu.Lock()
	s.upserted++
	s.mu.Unlock()
}

// IncNewDeal records one deal created.
func (s *RunStats) IncNewDeal() {
	s.mu.Lock()
	s.newDeals++
	s.mu.Unlock()
}

// IncRecurrence records one sighting of an already-known deal.
func (s *RunStats) IncRecurrence() {
	s.mu.Lock()
	s.recurrences++
	s.mu.Unlock()
}

// IncRevived records one dismissed or archived deal flipped back to new.
func (s *RunStats) IncRevived() {
	s.mu.Lock()
	s.revived++
	s.mu.Unlock()
}

// IncErrors records one failed query or upsert. Individual failures never
// abort the run; they surface here instead.
func (s *RunStats) IncErrors() {
	s.mu.Lock()
	s.errors++
	s.mu.Unlock()
}

// IncDropped records one hit discarded during normalization.
func (s *RunStats) IncDropped() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

// RunSummary is the structured record emitted at the end of every run,
// successful or not.
type RunSummary struct {
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	ElapsedSecs float64   `json:"elapsed_secs"`

	Fetched     int `json:"fetched"`
	Upserted    int `json:"upserted"`
	NewDeals    int `json:"new_deals"`
	Recurrences int `json:"recurrences"`
	Revived     int `json:"revived"`
	Errors      int `json:"errors"`
	Dropped     int `json:"dropped"`

	Health *HealthReport `json:"health,omitempty"`
}

// Summarize freezes the counters into a RunSummary.
func (s *RunStats) Summarize(finishedAt time.Time, health *HealthReport) RunSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return RunSummary{
		StartedAt:   s.startedAt,
		FinishedAt:  finishedAt,
		ElapsedSecs: finishedAt.Sub(s.startedAt).Seconds(),
		Fetched:     s.fetched,
		Upserted:    s.upserted,
		NewDeals:    s.newDeals,
		Recurrences: s.recurrences,
		Revived:     s.revived,
		Errors:      s.errors,
		Dropped:     s.dropped,
		Health:      health,
	}
}
