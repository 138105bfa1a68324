package ingest

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/deal-radar/internal/model"
	"github.com/sells-group/deal-radar/internal/normalize"
)

// Candidate is one hit after normalization, ready for the upsert engine. The
// item records the observation verbatim; the deal carries the deduplicated
// identity derived from it.
type Candidate struct {
	Item model.RadarItem
	Deal model.Deal
}

// BuildCandidate normalizes one hit. Hits without a parseable URL or with an
// empty title are rejected; callers count them and move on.
func BuildCandidate(hit Hit, now time.Time) (*Candidate, error) {
	normalized, err := normalize.URL(hit.URL)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: normalize url %q", hit.URL)
	}

	title := normalize.Title(hit.Title)
	if title == "" {
		return nil, eris.Errorf("ingest: empty title for %q", hit.URL)
	}

	hostname := normalize.Hostname(normalized)
	source := hit.Source
	if source == "" {
		source = "serper"
	}

	item := model.RadarItem{
		URLHash:   normalize.URLHash(normalized),
		URL:       normalized,
		Title:     hit.Title,
		Snippet:   hit.Snippet,
		Topic:     hit.Topic,
		Hostname:  hostname,
		Source:    source,
		FetchedAt: now,
	}

	deal := model.Deal{
		DedupeKey:     normalize.DedupeKey(hostname, hit.Title),
		Hostname:      hostname,
		Title:         title,
		URL:           normalized,
		Description:   hit.Snippet,
		CanonicalName: normalize.CanonicalName(hit.Title, hostname),
		OneLiner:      normalize.OneLiner(hit.Snippet, hit.Title),
		EvidenceURLs:  []string{normalized},
		Topic:         hit.Topic,
		Status:        model.DealStatusNew,
		SeenCount:     1,
		FirstSeenAt:   now,
		LastSeenAt:    now,
	}

	return &Candidate{Item: item, Deal: deal}, nil
}
