package model

import "time"

// DealStatus is the lifecycle state of a deal.
type DealStatus string

const (
	DealStatusNew         DealStatus = "new"
	DealStatusShortlisted DealStatus = "shortlisted"
	DealStatusDismissed   DealStatus = "dismissed"
	DealStatusArchived    DealStatus = "archived"
)

// Valid reports whether s is one of the four recognized statuses.
func (s DealStatus) Valid() bool {
	switch s {
	case DealStatusNew, DealStatusShortlisted, DealStatusDismissed, DealStatusArchived:
		return true
	}
	return false
}

// Revivable reports whether a re-sighting flips s back to "new". Shortlisted
// deals keep their status on re-sighting; only the dead states revive.
func (s DealStatus) Revivable() bool {
	return s == DealStatusDismissed || s == DealStatusArchived
}

// Deal is a deduplicated opportunity derived from one or more radar items.
// Deals are identified by DedupeKey; repeated sightings of the same
// (hostname, title) pair bump SeenCount instead of creating new rows.
type Deal struct {
	ID              string     `json:"id"`
	DedupeKey       string     `json:"dedupe_key"`
	Hostname        string     `json:"hostname"`
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	Description     string     `json:"description,omitempty"`
	CanonicalName   string     `json:"canonical_name"`
	OneLiner        string     `json:"one_liner"`
	EvidenceURLs    []string   `json:"evidence_urls"`
	Topic           string     `json:"topic"`
	Status          DealStatus `json:"status"`
	Score           *float64   `json:"score,omitempty"`
	SeenCount       int        `json:"seen_count"`
	FirstSeenAt     time.Time  `json:"first_seen_at"`
	LastSeenAt      time.Time  `json:"last_seen_at"`
	DismissedReason *string    `json:"dismissed_reason,omitempty"`
	DismissedAt     *time.Time `json:"dismissed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
