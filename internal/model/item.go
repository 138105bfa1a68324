package model

import "time"

// RadarItem is one raw observation from a search pass. The radar_items table
// is an append-only log: a URL is recorded once (keyed by URLHash) and never
// updated or deleted by the pipeline.
type RadarItem struct {
	ID        string    `json:"id"`
	URLHash   string    `json:"url_hash"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	Snippet   string    `json:"snippet,omitempty"`
	Topic     string    `json:"topic"`
	Hostname  string    `json:"hostname"`
	Source    string    `json:"source"`
	FetchedAt time.Time `json:"fetched_at"`
}
