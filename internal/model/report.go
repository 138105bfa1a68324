package model

import "time"

// WeeklyReport is one digest per calendar week, keyed by the Monday that
// starts the ISO week. Re-generating within the same week replaces Markdown.
type WeeklyReport struct {
	ID        string    `json:"id"`
	WeekStart time.Time `json:"week_start"`
	Markdown  string    `json:"markdown"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Topic is one configured scan topic with its search queries.
type Topic struct {
	Name    string   `yaml:"name"`
	Weight  float64  `yaml:"weight"`
	Queries []string `yaml:"queries"`
}
