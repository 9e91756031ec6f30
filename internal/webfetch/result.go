package webfetch

import "time"

// Result is one fetched page.
type Result struct {
	URL      string        `json:"url"`
	Content  string        `json:"content"`
	Duration time.Duration `json:"duration"`
}
