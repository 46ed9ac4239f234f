package models

import "time"

// CrawlFailure captures a failed crawl job for the DLQ.
type CrawlFailure struct {
	SessionID string    `json:"session_id"`
	SeedTitle string    `json:"seed_title"`
	Title     string    `json:"title"`
	Depth     int       `json:"depth"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}
