package models

import "time"

// CrawlJob represents a unit of work for the crawler frontier.
type CrawlJob struct {
	SessionID string    `json:"session_id"`
	SeedTitle string    `json:"seed_title"`
	Title     string    `json:"title"`
	Depth     int       `json:"depth"`
	CreatedAt time.Time `json:"created_at"`
}
