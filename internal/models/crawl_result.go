package models

import "encoding/json"

// CrawlResult is the payload written to the results topic.
type CrawlResult struct {
	SessionID string  `json:"session_id"`
	Title     string  `json:"title"`
	Article   Article `json:"article"`
}

// NewCrawlResult marshals a crawl result payload.
func NewCrawlResult(job CrawlJob, article Article) ([]byte, error) {
	result := CrawlResult{
		SessionID: job.SessionID,
		Title:     article.Title,
		Article:   article,
	}
	return json.Marshal(result)
}
