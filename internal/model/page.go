package model

import "time"

// ScrapedPage is the plain-text rendition of a fetched web page.
type ScrapedPage struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Text        string `json:"text"`
	StatusCode  int    `json:"status_code"`
}

// ScrapeCache is a cached scrape result for a URL.
type ScrapeCache struct {
	ID        string      `json:"id"`
	URL       string      `json:"url"`
	Page      ScrapedPage `json:"page"`
	ScrapedAt time.Time   `json:"scraped_at"`
	ExpiresAt time.Time   `json:"expires_at"`
}
