// Package scrape fetches the page an audit is run against. Scrapers are
// tried in order by a Chain: local HTML parsing first, then readability,
// then the hosted Jina and Firecrawl readers.
package scrape

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
)

// Result holds a scraped page with its source.
type Result struct {
	Page   model.ScrapedPage
	Source string // e.g. "local_http", "readability", "jina", "firecrawl"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

var (
	// ErrNotHTML is returned when the target does not serve text/html.
	ErrNotHTML = eris.New("scrape: not an html page")
	// ErrMinimalContent is returned when a page yields too little text to audit.
	ErrMinimalContent = eris.New("scrape: minimal content")
	// ErrBlocked is returned when anti-bot protection answered instead of the site.
	ErrBlocked = eris.New("scrape: blocked")
	// ErrExcluded is returned for URLs the path matcher rejects.
	ErrExcluded = eris.New("scrape: url excluded")
)
