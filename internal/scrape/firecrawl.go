package scrape

import (
	"context"

	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/pkg/firecrawl"
)

// FirecrawlAdapter wraps a Firecrawl client as the last-resort Scraper.
type FirecrawlAdapter struct {
	client  firecrawl.Client
	breaker *resilience.CircuitBreaker
}

// NewFirecrawlAdapter creates a FirecrawlAdapter. A nil breaker gets a private one.
func NewFirecrawlAdapter(client firecrawl.Client, breaker *resilience.CircuitBreaker) *FirecrawlAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	return &FirecrawlAdapter{client: client, breaker: breaker}
}

// Name implements Scraper.
func (f *FirecrawlAdapter) Name() string { return "firecrawl" }

// Supports returns true unless the circuit breaker is open.
func (f *FirecrawlAdapter) Supports(_ string) bool {
	return f.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a single URL via Firecrawl's scrape API.
func (f *FirecrawlAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.ExecuteVal(ctx, f.breaker, func(ctx context.Context) (*firecrawl.ScrapeResponse, error) {
		return f.client.Scrape(ctx, firecrawl.ScrapeRequest{
			URL:             targetURL,
			Formats:         []string{"markdown"},
			OnlyMainContent: true,
		})
	})
	if err != nil {
		return nil, resilience.Wrap(err, "scrape: firecrawl")
	}

	meta := resp.Data.Metadata
	page := model.ScrapedPage{
		URL:         meta.SourceURL,
		Title:       meta.Title,
		Description: meta.Description,
		Text:        resp.Data.Markdown,
		StatusCode:  meta.StatusCode,
	}
	if page.URL == "" {
		page.URL = targetURL
	}
	return &Result{Page: page, Source: f.Name()}, nil
}
