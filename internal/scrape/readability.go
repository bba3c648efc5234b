package scrape

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
)

// ReadabilityScraper extracts the main article of a page with
// go-readability. It recovers content from pages whose text lives in
// divs rather than paragraphs and lists.
type ReadabilityScraper struct {
	client *http.Client
}

// NewReadabilityScraper creates a ReadabilityScraper. A zero timeout means 15s.
func NewReadabilityScraper(timeout time.Duration) *ReadabilityScraper {
	return &ReadabilityScraper{client: newHTTPClient(timeout)}
}

func (r *ReadabilityScraper) Name() string { return "readability" }

// Supports reports whether targetURL parses as an absolute URL, which
// readability needs to resolve relative links.
func (r *ReadabilityScraper) Supports(targetURL string) bool {
	u, err := url.Parse(targetURL)
	return err == nil && u.IsAbs()
}

// Scrape fetches a URL and returns its readable text.
func (r *ReadabilityScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	pageURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, eris.Wrap(err, "readability: parse url")
	}

	status, body, err := fetchHTML(ctx, r.client, r.Name(), targetURL)
	if err != nil {
		return nil, err
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, eris.Wrap(err, "readability: extract article")
	}

	return &Result{
		Page: model.ScrapedPage{
			URL:         targetURL,
			Title:       strings.TrimSpace(article.Title),
			Description: strings.TrimSpace(article.Excerpt),
			Text:        strings.Join(strings.Fields(article.TextContent), " "),
			StatusCode:  status,
		},
		Source: r.Name(),
	}, nil
}
