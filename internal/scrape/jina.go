package scrape

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/pkg/jina"
)

// JinaAdapter wraps a Jina Reader client as a Scraper. Calls are retried on
// transient failures and guarded by a circuit breaker; while the circuit is
// open the chain skips straight to the next scraper.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewJinaAdapter creates a JinaAdapter. A nil breaker gets a private one.
func NewJinaAdapter(client jina.Client, breaker *resilience.CircuitBreaker, retry resilience.RetryConfig) *JinaAdapter {
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())
	}
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("jina", "read")
	}
	return &JinaAdapter{client: client, breaker: breaker, retry: retry}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit breaker is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape fetches a URL via Jina Reader and validates the response.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := resilience.DoVal(ctx, j.retry, func(ctx context.Context) (*jina.ReadResponse, error) {
			return j.client.Read(ctx, targetURL)
		})
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.New("jina: response needs fallback")
		}
		return resp, nil
	})
	if err != nil {
		return nil, resilience.Wrap(err, "scrape: jina")
	}

	page := model.ScrapedPage{
		URL:         resp.Data.URL,
		Title:       resp.Data.Title,
		Description: resp.Data.Description,
		Text:        resp.Data.Content,
		StatusCode:  resp.Code,
	}
	if page.URL == "" {
		page.URL = targetURL
	}
	return &Result{Page: page, Source: j.Name()}, nil
}

// challengeSignatures mark interstitial pages served instead of the site.
var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"cloudflare",
	"attention required",
}

// needsFallback checks whether a Jina response contains usable content
// or indicates the page is blocked/empty. Returns true if the response
// should be retried with a different scraper.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}

	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)

	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}

	return false
}
