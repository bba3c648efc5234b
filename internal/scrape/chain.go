package scrape

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/aeo-cli/internal/model"
)

// Default content limits for an audited page.
const (
	DefaultMinChars = 50
	DefaultMaxChars = 15000
)

// PageCache stores recent scrape results. GetCachedPage returns nil, nil
// when no unexpired entry exists.
type PageCache interface {
	GetCachedPage(ctx context.Context, url string) (*model.ScrapeCache, error)
	SetCachedPage(ctx context.Context, entry model.ScrapeCache) error
}

// Chain tries scrapers in priority order, returning the first result with
// enough text to audit.
type Chain struct {
	PathMatcher *PathMatcher
	scrapers    []Scraper

	minChars int
	maxChars int

	cache PageCache
	ttl   time.Duration
	now   func() time.Time
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLimits sets the minimum text a page must yield and the cap applied
// to the text kept. Non-positive values keep the defaults.
func WithLimits(minChars, maxChars int) ChainOption {
	return func(c *Chain) {
		if minChars > 0 {
			c.minChars = minChars
		}
		if maxChars > 0 {
			c.maxChars = maxChars
		}
	}
}

// WithCache serves pages scraped within ttl from cache.
func WithCache(cache PageCache, ttl time.Duration) ChainOption {
	return func(c *Chain) {
		if ttl > 0 {
			c.cache = cache
			c.ttl = ttl
		}
	}
}

// NewChain creates a Chain with the given path matcher and scrapers.
// A nil matcher uses the default exclude patterns.
func NewChain(matcher *PathMatcher, scrapers []Scraper, opts ...ChainOption) *Chain {
	if matcher == nil {
		matcher = NewPathMatcher(nil)
	}
	c := &Chain{
		PathMatcher: matcher,
		scrapers:    scrapers,
		minChars:    DefaultMinChars,
		maxChars:    DefaultMaxChars,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Scrape tries each scraper in order for a single URL.
// Returns the first usable result, or an error if all fail.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	if c.PathMatcher.IsExcluded(targetURL) {
		return nil, eris.Wrapf(ErrExcluded, "scrape: %s", targetURL)
	}

	if res := c.cached(ctx, targetURL); res != nil {
		return res, nil
	}

	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			if err = c.finish(result); err == nil {
				c.store(ctx, targetURL, result)
				return result, nil
			}
		}
		if err != nil {
			zap.L().Debug("scrape: scraper failed, trying next",
				zap.String("scraper", s.Name()),
				zap.String("url", targetURL),
				zap.Error(err),
			)
			lastErr = err
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "scrape: cancelled")
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

// finish normalizes whitespace, enforces the minimum and caps the text.
func (c *Chain) finish(r *Result) error {
	r.Page.Title = strings.TrimSpace(r.Page.Title)
	r.Page.Description = strings.TrimSpace(r.Page.Description)
	text := strings.TrimSpace(r.Page.Text)

	if utf8.RuneCountInString(text) < c.minChars {
		return eris.Wrapf(ErrMinimalContent, "%s: %d chars", r.Source, utf8.RuneCountInString(text))
	}
	if utf8.RuneCountInString(text) > c.maxChars {
		text = string([]rune(text)[:c.maxChars])
	}
	r.Page.Text = text
	return nil
}

func (c *Chain) cached(ctx context.Context, targetURL string) *Result {
	if c.cache == nil {
		return nil
	}
	entry, err := c.cache.GetCachedPage(ctx, targetURL)
	if err != nil {
		zap.L().Warn("scrape: cache lookup failed", zap.String("url", targetURL), zap.Error(err))
		return nil
	}
	if entry == nil || !entry.ExpiresAt.After(c.now()) {
		return nil
	}
	zap.L().Debug("scrape: cache hit", zap.String("url", targetURL))
	return &Result{Page: entry.Page, Source: "cache"}
}

func (c *Chain) store(ctx context.Context, targetURL string, r *Result) {
	if c.cache == nil {
		return
	}
	now := c.now().UTC()
	err := c.cache.SetCachedPage(ctx, model.ScrapeCache{
		ID:        uuid.NewString(),
		URL:       targetURL,
		Page:      r.Page,
		ScrapedAt: now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		zap.L().Warn("scrape: cache write failed", zap.String("url", targetURL), zap.Error(err))
	}
}
