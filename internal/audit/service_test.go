package audit

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/aeo-cli/internal/archive"
	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/internal/scrape"
	scrapemocks "github.com/sells-group/aeo-cli/internal/scrape/mocks"
	"github.com/sells-group/aeo-cli/internal/store"
	"github.com/sells-group/aeo-cli/pkg/anthropic"
	anthropicmocks "github.com/sells-group/aeo-cli/pkg/anthropic/mocks"
)

const auditText = `**TIER 1 - CITATION AUDIT SCORECARD**
Overall Score: 72
Citation Lift: 18
Visibility Rank: 4
Content Quality: 80
Metadata Score: 65
Brand Mentions: 55
Citation Frequency: 40
Summary: Acme has strong product pages but thin third-party coverage.

**TIER 2 - COMPETITIVE GAP ANALYSIS**
- Globex: 85%
- Initech: 64%
Competitors are cited for comparison content Acme lacks.

**TIER 3 - INTERVENTION ROADMAP**
1. [Priority: High] Publish comparison pages against Globex
2. [Priority: Low] Refresh meta descriptions

**TIER 4 - DRAFTS & TEMPLATES**
Rewrite the hero copy to name the product category explicitly.`

func testPage() *scrape.Result {
	return &scrape.Result{
		Page: model.ScrapedPage{
			URL:   "https://acme.com",
			Title: "Acme Rockets",
			Text:  "Acme builds reusable rockets for small satellite operators worldwide.",
		},
		Source: "local_http",
	}
}

func modelResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1500, OutputTokens: 800},
	}
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "aeo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestRun_Success(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)
	st := newTestStore(t)
	dir := t.TempDir()
	m := metrics.New()

	scraper.EXPECT().Scrape(mock.Anything, "https://acme.com").Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-sonnet-4-5-20250929" &&
			req.MaxTokens == 4000 &&
			req.Temperature != nil && *req.Temperature == 0.7 &&
			len(req.System) == 1 && req.System[0].Text == SystemPrompt &&
			len(req.Messages) == 1 && req.Messages[0].Role == "user"
	})).Return(modelResponse(auditText), nil)

	svc := New(scraper, ai, Config{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4000,
		Temperature: 0.7,
		Retry:       fastRetry(),
	}, WithStore(st), WithArchiver(archive.NewFile(dir)), WithMetrics(m))

	res, err := svc.Run(context.Background(), "  acme.com ")
	require.NoError(t, err)

	require.NotNil(t, res.Report)
	assert.Equal(t, 72, res.Report.Scorecard.OverallScore)
	assert.Equal(t, 18, res.Report.Scorecard.CitationLift)
	assert.Equal(t, "https://acme.com", res.Report.URLAnalyzed)
	assert.Len(t, res.Report.Roadmap.Recommendations, 2)
	assert.Equal(t, "local_http", res.Source)
	assert.Equal(t, int64(1500), res.Usage.InputTokens)
	assert.Equal(t, filepath.Join(dir, "report_acme.com.txt"), res.ArchivePath)

	saved, err := archive.NewFile(dir).Load(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, auditText, saved)

	a, err := st.GetAudit(context.Background(), res.AuditID)
	require.NoError(t, err)
	assert.Equal(t, model.AuditStatusComplete, a.Status)
	require.NotNil(t, a.Report)
	assert.Equal(t, 72, a.Report.Scorecard.OverallScore)
	assert.Equal(t, int64(800), a.OutputTokens)
}

func TestRun_NoOptionalCollaborators(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)

	scraper.EXPECT().Scrape(mock.Anything, "https://acme.com").Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).Return(modelResponse(auditText), nil)

	res, err := New(scraper, ai, Config{Model: "m", Retry: fastRetry()}).Run(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Empty(t, res.AuditID)
	assert.Empty(t, res.ArchivePath)
	assert.Equal(t, "claude-sonnet-4-5-20250929", res.Model)
}

func TestRun_InvalidURL(t *testing.T) {
	svc := New(scrapemocks.NewMockScraper(t), anthropicmocks.NewMockClient(t), Config{})

	for _, raw := range []string{"", "   ", "ftp://files.example.com", "https://"} {
		_, err := svc.Run(context.Background(), raw)
		assert.ErrorIs(t, err, ErrInvalidURL, raw)
	}
}

func TestRun_ScrapeFailure(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)
	st := newTestStore(t)
	m := metrics.New()

	scraper.EXPECT().Scrape(mock.Anything, "https://down.example").
		Return(nil, eris.Wrap(scrape.ErrMinimalContent, "scrape: all scrapers failed"))

	_, err := New(scraper, ai, Config{}, WithStore(st), WithMetrics(m)).Run(context.Background(), "https://down.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrScrapeFailed)
	assert.NotErrorIs(t, err, ErrModelFailed)
	assert.Equal(t, ErrScrapeFailed, KindOf(err))

	audits, err := st.ListAudits(context.Background(), store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, model.AuditStatusFailed, audits[0].Status)
	assert.Contains(t, audits[0].Error, "audit: scrape failed")
}

func TestRun_ModelRetriesTransient(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).
		Return(nil, resilience.NewTransientError(eris.New("overloaded"), 529)).Once()
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).
		Return(modelResponse(auditText), nil).Once()

	res, err := New(scraper, ai, Config{Retry: fastRetry()}).Run(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, 72, res.Report.Scorecard.OverallScore)
}

func TestRun_ModelPermanentFailure(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)
	st := newTestStore(t)

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).
		Return(nil, eris.New("anthropic: invalid request")).Once()

	_, err := New(scraper, ai, Config{Retry: fastRetry()}, WithStore(st)).Run(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelFailed)
	assert.Contains(t, err.Error(), "invalid request")

	audits, err := st.ListAudits(context.Background(), store.AuditFilter{Status: model.AuditStatusFailed})
	require.NoError(t, err)
	assert.Len(t, audits, 1)
}

func TestRun_EmptyModelResponse(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).Return(modelResponse("  \n"), nil)

	_, err := New(scraper, ai, Config{Retry: fastRetry()}).Run(context.Background(), "https://acme.com")
	assert.ErrorIs(t, err, ErrModelFailed)
	assert.Contains(t, err.Error(), "empty response")
}

func TestRun_UnstructuredTextStillProducesReport(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).
		Return(modelResponse("I could not complete the audit for this site."), nil)

	res, err := New(scraper, ai, Config{Retry: fastRetry()}).Run(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.True(t, res.Report.IsFallback("scorecard.overall_score"))
	assert.GreaterOrEqual(t, res.Report.Scorecard.OverallScore, 0)
	assert.LessOrEqual(t, res.Report.Scorecard.OverallScore, 100)
}

func TestRun_BreakerOpen(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Hour})
	_ = cb.Execute(context.Background(), func(context.Context) error { return eris.New("boom") })

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)

	_, err := New(scraper, ai, Config{Retry: fastRetry()}, WithBreaker(cb)).Run(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModelFailed)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestRun_RateLimiterHonorsContext(t *testing.T) {
	scraper := scrapemocks.NewMockScraper(t)
	ai := anthropicmocks.NewMockClient(t)

	scraper.EXPECT().Scrape(mock.Anything, mock.Anything).Return(testPage(), nil)
	ai.EXPECT().CreateMessage(mock.Anything, mock.Anything).Return(modelResponse(auditText), nil).Once()

	svc := New(scraper, ai, Config{RequestsPerMinute: 1, Retry: fastRetry()})
	_, err := svc.Run(context.Background(), "https://acme.com")
	require.NoError(t, err)

	// The single token is spent; the next call would wait about a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = svc.Run(ctx, "https://acme.com")
	assert.ErrorIs(t, err, ErrModelFailed)
}
