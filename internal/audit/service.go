// Package audit runs a visibility audit end to end: scrape the page, ask
// the model for a four-tier report, normalize it, then persist and archive
// the result.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/aeo-cli/internal/archive"
	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/model"
	"github.com/sells-group/aeo-cli/internal/normalize"
	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/internal/scrape"
	"github.com/sells-group/aeo-cli/internal/store"
	"github.com/sells-group/aeo-cli/pkg/anthropic"
)

// PageScraper fetches the page to audit. *scrape.Chain satisfies it.
type PageScraper interface {
	Scrape(ctx context.Context, url string) (*scrape.Result, error)
}

// Config holds the model call settings.
type Config struct {
	Model             string
	MaxTokens         int64
	Temperature       float64
	Timeout           time.Duration
	RequestsPerMinute int
	Retry             resilience.RetryConfig
}

// Result is the outcome of one audit.
type Result struct {
	AuditID     string               `json:"audit_id,omitempty"`
	Report      *model.Report        `json:"report"`
	Page        model.ScrapedPage    `json:"-"`
	Source      string               `json:"source"`
	Model       string               `json:"model"`
	Usage       anthropic.TokenUsage `json:"-"`
	RawText     string               `json:"-"`
	ArchivePath string               `json:"archive_path,omitempty"`
}

// Service orchestrates audits. Store, archiver and metrics are optional.
type Service struct {
	scraper  PageScraper
	ai       anthropic.Client
	engine   *normalize.Engine
	store    store.Store
	archiver archive.Archiver
	metrics  *metrics.Metrics
	breaker  *resilience.CircuitBreaker
	limiter  *rate.Limiter
	cfg      Config
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists every audit and its status transitions.
func WithStore(st store.Store) Option { return func(s *Service) { s.store = st } }

// WithArchiver keeps the raw model text of each audit.
func WithArchiver(a archive.Archiver) Option { return func(s *Service) { s.archiver = a } }

// WithMetrics records audit outcomes.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithEngine replaces the default normalizer.
func WithEngine(e *normalize.Engine) Option { return func(s *Service) { s.engine = e } }

// WithBreaker guards model calls with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option { return func(s *Service) { s.breaker = cb } }

// New creates a Service. Zero Config fields take the documented defaults:
// 4000 max tokens, 120s timeout, no rate limit.
func New(scraper PageScraper, ai anthropic.Client, cfg Config, opts ...Option) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Retry.OnRetry == nil {
		cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")
	}
	s := &Service{
		scraper: scraper,
		ai:      ai,
		engine:  normalize.New(),
		cfg:     cfg,
		now:     time.Now,
	}
	if cfg.RequestsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Engine returns the normalizer used for model output.
func (s *Service) Engine() *normalize.Engine { return s.engine }

// Run audits rawURL. Failures are returned as *Error carrying one of
// ErrInvalidURL, ErrScrapeFailed or ErrModelFailed; a persisted audit is
// marked failed first.
func (s *Service) Run(ctx context.Context, rawURL string) (*Result, error) {
	start := s.now()
	pageURL, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("url", pageURL))
	log.Info("audit: starting")

	res := &Result{Model: s.cfg.Model}
	if s.store != nil {
		a, err := s.store.CreateAudit(ctx, pageURL)
		if err != nil {
			return nil, eris.Wrap(err, "audit: create record")
		}
		res.AuditID = a.ID
		log = log.With(zap.String("audit_id", a.ID))
	}

	fail := func(kind, cause error) (*Result, error) {
		err := stageError(kind, cause)
		log.Error("audit: failed", zap.Error(err))
		s.setFailed(ctx, res.AuditID, err.Error())
		s.metrics.ObserveAudit(model.AuditStatusFailed, s.now().Sub(start), nil)
		return nil, err
	}

	s.setStatus(ctx, res.AuditID, model.AuditStatusScraping)
	scraped, err := s.scraper.Scrape(ctx, pageURL)
	if err != nil {
		return fail(ErrScrapeFailed, err)
	}
	res.Page = scraped.Page
	res.Source = scraped.Source
	s.metrics.ObserveScrape(scraped.Source)
	log.Info("audit: page scraped",
		zap.String("source", scraped.Source),
		zap.Int("chars", len([]rune(scraped.Page.Text))),
	)
	if res.Page.URL == "" {
		res.Page.URL = pageURL
	}

	s.setStatus(ctx, res.AuditID, model.AuditStatusAnalyzing)
	resp, err := s.callModel(ctx, res.Page)
	if err != nil {
		return fail(ErrModelFailed, err)
	}
	res.RawText = resp.Text()
	res.Usage = resp.Usage
	if resp.Model != "" {
		res.Model = resp.Model
	}
	if strings.TrimSpace(res.RawText) == "" {
		return fail(ErrModelFailed, eris.Errorf("empty response (stop reason %q)", resp.StopReason))
	}
	res.Usage.LogCost(res.Model, pageURL)
	s.metrics.ObserveTokens(res.Usage.InputTokens, res.Usage.OutputTokens)

	report, err := s.engine.NormalizeString(res.RawText, pageURL)
	if err != nil {
		return fail(ErrModelFailed, err)
	}
	res.Report = report
	if len(report.Fallbacks) > 0 {
		log.Info("audit: fields synthesized", zap.Strings("fallbacks", report.Fallbacks))
	}

	if s.archiver != nil {
		loc, err := s.archiver.Save(ctx, pageURL, res.RawText)
		if err != nil {
			log.Warn("audit: archive failed", zap.Error(err))
		}
		res.ArchivePath = loc
	}

	if s.store != nil {
		err := s.store.CompleteAudit(ctx, res.AuditID, &model.AuditResult{
			Report:       report,
			Model:        res.Model,
			InputTokens:  res.Usage.InputTokens,
			OutputTokens: res.Usage.OutputTokens,
		})
		if err != nil {
			return nil, eris.Wrap(err, "audit: save result")
		}
	}

	elapsed := s.now().Sub(start)
	s.metrics.ObserveAudit(model.AuditStatusComplete, elapsed, report)
	log.Info("audit: complete",
		zap.Int("overall_score", report.Scorecard.OverallScore),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

func (s *Service) callModel(ctx context.Context, page model.ScrapedPage) (*anthropic.MessageResponse, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "audit: rate limit")
		}
	}

	temp := s.cfg.Temperature
	req := anthropic.MessageRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		System:      []anthropic.SystemBlock{{Text: SystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: UserPrompt(page)}},
		Temperature: &temp,
	}

	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, s.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
			defer cancel()
			return s.ai.CreateMessage(callCtx, req)
		})
	}
	if s.breaker != nil {
		return resilience.ExecuteVal(ctx, s.breaker, call)
	}
	return call(ctx)
}

func (s *Service) setStatus(ctx context.Context, id string, status model.AuditStatus) {
	if s.store == nil || id == "" {
		return
	}
	if err := s.store.UpdateAuditStatus(ctx, id, status); err != nil {
		zap.L().Warn("audit: failed to update status",
			zap.String("audit_id", id), zap.String("status", string(status)), zap.Error(err))
	}
}

func (s *Service) setFailed(ctx context.Context, id, msg string) {
	if s.store == nil || id == "" {
		return
	}
	// The request context may already be cancelled; the failure must still land.
	if err := s.store.FailAudit(context.WithoutCancel(ctx), id, msg); err != nil {
		zap.L().Warn("audit: failed to record failure", zap.String("audit_id", id), zap.Error(err))
	}
}
