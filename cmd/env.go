package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/aeo-cli/internal/archive"
	"github.com/sells-group/aeo-cli/internal/audit"
	"github.com/sells-group/aeo-cli/internal/metrics"
	"github.com/sells-group/aeo-cli/internal/normalize"
	"github.com/sells-group/aeo-cli/internal/resilience"
	"github.com/sells-group/aeo-cli/internal/scrape"
	"github.com/sells-group/aeo-cli/internal/store"
	"github.com/sells-group/aeo-cli/pkg/anthropic"
	"github.com/sells-group/aeo-cli/pkg/firecrawl"
	"github.com/sells-group/aeo-cli/pkg/jina"
)

// auditEnv holds the initialized collaborators used by the audit, batch and
// serve commands.
type auditEnv struct {
	Store    store.Store // nil when persistence is off
	Service  *audit.Service
	Metrics  *metrics.Metrics
	Breakers *resilience.ServiceBreakers
}

// Close releases resources held by the environment.
func (e *auditEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the configured store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "aeo.db"
		}
		st, err := store.NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// openStore opens and migrates the configured store.
func openStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initAudit validates config for mode and builds the audit service. With
// persist false no store or archive is used.
func initAudit(ctx context.Context, mode string, persist bool) (*auditEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	env := &auditEnv{Metrics: metrics.New()}
	env.Breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig(), func(service string, from, to resilience.CircuitState) {
		zap.L().Warn("circuit breaker state change",
			zap.String("service", service),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		env.Metrics.CircuitStateChanged(service, from, to)
	})

	opts := []audit.Option{
		audit.WithMetrics(env.Metrics),
		audit.WithEngine(normalize.New(normalize.WithPreviewLength(cfg.Normalize.PreviewChars))),
		audit.WithBreaker(env.Breakers.Get("anthropic")),
	}

	if persist {
		st, err := openStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		opts = append(opts, audit.WithStore(st))

		arch, err := archive.New(ctx, cfg.Archive)
		if err != nil {
			env.Close()
			return nil, err
		}
		opts = append(opts, audit.WithArchiver(arch))
	}

	retry := resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs)
	aiClient := anthropic.NewClient(cfg.Anthropic.Key,
		anthropic.WithTimeout(time.Duration(cfg.Anthropic.TimeoutSecs)*time.Second))

	env.Service = audit.New(buildScrapeChain(env.Store, env.Breakers, retry), aiClient, audit.Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         int64(cfg.Anthropic.MaxTokens),
		Temperature:       cfg.Anthropic.Temperature,
		Timeout:           time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.Server.RequestsPerMinute,
		Retry:             retry,
	}, opts...)
	return env, nil
}

// buildScrapeChain orders the scrapers local HTML, readability, Jina, then
// Firecrawl when a key is configured. A nil cache disables page caching.
func buildScrapeChain(cache scrape.PageCache, breakers *resilience.ServiceBreakers, retry resilience.RetryConfig) *scrape.Chain {
	timeout := time.Duration(cfg.Scrape.TimeoutSecs) * time.Second

	scrapers := []scrape.Scraper{scrape.NewLocalScraper(timeout)}
	if cfg.Scrape.UseReadability {
		scrapers = append(scrapers, scrape.NewReadabilityScraper(timeout))
	}

	jinaClient := jina.NewClient(cfg.Jina.Key, jina.WithBaseURL(cfg.Jina.BaseURL))
	scrapers = append(scrapers, scrape.NewJinaAdapter(jinaClient, breakers.Get("jina"), retry))

	if cfg.Firecrawl.Key != "" {
		fcClient := firecrawl.NewClient(cfg.Firecrawl.Key, firecrawl.WithBaseURL(cfg.Firecrawl.BaseURL))
		scrapers = append(scrapers, scrape.NewFirecrawlAdapter(fcClient, breakers.Get("firecrawl")))
	} else {
		zap.L().Debug("AEO_FIRECRAWL_KEY not set, firecrawl fallback disabled")
	}

	opts := []scrape.ChainOption{scrape.WithLimits(cfg.Scrape.MinChars, cfg.Scrape.MaxChars)}
	if cache != nil {
		opts = append(opts, scrape.WithCache(cache, time.Duration(cfg.Scrape.CacheTTLHours)*time.Hour))
	}
	return scrape.NewChain(nil, scrapers, opts...)
}
