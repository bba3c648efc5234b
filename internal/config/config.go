package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Normalize  NormalizeConfig  `yaml:"normalize" mapstructure:"normalize"`
	Archive    ArchiveConfig    `yaml:"archive" mapstructure:"archive"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// JinaConfig holds Jina AI Reader settings.
type JinaConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FirecrawlConfig holds Firecrawl API settings (fallback only).
type FirecrawlConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// ScrapeConfig configures page fetching ahead of the audit prompt.
type ScrapeConfig struct {
	TimeoutSecs    int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxChars       int  `yaml:"max_chars" mapstructure:"max_chars"`
	MinChars       int  `yaml:"min_chars" mapstructure:"min_chars"`
	CacheTTLHours  int  `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	UseReadability bool `yaml:"use_readability" mapstructure:"use_readability"`
}

// NormalizeConfig configures the report normalizer.
type NormalizeConfig struct {
	PreviewChars int `yaml:"preview_chars" mapstructure:"preview_chars"`
}

// ArchiveConfig configures where raw model responses are kept.
type ArchiveConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"`
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Bucket   string `yaml:"bucket" mapstructure:"bucket"`
	Region   string `yaml:"region" mapstructure:"region"`
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestsPerMinute int      `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrent int `yaml:"max_concurrent" mapstructure:"max_concurrent"`
}

// RetryConfig configures retries of transient upstream failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// MonitoringConfig configures threshold alerts on recent audits.
type MonitoringConfig struct {
	WebhookURL            string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold  float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FallbackRateThreshold float64 `yaml:"fallback_rate_threshold" mapstructure:"fallback_rate_threshold"`
	CostThresholdUSD      float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	CheckIntervalSecs     int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours   int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AEO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "aeo.db")
	// Secrets default to empty so AutomaticEnv can still populate them.
	v.SetDefault("anthropic.key", "")
	v.SetDefault("jina.key", "")
	v.SetDefault("firecrawl.key", "")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 4000)
	v.SetDefault("anthropic.temperature", 0.7)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v2")
	v.SetDefault("scrape.timeout_secs", 15)
	v.SetDefault("scrape.max_chars", 15000)
	v.SetDefault("scrape.min_chars", 50)
	v.SetDefault("scrape.cache_ttl_hours", 24)
	v.SetDefault("scrape.use_readability", true)
	v.SetDefault("normalize.preview_chars", 1000)
	v.SetDefault("archive.driver", "file")
	v.SetDefault("archive.dir", "reports")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.prefix", "reports")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.requests_per_minute", 30)
	v.SetDefault("batch.max_concurrent", 5)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.failure_rate_threshold", 0.10)
	v.SetDefault("monitoring.fallback_rate_threshold", 0.50)
	v.SetDefault("monitoring.cost_threshold_usd", 0.0)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode depends on. Modes: audit, batch,
// serve, normalize, store.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "audit":
		errs = append(errs, c.requireAnthropic()...)
		errs = append(errs, c.requireStore()...)
		errs = append(errs, c.requireArchive()...)
	case "batch":
		errs = append(errs, c.requireAnthropic()...)
		errs = append(errs, c.requireStore()...)
		errs = append(errs, c.requireArchive()...)
		errs = append(errs, c.requireConcurrency()...)
	case "serve":
		errs = append(errs, c.requireAnthropic()...)
		errs = append(errs, c.requireStore()...)
		errs = append(errs, c.requireArchive()...)
		errs = append(errs, c.requireConcurrency()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		errs = append(errs, c.requireStore()...)
	case "normalize":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Normalize.PreviewChars < 0 {
		errs = append(errs, "normalize.preview_chars must be >= 0")
	}
	if c.Anthropic.Temperature < 0 || c.Anthropic.Temperature > 1 {
		errs = append(errs, "anthropic.temperature must be between 0 and 1")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) requireAnthropic() []string {
	var errs []string
	if c.Anthropic.Key == "" {
		errs = append(errs, "anthropic.key is required")
	}
	if c.Anthropic.MaxTokens <= 0 {
		errs = append(errs, "anthropic.max_tokens must be > 0")
	}
	return errs
}

func (c *Config) requireStore() []string {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return []string{"store.driver must be sqlite or postgres"}
	}
	if c.Store.DatabaseURL == "" {
		return []string{"store.database_url is required"}
	}
	return nil
}

func (c *Config) requireArchive() []string {
	switch c.Archive.Driver {
	case "", "none", "file":
		return nil
	case "s3":
		if c.Archive.Bucket == "" {
			return []string{"archive.bucket is required for the s3 driver"}
		}
		return nil
	}
	return []string{"archive.driver must be none, file or s3"}
}

func (c *Config) requireConcurrency() []string {
	if c.Batch.MaxConcurrent < 1 || c.Batch.MaxConcurrent > 50 {
		return []string{"batch.max_concurrent must be between 1 and 50"}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
