package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Contact    ContactConfig    `yaml:"contact" mapstructure:"contact"`
	Quality    QualityConfig    `yaml:"quality" mapstructure:"quality"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Gmail      GmailConfig      `yaml:"gmail" mapstructure:"gmail"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	DraftModel    string  `yaml:"draft_model" mapstructure:"draft_model"`
	CritiqueModel string  `yaml:"critique_model" mapstructure:"critique_model"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
}

// GeminiConfig holds Gemini API settings for the alternate generation backend.
type GeminiConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Model   string  `yaml:"model" mapstructure:"model"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// GenerationConfig controls drafting and critique calls.
type GenerationConfig struct {
	Provider            string  `yaml:"provider" mapstructure:"provider"` // anthropic | gemini | stub
	Temperature         float64 `yaml:"temperature" mapstructure:"temperature"`
	CritiqueTemperature float64 `yaml:"critique_temperature" mapstructure:"critique_temperature"`
	MaxTokens           int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries             int     `yaml:"retries" mapstructure:"retries"`
}

// JinaConfig holds Jina search and reader settings.
type JinaConfig struct {
	Key           string  `yaml:"key" mapstructure:"key"`
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string  `yaml:"search_base_url" mapstructure:"search_base_url"`
	RPS           float64 `yaml:"rps" mapstructure:"rps"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string  `yaml:"key" mapstructure:"key"`
	BaseURL string  `yaml:"base_url" mapstructure:"base_url"`
	Model   string  `yaml:"model" mapstructure:"model"`
	RPS     float64 `yaml:"rps" mapstructure:"rps"`
}

// SearchConfig controls contact research.
type SearchConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	TimeoutSecs  int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxResults   int  `yaml:"max_results" mapstructure:"max_results"`
	ReadOfficial bool `yaml:"read_official" mapstructure:"read_official"`
	Retries      int  `yaml:"retries" mapstructure:"retries"`
}

// ContactConfig controls contact selection.
type ContactConfig struct {
	Floor         int `yaml:"floor" mapstructure:"floor"`
	Threshold     int `yaml:"threshold" mapstructure:"threshold"`
	MaxCandidates int `yaml:"max_candidates" mapstructure:"max_candidates"`
}

// QualityConfig controls the retry loop and the deterministic validator.
type QualityConfig struct {
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	ValidatorWeight float64 `yaml:"validator_weight" mapstructure:"validator_weight"`
	MaxRetries      int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryDelayMs    int     `yaml:"retry_delay_ms" mapstructure:"retry_delay_ms"`
	MinWords        int     `yaml:"min_words" mapstructure:"min_words"`
	MaxWords        int     `yaml:"max_words" mapstructure:"max_words"`
	MaxSubjectLen   int     `yaml:"max_subject_len" mapstructure:"max_subject_len"`
	IssueScoreFloor int     `yaml:"issue_score_floor" mapstructure:"issue_score_floor"`
	RulesFile       string  `yaml:"rules_file" mapstructure:"rules_file"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	OrgTimeoutSecs   int `yaml:"org_timeout_secs" mapstructure:"org_timeout_secs"`
	MaxOrganizations int `yaml:"max_organizations" mapstructure:"max_organizations"`
}

// InputConfig controls tabular input parsing.
type InputConfig struct {
	Charset string `yaml:"charset" mapstructure:"charset"`
	Sheet   string `yaml:"sheet" mapstructure:"sheet"`
}

// NotionConfig holds Notion API credentials for the organization source.
type NotionConfig struct {
	Token          string  `yaml:"token" mapstructure:"token"`
	OrgDB          string  `yaml:"org_db" mapstructure:"org_db"`
	StatusProperty string  `yaml:"status_property" mapstructure:"status_property"`
	QueuedStatus   string  `yaml:"queued_status" mapstructure:"queued_status"` // empty loads every page
	DraftedStatus  string  `yaml:"drafted_status" mapstructure:"drafted_status"`
	ReviewStatus   string  `yaml:"review_status" mapstructure:"review_status"`
	RPS            float64 `yaml:"rps" mapstructure:"rps"`
}

// GmailConfig points at OAuth client and token files for draft export.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentials_file" mapstructure:"credentials_file"`
	TokenFile       string `yaml:"token_file" mapstructure:"token_file"`
	Sender          string `yaml:"sender" mapstructure:"sender"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	SessionTTLHours int      `yaml:"session_ttl_hours" mapstructure:"session_ttl_hours"`
	MaxUploadMB     int      `yaml:"max_upload_mb" mapstructure:"max_upload_mb"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MonitoringConfig configures batch alerting. Zero thresholds disable a check.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	FlaggedRateThreshold float64 `yaml:"flagged_rate_threshold" mapstructure:"flagged_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic  map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Gemini     map[string]ModelPricing `yaml:"gemini" mapstructure:"gemini"`
	Jina       JinaPricing             `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityPricing       `yaml:"perplexity" mapstructure:"perplexity"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// JinaPricing holds Jina search pricing.
type JinaPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// PerplexityPricing holds Perplexity pricing.
type PerplexityPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// GenerationTimeout returns the per-call generation deadline.
func (c GenerationConfig) GenerationTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SearchTimeout returns the per-call search deadline.
func (c SearchConfig) SearchTimeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("OUTREACH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.session_ttl_hours", 24)
	v.SetDefault("server.max_upload_mb", 16)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.org_timeout_secs", 600)
	v.SetDefault("batch.max_organizations", 500)
	v.SetDefault("anthropic.draft_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.critique_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.rps", 2)
	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.rps", 2)
	v.SetDefault("generation.provider", "anthropic")
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.critique_temperature", 0.3)
	v.SetDefault("generation.max_tokens", 1024)
	v.SetDefault("generation.timeout_secs", 60)
	v.SetDefault("generation.retries", 2)
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("jina.rps", 3)
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("perplexity.rps", 1)
	v.SetDefault("search.enabled", true)
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.max_results", 8)
	v.SetDefault("search.read_official", true)
	v.SetDefault("search.retries", 1)
	v.SetDefault("contact.floor", 50)
	v.SetDefault("contact.threshold", 80)
	v.SetDefault("contact.max_candidates", 3)
	v.SetDefault("quality.accept_threshold", 70)
	v.SetDefault("quality.validator_weight", 0.6)
	v.SetDefault("quality.max_retries", 3)
	v.SetDefault("quality.retry_delay_ms", 2000)
	v.SetDefault("quality.min_words", 100)
	v.SetDefault("quality.max_words", 300)
	v.SetDefault("quality.max_subject_len", 80)
	v.SetDefault("quality.issue_score_floor", 60)
	v.SetDefault("input.charset", "utf-8")
	v.SetDefault("notion.status_property", "Status")
	v.SetDefault("notion.drafted_status", "Drafted")
	v.SetDefault("notion.review_status", "Needs Review")
	v.SetDefault("notion.rps", 3)
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.flagged_rate_threshold", 0.75)
	v.SetDefault("pricing.jina.per_query", 0.002)
	v.SetDefault("pricing.perplexity.per_query", 0.005)

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

// Validate checks that the config has the fields required by a command mode.
// Modes: "generate", "offline", "serve", "drafts", "check".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "generate", "serve":
		errs = append(errs, c.validateProviders()...)
		errs = append(errs, c.validateQuality()...)
	case "offline", "check":
		errs = append(errs, c.validateQuality()...)
	case "drafts":
		if c.Gmail.CredentialsFile == "" {
			errs = append(errs, "gmail.credentials_file is required")
		}
		if c.Gmail.TokenFile == "" {
			errs = append(errs, "gmail.token_file is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}
	if mode == "generate" || mode == "offline" || mode == "serve" {
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 32 {
			errs = append(errs, fmt.Sprintf("batch.concurrency must be between 1 and 32, got %d", c.Batch.Concurrency))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateProviders() []string {
	var errs []string
	switch c.Generation.Provider {
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "gemini":
		if c.Gemini.Key == "" {
			errs = append(errs, "gemini.key is required")
		}
	case "stub":
	default:
		errs = append(errs, fmt.Sprintf("generation.provider must be anthropic, gemini or stub, got %q", c.Generation.Provider))
	}
	if c.Search.Enabled && c.Jina.Key == "" && c.Perplexity.Key == "" {
		errs = append(errs, "jina.key or perplexity.key is required when search is enabled")
	}
	return errs
}

func (c *Config) validateQuality() []string {
	var errs []string
	q := c.Quality
	if q.AcceptThreshold < 0 || q.AcceptThreshold > 100 {
		errs = append(errs, fmt.Sprintf("quality.accept_threshold must be between 0 and 100, got %g", q.AcceptThreshold))
	}
	if q.ValidatorWeight < 0 || q.ValidatorWeight > 1 {
		errs = append(errs, fmt.Sprintf("quality.validator_weight must be between 0 and 1, got %g", q.ValidatorWeight))
	}
	if q.MaxRetries < 1 {
		errs = append(errs, "quality.max_retries must be >= 1")
	}
	if q.MinWords <= 0 || q.MaxWords <= 0 || q.MinWords > q.MaxWords {
		errs = append(errs, fmt.Sprintf("quality word bounds invalid: min=%d max=%d", q.MinWords, q.MaxWords))
	}
	if c.Contact.Threshold < 0 || c.Contact.Threshold > 100 || c.Contact.Floor < 0 || c.Contact.Floor > 100 {
		errs = append(errs, "contact.floor and contact.threshold must be between 0 and 100")
	}
	return errs
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
