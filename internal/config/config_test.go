package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 24, cfg.Server.SessionTTLHours)
	assert.Equal(t, 4, cfg.Batch.Concurrency)
	assert.Equal(t, "anthropic", cfg.Generation.Provider)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 0.001)
	assert.InDelta(t, 0.3, cfg.Generation.CritiqueTemperature, 0.001)
	assert.Equal(t, "claude-sonnet-4-5-20250929", cfg.Anthropic.DraftModel)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, 50, cfg.Contact.Floor)
	assert.Equal(t, 80, cfg.Contact.Threshold)
	assert.Equal(t, 3, cfg.Contact.MaxCandidates)
	assert.InDelta(t, 70, cfg.Quality.AcceptThreshold, 0.001)
	assert.InDelta(t, 0.6, cfg.Quality.ValidatorWeight, 0.001)
	assert.Equal(t, 3, cfg.Quality.MaxRetries)
	assert.Equal(t, 100, cfg.Quality.MinWords)
	assert.Equal(t, 300, cfg.Quality.MaxWords)
	assert.True(t, cfg.Search.Enabled)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.InDelta(t, 0.25, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.InDelta(t, 0.75, cfg.Monitoring.FlaggedRateThreshold, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
quality:
  accept_threshold: 80
  validator_weight: 1.0
batch:
  concurrency: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 80, cfg.Quality.AcceptThreshold, 0.001)
	assert.InDelta(t, 1.0, cfg.Quality.ValidatorWeight, 0.001)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	// Defaults still apply for unset values
	assert.Equal(t, 300, cfg.Quality.MaxWords)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
generation:
  provider: gemini
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("OUTREACH_LOG_LEVEL", "warn")
	t.Setenv("OUTREACH_GENERATION_PROVIDER", "stub")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "stub", cfg.Generation.Provider)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("log: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the documented defaults for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Generation.Provider = "anthropic"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Search.Enabled = true
	cfg.Jina.Key = "jina-key"
	cfg.Contact.Floor = 50
	cfg.Contact.Threshold = 80
	cfg.Quality.AcceptThreshold = 70
	cfg.Quality.ValidatorWeight = 0.6
	cfg.Quality.MaxRetries = 3
	cfg.Quality.MinWords = 100
	cfg.Quality.MaxWords = 300
	cfg.Batch.Concurrency = 4
	cfg.Server.Port = 8080
	cfg.Gmail.CredentialsFile = "credentials.json"
	cfg.Gmail.TokenFile = "token.json"
	return cfg
}

func TestValidate_AllModesPassWithDefaults(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"generate", "offline", "serve", "drafts", "check"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_MissingProviderKeys(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""
	cfg.Jina.Key = ""

	err := cfg.Validate("generate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")
	assert.Contains(t, err.Error(), "jina.key or perplexity.key is required")

	// Offline runs never need keys.
	assert.NoError(t, cfg.Validate("offline"))
}

func TestValidate_SearchDisabledNeedsNoSearchKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Jina.Key = ""
	cfg.Search.Enabled = false
	assert.NoError(t, cfg.Validate("generate"))
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Generation.Provider = "openai"

	err := cfg.Validate("generate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation.provider")
}

func TestValidate_QualityBounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"threshold above 100", func(c *Config) { c.Quality.AcceptThreshold = 101 }, "accept_threshold"},
		{"negative weight", func(c *Config) { c.Quality.ValidatorWeight = -0.1 }, "validator_weight"},
		{"weight above one", func(c *Config) { c.Quality.ValidatorWeight = 1.5 }, "validator_weight"},
		{"zero retries", func(c *Config) { c.Quality.MaxRetries = 0 }, "max_retries"},
		{"inverted word bounds", func(c *Config) { c.Quality.MinWords = 400 }, "word bounds"},
		{"empty word bounds", func(c *Config) { c.Quality.MaxWords = 0 }, "word bounds"},
		{"contact threshold", func(c *Config) { c.Contact.Threshold = 120 }, "contact.floor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate("check")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_WeightExtremesAllowed(t *testing.T) {
	cfg := validDefaults()
	cfg.Quality.ValidatorWeight = 0
	assert.NoError(t, cfg.Validate("offline"))
	cfg.Quality.ValidatorWeight = 1
	assert.NoError(t, cfg.Validate("offline"))
}

func TestValidate_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 32")

	cfg.Batch.Concurrency = 32
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidate_Drafts(t *testing.T) {
	cfg := validDefaults()
	cfg.Gmail.TokenFile = ""

	err := cfg.Validate("drafts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gmail.token_file is required")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
