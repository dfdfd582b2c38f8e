package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to create a temp config file.
func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()

	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

const validConfigYAML = `
sources:
  - name: "lokalebekendmakingen"
    url: "https://repository.overheid.nl/frbr/lokalebekendmakingen"
    label: "lokalebekendmakingen"
    enabled: true
allowed_domains: ["repository.overheid.nl"]
collector:
  target_count: 50
  delay_ms: 0
retry:
  max_attempts: 3
  initial_delay_ms: 100
  max_delay_ms: 5000
  backoff_multiplier: 2.0
  timeout_sec: 10
upload:
  repo_id: "someone/dataset"
  shard_size: 25
logging:
  level: "debug"
schedule:
  cron: "0 3 * * *"
`

func TestLoadConfig_Valid(t *testing.T) {
	configPath := createTempConfigFile(t, validConfigYAML)

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	require.Len(t, cfg.Sources, 1)
	assert.Equal(t, "lokalebekendmakingen", cfg.Sources[0].Label)
	assert.Equal(t, []string{"repository.overheid.nl"}, cfg.AllowedDomains)
	assert.Equal(t, 50, cfg.Collector.TargetCount)
	assert.Equal(t, 25, cfg.Upload.ShardSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, "https://repository.overheid.nl/sru", cfg.SRU.Endpoint)
	assert.Equal(t, "url_list.json", cfg.Paths.URLList)
	assert.Equal(t, "HF_TOKEN", cfg.Upload.TokenEnv)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := createTempConfigFile(t, "invalid: yaml: content: [}")

	_, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("Expected error for invalid YAML, got nil")
	}
}

func TestLoadConfig_ValidationError(t *testing.T) {
	configPath := createTempConfigFile(t, "upload:\n  shard_size: 0\n")

	_, err := LoadConfig(configPath)
	require.ErrorIs(t, err, ErrInvalidShardSize)
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr error
	}{
		{"no sources", func(c *Config) { c.Sources = nil }, ErrNoSources},
		{"missing url", func(c *Config) { c.Sources[0].URL = "" }, ErrSourceMissingURL},
		{"missing label", func(c *Config) { c.Sources[1].Label = "" }, ErrSourceMissingLabel},
		{"none enabled", func(c *Config) {
			for i := range c.Sources {
				c.Sources[i].Enabled = false
			}
		}, ErrNoEnabledSources},
		{"no allowed domains", func(c *Config) { c.AllowedDomains = nil }, ErrNoAllowedDomains},
		{"target count", func(c *Config) { c.Collector.TargetCount = 0 }, ErrInvalidTargetCount},
		{"max attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"initial delay", func(c *Config) { c.Retry.InitialDelayMs = -1 }, ErrInvalidInitialDelay},
		{"multiplier", func(c *Config) { c.Retry.BackoffMultiplier = 0.5 }, ErrInvalidBackoffMultiplier},
		{"timeout", func(c *Config) { c.Retry.TimeoutSec = 0 }, ErrInvalidTimeout},
		{"sru endpoint", func(c *Config) { c.SRU.Endpoint = "/sru" }, ErrInvalidSRUEndpoint},
		{"batch size", func(c *Config) { c.SRU.BatchSize = 1001 }, ErrInvalidBatchSize},
		{"repo id", func(c *Config) { c.Upload.RepoID = "" }, ErrMissingRepoID},
		{"harvest repo id", func(c *Config) { c.Upload.HarvestRepoID = "" }, ErrMissingHarvestRepoID},
		{"shared harvest repo", func(c *Config) { c.Upload.HarvestRepoID = c.Upload.RepoID }, ErrSharedHarvestRepo},
		{"shard size", func(c *Config) { c.Upload.ShardSize = 0 }, ErrInvalidShardSize},
		{"paths", func(c *Config) { c.Paths.Cleaned = "" }, ErrMissingPaths},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }, ErrInvalidLogLevel},
		{"schedule", func(c *Config) { c.Schedule.Cron = "every day" }, ErrInvalidSchedule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- RetryPolicy Tests ---

func TestUploadConfig_HarvestTarget(t *testing.T) {
	cfg := Default()

	target := cfg.Upload.HarvestTarget()

	assert.Equal(t, "vGassen/Dutch-Lokale-Bekendmakingen", target.RepoID)
	assert.Equal(t, cfg.Upload.ShardSize, target.ShardSize)
	assert.Equal(t, "vGassen/Dutch-Officiele-Publicaties-Lokale-Bekendmakingen", cfg.Upload.RepoID)
}

func TestRetryPolicy_GetRetryDelay(t *testing.T) {
	rp := RetryPolicy{
		InitialDelayMs:    100,
		MaxDelayMs:        1000,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 0},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1000 * time.Millisecond},
		{10, 1000 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run("", func(t *testing.T) {
			got := rp.GetRetryDelay(tt.attempt)
			if got != tt.expected {
				t.Errorf("GetRetryDelay(%d) = %v, want %v", tt.attempt, got, tt.expected)
			}
		})
	}
}

func TestRetryPolicy_GetTimeout(t *testing.T) {
	rp := RetryPolicy{TimeoutSec: 30}
	assert.Equal(t, 30*time.Second, rp.GetTimeout())
}

// --- Config Helper Method Tests ---

func TestConfig_GetEnabledSources(t *testing.T) {
	cfg := Default()
	cfg.Sources[0].Enabled = false

	enabled := cfg.GetEnabledSources()
	require.Len(t, enabled, 1)
	assert.Equal(t, "lokalebekendmakingen", enabled[0].Name)
}

func TestConfig_Labels(t *testing.T) {
	labels := Default().Labels()

	assert.True(t, labels["officielepublicaties"])
	assert.True(t, labels["lokalebekendmakingen"])
	assert.True(t, labels["Lokale Bekendmakingen"])
	assert.True(t, labels["Officiële Publicaties"])
	assert.False(t, labels["unknown"])
}

func TestConfig_Token(t *testing.T) {
	cfg := Default()
	cfg.Upload.TokenEnv = "BEKENDMAKINGEN_TEST_TOKEN"
	t.Setenv("BEKENDMAKINGEN_TEST_TOKEN", "hf_secret")

	assert.Equal(t, "hf_secret", cfg.Token())
}

func TestLoadEnv_DoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("BEKENDMAKINGEN_A=file\nBEKENDMAKINGEN_B=file\n"), 0644))

	t.Setenv("BEKENDMAKINGEN_A", "env")
	t.Setenv("BEKENDMAKINGEN_B", "")
	require.NoError(t, os.Unsetenv("BEKENDMAKINGEN_B"))

	require.NoError(t, LoadEnv(envFile, filepath.Join(dir, "missing")))

	assert.Equal(t, "env", os.Getenv("BEKENDMAKINGEN_A"))
	assert.Equal(t, "file", os.Getenv("BEKENDMAKINGEN_B"))
}

func TestConfig_String(t *testing.T) {
	str := Default().String()
	assert.Contains(t, str, "Sources: 2")
}

func TestConfig_SaveConfig(t *testing.T) {
	cfg := Default()
	cfg.Collector.TargetCount = 77

	savePath := filepath.Join(t.TempDir(), "saved_config.yaml")
	require.NoError(t, cfg.SaveConfig(savePath))

	loaded, err := LoadConfig(savePath)
	require.NoError(t, err)
	assert.Equal(t, 77, loaded.Collector.TargetCount)
	assert.Len(t, loaded.Sources, 2)
}

func TestLoadConfig_ShippedFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", DefaultPath))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Sources, cfg.Sources)
	assert.Equal(t, def.SRU, cfg.SRU)
	assert.Equal(t, def.Paths, cfg.Paths)
	assert.Equal(t, def.Upload, cfg.Upload)
	assert.Equal(t, def.Retry, cfg.Retry)
}
