// Package config provides configuration management for the crawler pipeline.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Configuration validation errors.
var (
	ErrNoSources                = errors.New("at least one source is required")
	ErrSourceMissingURL         = errors.New("source url is required")
	ErrSourceMissingLabel       = errors.New("source label is required")
	ErrNoEnabledSources         = errors.New("at least one source must be enabled")
	ErrNoAllowedDomains         = errors.New("allowed_domains must not be empty")
	ErrInvalidTargetCount       = errors.New("collector.target_count must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrInvalidSRUEndpoint       = errors.New("sru.endpoint must be an absolute URL")
	ErrInvalidBatchSize         = errors.New("sru.batch_size must be between 1 and 1000")
	ErrMissingRepoID            = errors.New("upload.repo_id is required")
	ErrMissingHarvestRepoID     = errors.New("upload.harvest_repo_id is required")
	ErrSharedHarvestRepo        = errors.New("upload.harvest_repo_id must differ from upload.repo_id")
	ErrInvalidShardSize         = errors.New("upload.shard_size must be at least 1")
	ErrMissingPaths             = errors.New("paths.url_list, paths.data_dir and paths.cleaned must be set")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidSchedule          = errors.New("schedule.cron is not a valid cron expression")
)

// Config represents the complete pipeline configuration.
type Config struct {
	Sources        []SourceConfig  `yaml:"sources"`
	AllowedDomains []string        `yaml:"allowed_domains"`
	Collector      CollectorConfig `yaml:"collector"`
	SRU            SRUConfig       `yaml:"sru"`
	Retry          RetryPolicy     `yaml:"retry"`
	Paths          PathsConfig     `yaml:"paths"`
	Upload         UploadConfig    `yaml:"upload"`
	Logging        LoggingConfig   `yaml:"logging"`
	Schedule       ScheduleConfig  `yaml:"schedule"`
}

// SourceConfig is one FRBR repository root.
type SourceConfig struct {
	Name    string `yaml:"name"`
	URL     string `yaml:"url"`
	Label   string `yaml:"label"`
	Enabled bool   `yaml:"enabled"`
}

// CollectorConfig controls the URL collection walk.
type CollectorConfig struct {
	UserAgent     string `yaml:"user_agent"`
	TargetCount   int    `yaml:"target_count"`
	SaveEvery     int    `yaml:"save_every"`
	PageSize      int    `yaml:"page_size"`
	MaxPages      int    `yaml:"max_pages"`
	DelayMs       int    `yaml:"delay_ms"`
	MaxBodySizeKb int    `yaml:"max_body_size_kb"`
}

// SRUConfig controls the search/retrieve harvester.
type SRUConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Version      string `yaml:"version"`
	Query        string `yaml:"query"`
	RecordSchema string `yaml:"record_schema"`
	Label        string `yaml:"label"`
	EventLabel   string `yaml:"event_label"`
	EventBaseURL string `yaml:"event_base_url"`
	BatchSize    int    `yaml:"batch_size"`
	MaxRecords   int    `yaml:"max_records"`
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	JitterMs          int     `yaml:"jitter_ms"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// PathsConfig lists the files handed from one step to the next.
type PathsConfig struct {
	URLList        string `yaml:"url_list"`
	DataDir        string `yaml:"data_dir"`
	Cleaned        string `yaml:"cleaned"`
	HarvestOutput  string `yaml:"harvest_output"`
	HarvestState   string `yaml:"harvest_state"`
	UploadProgress string `yaml:"upload_progress"`
	HarvestUpload  string `yaml:"harvest_upload"`
}

// UploadConfig defines the dataset hub target.
type UploadConfig struct {
	Endpoint string `yaml:"endpoint"`
	RepoID   string `yaml:"repo_id"`
	// HarvestRepoID receives the harvester's shards. Both writers number
	// their shards from 0, so they cannot share a repo.
	HarvestRepoID string `yaml:"harvest_repo_id"`
	Revision      string `yaml:"revision"`
	TokenEnv      string `yaml:"token_env"`
	ShardSize     int    `yaml:"shard_size"`
	PushEvery     int    `yaml:"push_every"`
	Private       bool   `yaml:"private"`
	WriteCard     bool   `yaml:"write_card"`
}

// HarvestTarget returns the upload settings with the harvest repo as target.
func (u UploadConfig) HarvestTarget() *UploadConfig {
	u.RepoID = u.HarvestRepoID

	return &u
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ScheduleConfig holds the worker cron expression.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// Default returns a complete, valid configuration for the two KOOP repositories.
func Default() *Config {
	return &Config{
		Sources: []SourceConfig{
			{
				Name:    "officielepublicaties",
				URL:     "https://repository.overheid.nl/frbr/officielepublicaties",
				Label:   "officielepublicaties",
				Enabled: true,
			},
			{
				Name:    "lokalebekendmakingen",
				URL:     "https://repository.overheid.nl/frbr/lokalebekendmakingen",
				Label:   "lokalebekendmakingen",
				Enabled: true,
			},
		},
		AllowedDomains: []string{
			"repository.overheid.nl",
			"zoek.officielebekendmakingen.nl",
			"lokalebekendmakingen.nl",
		},
		Collector: CollectorConfig{
			UserAgent:     "Mozilla/5.0 (compatible; bekendmakingen-crawler/1.0)",
			TargetCount:   1000,
			SaveEvery:     20,
			PageSize:      50,
			MaxPages:      20,
			DelayMs:       500,
			MaxBodySizeKb: 16384,
		},
		SRU: SRUConfig{
			Endpoint:     "https://repository.overheid.nl/sru",
			Version:      "2.0",
			Query:        "c.product-area==lokalebekendmakingen",
			RecordSchema: "gzd",
			Label:        "Lokale Bekendmakingen",
			EventLabel:   "Officiële Publicaties",
			EventBaseURL: "https://repository.officiele-overheidspublicaties.nl/officielepublicaties/_events/",
			BatchSize:    1000,
		},
		Retry: RetryPolicy{
			MaxAttempts:       5,
			InitialDelayMs:    1000,
			MaxDelayMs:        60000,
			BackoffMultiplier: 2.0,
			JitterMs:          1000,
			TimeoutSec:        30,
		},
		Paths: PathsConfig{
			URLList:        "url_list.json",
			DataDir:        "data",
			Cleaned:        "cleaned_data.jsonl",
			HarvestOutput:  "output.jsonl",
			HarvestState:   "crawler_state.json",
			UploadProgress: "upload_progress.json",
			HarvestUpload:  "harvest_upload_progress.json",
		},
		Upload: UploadConfig{
			Endpoint:      "https://huggingface.co",
			RepoID:        "vGassen/Dutch-Officiele-Publicaties-Lokale-Bekendmakingen",
			HarvestRepoID: "vGassen/Dutch-Lokale-Bekendmakingen",
			Revision:      "main",
			TokenEnv:      "HF_TOKEN",
			ShardSize:     200,
			PushEvery:     300,
			WriteCard:     true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of Default().
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to a YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Sources) == 0 {
		return ErrNoSources
	}

	enabledCount := 0

	for i, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("%w: sources[%d]", ErrSourceMissingURL, i)
		}

		if src.Label == "" {
			return fmt.Errorf("%w: sources[%d]", ErrSourceMissingLabel, i)
		}

		if src.Enabled {
			enabledCount++
		}
	}

	if enabledCount == 0 {
		return ErrNoEnabledSources
	}

	if len(c.AllowedDomains) == 0 {
		return ErrNoAllowedDomains
	}

	if c.Collector.TargetCount < 1 {
		return ErrInvalidTargetCount
	}

	if c.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	if u, err := url.Parse(c.SRU.Endpoint); err != nil || !u.IsAbs() {
		return ErrInvalidSRUEndpoint
	}

	if c.SRU.BatchSize < 1 || c.SRU.BatchSize > 1000 {
		return ErrInvalidBatchSize
	}

	if c.Upload.RepoID == "" {
		return ErrMissingRepoID
	}

	if c.Upload.HarvestRepoID == "" {
		return ErrMissingHarvestRepoID
	}

	if c.Upload.HarvestRepoID == c.Upload.RepoID {
		return ErrSharedHarvestRepo
	}

	if c.Upload.ShardSize < 1 {
		return ErrInvalidShardSize
	}

	if c.Paths.URLList == "" || c.Paths.DataDir == "" || c.Paths.Cleaned == "" {
		return ErrMissingPaths
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSchedule, err)
		}
	}

	return nil
}

// GetEnabledSources returns only enabled sources.
func (c *Config) GetEnabledSources() []SourceConfig {
	var enabled []SourceConfig

	for _, src := range c.Sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	return enabled
}

// Labels returns the set of labels a record may carry.
func (c *Config) Labels() map[string]bool {
	labels := make(map[string]bool, len(c.Sources)+1)
	for _, src := range c.Sources {
		labels[src.Label] = true
	}

	for _, label := range []string{c.SRU.Label, c.SRU.EventLabel} {
		if label != "" {
			labels[label] = true
		}
	}

	return labels
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	if rp.MaxDelayMs > 0 && int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the per-request timeout.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// Delay returns the politeness delay between collector requests.
func (cc *CollectorConfig) Delay() time.Duration {
	return time.Duration(cc.DelayMs) * time.Millisecond
}

// Token returns the hub token from the configured environment variable.
func (c *Config) Token() string {
	name := c.Upload.TokenEnv
	if name == "" {
		name = "HF_TOKEN"
	}

	return os.Getenv(name)
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Sources: %d, Target: %d, MaxAttempts: %d, Repo: %s}",
		len(c.GetEnabledSources()),
		c.Collector.TargetCount,
		c.Retry.MaxAttempts,
		c.Upload.RepoID,
	)
}
