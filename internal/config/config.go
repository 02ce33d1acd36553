// Package config loads ~/.config/fieldcall/config.yaml and watches it for
// changes while the due-item runner is active.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"github.com/julianstephens/fieldcall/internal/constants"
	"github.com/julianstephens/fieldcall/internal/models"
	"github.com/julianstephens/fieldcall/internal/utils"
)

// Step is one entry of the tiered allocation plan.
type Step struct {
	Tier  models.Tier `yaml:"tier"`
	Count int         `yaml:"count"`
}

type QuotaConfig struct {
	Target    int    `yaml:"target"`
	SundayOff *bool  `yaml:"sunday_off"`
	Steps     []Step `yaml:"steps"`
}

type ScanConfig struct {
	Interval time.Duration `yaml:"interval"`
	Jitter   float64       `yaml:"jitter"`
}

type SurveyConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RatePerSec float64       `yaml:"rate_per_sec"`
}

type NotifyConfig struct {
	Enabled    *bool   `yaml:"enabled"`
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// LogConfig controls the rotated log file under the config directory.
type LogConfig struct {
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type Config struct {
	Timezone string        `yaml:"timezone"`
	Quota    QuotaConfig   `yaml:"quota"`
	Scan     ScanConfig    `yaml:"scan"`
	Survey   SurveyConfig  `yaml:"survey"`
	Notify   NotifyConfig  `yaml:"notify"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Log      LogConfig     `yaml:"log"`
}

// DefaultSteps is the allocation plan used when the file names none.
func DefaultSteps() []Step {
	return []Step{
		{Tier: models.TierTop50, Count: 15},
		{Tier: models.TierNext30, Count: 10},
		{Tier: models.TierBalance20, Count: 5},
		{Tier: models.TierCSR, Count: 5},
		{Tier: models.TierTSA, Count: 5},
	}
}

func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func boolPtr(b bool) *bool { return &b }

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = constants.DefaultTimezone
	}
	if c.Quota.Target == 0 {
		c.Quota.Target = constants.DefaultQuotaTarget
	}
	if c.Quota.SundayOff == nil {
		c.Quota.SundayOff = boolPtr(constants.DefaultSundayOff)
	}
	if len(c.Quota.Steps) == 0 {
		c.Quota.Steps = DefaultSteps()
	}
	if c.Scan.Interval == 0 {
		c.Scan.Interval = constants.DefaultScanInterval
	}
	if c.Scan.Jitter == 0 {
		c.Scan.Jitter = constants.DefaultScanJitter
	}
	if c.Survey.Timeout == 0 {
		c.Survey.Timeout = constants.DefaultSurveyTimeout
	}
	if c.Survey.MaxRetries == 0 {
		c.Survey.MaxRetries = constants.SurveyMaxRetries
	}
	if c.Survey.RatePerSec == 0 {
		c.Survey.RatePerSec = constants.DefaultSurveyRatePerSec
	}
	if c.Notify.Enabled == nil {
		c.Notify.Enabled = boolPtr(constants.DefaultNotificationsEnabled)
	}
	if c.Notify.RatePerSec == 0 {
		c.Notify.RatePerSec = constants.DefaultNotifyRatePerSec
	}
	if c.Log.Format == "" {
		c.Log.Format = constants.DefaultLogFormat
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = constants.DefaultLogMaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = constants.DefaultLogMaxBackups
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = constants.DefaultLogMaxAgeDays
	}
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	if !utils.ValidateTimezone(c.Timezone) {
		return fmt.Errorf("unknown timezone %q", c.Timezone)
	}
	if c.Quota.Target < 0 {
		return fmt.Errorf("quota.target must not be negative, got %d", c.Quota.Target)
	}
	seen := map[models.Tier]bool{}
	for i, s := range c.Quota.Steps {
		if !s.Tier.Valid() {
			return fmt.Errorf("quota.steps[%d]: unknown tier %q", i, s.Tier)
		}
		if seen[s.Tier] {
			return fmt.Errorf("quota.steps[%d]: tier %s listed twice", i, s.Tier)
		}
		seen[s.Tier] = true
		if s.Count < 0 {
			return fmt.Errorf("quota.steps[%d]: count must not be negative", i)
		}
	}
	if c.Scan.Interval < constants.MinScanInterval {
		return fmt.Errorf("scan.interval must be at least %v, got %v", constants.MinScanInterval, c.Scan.Interval)
	}
	if c.Scan.Jitter < 0 || c.Scan.Jitter > 1 {
		return fmt.Errorf("scan.jitter must be between 0 and 1, got %v", c.Scan.Jitter)
	}
	if c.Survey.Timeout <= 0 || c.Survey.MaxRetries < 0 || c.Survey.RatePerSec <= 0 {
		return errors.New("survey timeout, max_retries and rate_per_sec must be positive")
	}
	if c.Notify.RatePerSec <= 0 {
		return errors.New("notify.rate_per_sec must be positive")
	}
	switch c.Log.Format {
	case "text", "json", "logfmt":
	default:
		return fmt.Errorf("log.format must be text, json or logfmt, got %q", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return errors.New("log rotation settings must not be negative")
	}
	return nil
}

func (c *Config) SundayOff() bool {
	return c.Quota.SundayOff == nil || *c.Quota.SundayOff
}

func (c *Config) NotificationsEnabled() bool {
	return c.Notify.Enabled == nil || *c.Notify.Enabled
}

// Parse decodes YAML, rejecting unknown keys, then fills defaults and
// validates.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Save writes cfg as YAML, creating the parent directory.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}
