package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Redis contains connection settings for the dedup cache.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	// NewTTLSeconds bounds how long a hash stays marked pending-insert.
	NewTTLSeconds int `toml:"new_ttl_seconds"`
	// ExistsTTLDays bounds how long a confirmed hash stays cached.
	ExistsTTLDays int `toml:"exists_ttl_days"`
}

// Fetch contains feed retrieval and normalization settings.
type Fetch struct {
	TimeoutSeconds      int `toml:"timeout_seconds"`
	RetryMaxAttempts    int `toml:"retry_max_attempts"`
	RetryInitialDelayMS int `toml:"retry_initial_delay_ms"`
	RetryMaxDelayMS     int `toml:"retry_max_delay_ms"`
	// RatePerInterval tokens are granted per source every RateIntervalSeconds.
	RatePerInterval     int `toml:"rate_per_interval"`
	RateIntervalSeconds int `toml:"rate_interval_seconds"`
	BreakerThreshold    int `toml:"breaker_threshold"`
	BreakerCooldownSecs int `toml:"breaker_cooldown_seconds"`
	FreshnessHorizonDays int `toml:"freshness_horizon_days"`
	MaxLedeChars         int `toml:"max_lede_chars"`
}

// Scan contains orchestration settings.
type Scan struct {
	// IncrementalBatchLimit caps how many sources one incremental run enqueues.
	IncrementalBatchLimit int `toml:"incremental_batch_limit"`
	// PriorityCategory names the source category that full scans enqueue first.
	PriorityCategory string `toml:"priority_category"`
}

// Queues contains per-queue worker concurrency and retry settings.
type Queues struct {
	FetchConcurrency       int `toml:"fetch_concurrency"`
	ClassifyConcurrency    int `toml:"classify_concurrency"`
	ClassifyPerMinute      int `toml:"classify_per_minute"`
	GenerateConcurrency    int `toml:"generate_concurrency"`
	PollIntervalSeconds    int `toml:"poll_interval_seconds"`
	LeaseSeconds           int `toml:"lease_seconds"`
	FetchMaxAttempts       int `toml:"fetch_max_attempts"`
	ClassifyMaxAttempts    int `toml:"classify_max_attempts"`
	GenerateMaxAttempts    int `toml:"generate_max_attempts"`
	RetryBackoffBaseSecs   int `toml:"retry_backoff_base_seconds"`
}

// Classifier contains connection settings for the external relevance scorer.
type Classifier struct {
	BaseURL            string  `toml:"base_url"`
	APIKey             string  `toml:"api_key"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	RelevanceThreshold float64 `toml:"relevance_threshold"`
	GenerateThreshold  float64 `toml:"generate_threshold"`
}

// Generator contains connection settings for the external draft writer.
type Generator struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Platforms      []string `toml:"platforms"`
}

// Retention contains the cleanup windows applied by cleanup scans.
type Retention struct {
	ArticleDays   int `toml:"article_days"`
	ScanLogDays   int `toml:"scan_log_days"`
	SummaryDays   int `toml:"summary_days"`
}

// Config encapsulates all configuration values for newswatch.
//
// Configuration sections by subsystem:
//   - Paths: data and log directories
//   - Logging: log format and level
//   - Redis: dedup cache connection and TTLs
//   - Fetch: feed retrieval timeouts, retry, rate limiting
//   - Scan: orchestration batch limits and priorities
//   - Queues: worker concurrency, lease, and retry settings
//   - Classifier: external relevance-scoring service
//   - Generator: external content-generation service
//   - Retention: cleanup windows
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Redis      Redis      `toml:"redis"`
	Fetch      Fetch      `toml:"fetch"`
	Scan       Scan       `toml:"scan"`
	Queues     Queues     `toml:"queues"`
	Classifier Classifier `toml:"classifier"`
	Generator  Generator  `toml:"generator"`
	Retention  Retention  `toml:"retention"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/newswatch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The second return value
// is the resolved path, the third reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if os.IsNotExist(err) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(defaultPath); err != nil {
		if os.IsNotExist(err) {
			return defaultPath, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return defaultPath, true, nil
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "newswatch.db")
}

// LockPath returns the daemon lock file location under the data directory.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "newswatchd.lock")
}

// FetchTimeout returns the per-request feed retrieval timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FreshnessHorizon returns how far back a publish date may lie before the
// item is discarded as stale.
func (c *Config) FreshnessHorizon() time.Duration {
	return time.Duration(c.Fetch.FreshnessHorizonDays) * 24 * time.Hour
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Scan.PriorityCategory = strings.ToLower(strings.TrimSpace(c.Scan.PriorityCategory))
	c.Classifier.BaseURL = strings.TrimSpace(c.Classifier.BaseURL)
	c.Generator.BaseURL = strings.TrimSpace(c.Generator.BaseURL)
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return abs, nil
}
