package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	if err := c.validateQueues(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return errors.New("paths.data_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateFetch() error {
	if c.Fetch.TimeoutSeconds <= 0 {
		return errors.New("fetch.timeout_seconds must be positive")
	}
	if c.Fetch.RetryMaxAttempts < 1 {
		return errors.New("fetch.retry_max_attempts must be at least 1")
	}
	if c.Fetch.RatePerInterval < 1 || c.Fetch.RateIntervalSeconds < 1 {
		return errors.New("fetch.rate_per_interval and fetch.rate_interval_seconds must be at least 1")
	}
	if c.Fetch.BreakerThreshold < 1 {
		return errors.New("fetch.breaker_threshold must be at least 1")
	}
	if c.Fetch.FreshnessHorizonDays < 1 {
		return errors.New("fetch.freshness_horizon_days must be at least 1")
	}
	if c.Fetch.MaxLedeChars < 30 {
		return errors.New("fetch.max_lede_chars must be at least 30")
	}
	return nil
}

func (c *Config) validateQueues() error {
	if c.Queues.FetchConcurrency < 1 {
		return errors.New("queues.fetch_concurrency must be at least 1")
	}
	if c.Queues.ClassifyConcurrency < 1 {
		return errors.New("queues.classify_concurrency must be at least 1")
	}
	if c.Queues.ClassifyPerMinute < 1 {
		return errors.New("queues.classify_per_minute must be at least 1")
	}
	if c.Queues.GenerateConcurrency < 1 {
		return errors.New("queues.generate_concurrency must be at least 1")
	}
	if c.Queues.PollIntervalSeconds < 1 {
		return errors.New("queues.poll_interval_seconds must be at least 1")
	}
	if c.Queues.LeaseSeconds < 1 {
		return errors.New("queues.lease_seconds must be at least 1")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.RelevanceThreshold < 0 || c.Classifier.RelevanceThreshold > 1 {
		return errors.New("classifier.relevance_threshold must be between 0 and 1")
	}
	if c.Classifier.GenerateThreshold < 0 || c.Classifier.GenerateThreshold > 1 {
		return errors.New("classifier.generate_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.ArticleDays < 1 || c.Retention.ScanLogDays < 1 || c.Retention.SummaryDays < 1 {
		return errors.New("retention windows must be at least one day")
	}
	return nil
}
