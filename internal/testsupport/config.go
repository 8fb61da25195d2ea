package testsupport

import (
	"path/filepath"
	"testing"

	"newswatch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Queues.PollIntervalSeconds = 1

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithFetchTimeout overrides the feed retrieval timeout in seconds.
func WithFetchTimeout(seconds int) ConfigOption {
	return func(c *config.Config) {
		c.Fetch.TimeoutSeconds = seconds
	}
}

// WithIncrementalBatchLimit overrides how many sources one incremental run enqueues.
func WithIncrementalBatchLimit(limit int) ConfigOption {
	return func(c *config.Config) {
		c.Scan.IncrementalBatchLimit = limit
	}
}
