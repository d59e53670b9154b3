// Package testsupport provides shared constructors for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"remux/internal/cache"
	"remux/internal/config"
	"remux/internal/logging"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "work")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.SocketPath = filepath.Join(base, "remuxd.sock")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Cache.GCInterval = 1
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithCacheBudgets overrides the cache byte budgets on the test config.
func WithCacheBudgets(sourceGiB, outputGiB float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Cache.SourceMaxGiB = sourceGiB
		cfg.Cache.OutputMaxGiB = outputGiB
	}
}

// MustOpenCache opens a cache.Cache for tests and registers cleanup.
func MustOpenCache(t testing.TB, cfg *config.Config) *cache.Cache {
	t.Helper()

	c, err := cache.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Close()
	})
	return c
}
