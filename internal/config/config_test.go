package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"remux/internal/config"
)

func TestLoadDefaultsExpandPathsAndEnvOverrides(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("REMUX_S5_AUTH_TOKEN", "secret-token")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantCache := filepath.Join(tempHome, ".cache", "remux")
	if cfg.Paths.CacheDir != wantCache {
		t.Fatalf("unexpected cache dir: got %q want %q", cfg.Paths.CacheDir, wantCache)
	}
	if cfg.Paths.APIBind != "127.0.0.1:8000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Storage.S5AuthToken != "secret-token" {
		t.Fatalf("expected auth token from env, got %q", cfg.Storage.S5AuthToken)
	}
	if cfg.Storage.S5EncryptedPortalURL != cfg.Storage.S5PortalURL {
		t.Fatalf("expected encrypted portal to fall back to portal, got %q", cfg.Storage.S5EncryptedPortalURL)
	}
	if cfg.Encoder.Binary != "ffmpeg" {
		t.Fatalf("unexpected encoder binary: %q", cfg.Encoder.Binary)
	}
	if cfg.Cache.GCInterval != 60 {
		t.Fatalf("unexpected gc interval: %d", cfg.Cache.GCInterval)
	}
}

func TestLoadParsesFileValues(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[paths]
api_bind = "0.0.0.0:9000"

[cache]
source_max_gib = 1.5
output_max_gib = 3.0
gc_interval = 5

[encoder]
cpu_slots = 8
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to be found")
	}
	if cfg.Paths.APIBind != "0.0.0.0:9000" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if got := cfg.SourceBudgetBytes(); got != int64(1.5*1024*1024*1024) {
		t.Fatalf("unexpected source budget: %d", got)
	}
	if cfg.Encoder.CPUSlots != 8 {
		t.Fatalf("unexpected cpu slots: %d", cfg.Encoder.CPUSlots)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero source budget", func(c *config.Config) { c.Cache.SourceMaxGiB = 0 }},
		{"negative output budget", func(c *config.Config) { c.Cache.OutputMaxGiB = -1 }},
		{"zero gc interval", func(c *config.Config) { c.Cache.GCInterval = 0 }},
		{"bad log format", func(c *config.Config) { c.Logging.Format = "xml" }},
		{"bad portal scheme", func(c *config.Config) { c.Storage.S5PortalURL = "ftp://s5.cx" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Logging.Format = "text"
			cfg.Logging.Level = "info"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected sample content")
	}
}
