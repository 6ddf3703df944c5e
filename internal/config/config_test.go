package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Engine.URL != "http://127.0.0.1:8000/extract" {
		t.Errorf("default engine url = %q", cfg.Engine.URL)
	}
	if cfg.Engine.Method != "POST" {
		t.Errorf("default method = %q, want POST", cfg.Engine.Method)
	}
	if cfg.Engine.Timeout.Duration != 30*time.Second {
		t.Errorf("default engine timeout = %v, want 30s", cfg.Engine.Timeout)
	}
	if cfg.Proxy.Referer != "https://www.instagram.com/" {
		t.Errorf("default referer = %q", cfg.Proxy.Referer)
	}
	if cfg.Proxy.AllowPrivate {
		t.Error("default allow_private should be false")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"empty engine url", func(c *Config) { c.Engine.URL = "" }, true},
		{"engine url without scheme", func(c *Config) { c.Engine.URL = "127.0.0.1:8000/extract" }, true},
		{"engine url ftp", func(c *Config) { c.Engine.URL = "ftp://engine/extract" }, true},
		{"invalid method", func(c *Config) { c.Engine.Method = "PUT" }, true},
		{"lowercase get", func(c *Config) { c.Engine.Method = "get" }, false},
		{"get without query param", func(c *Config) { c.Engine.Method = "GET"; c.Engine.QueryParam = "" }, true},
		{"zero timeout", func(c *Config) { c.Engine.Timeout = Duration{} }, true},
		{"bad quota status", func(c *Config) { c.Engine.QuotaStatuses = []int{200} }, true},
		{"zero proxy timeout", func(c *Config) { c.Proxy.HeaderTimeout = Duration{} }, true},
		{"negative idle timeout", func(c *Config) { c.Proxy.IdleTimeout = Duration{-time.Second} }, true},
		{"explicit idle timeout", func(c *Config) { c.Proxy.IdleTimeout = Duration{time.Minute} }, false},
		{"tiny buffer", func(c *Config) { c.Proxy.BufferSize = 10 }, true},
		{"strip referer", func(c *Config) { c.Proxy.Referer = "" }, false},
		{"origin referer", func(c *Config) { c.Proxy.Referer = "origin" }, false},
		{"relative referer", func(c *Config) { c.Proxy.Referer = "/home" }, true},
		{"image first", func(c *Config) { c.Normalize.Prefer = []string{"image", "video"} }, false},
		{"unknown kind", func(c *Config) { c.Normalize.Prefer = []string{"audio"} }, true},
		{"empty prefer", func(c *Config) { c.Normalize.Prefer = nil }, true},
		{"empty listen", func(c *Config) { c.Listen = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromTOML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)
	t.Setenv("OFFGRID_ENGINE_URL", "")
	t.Setenv("OFFGRID_ENGINE_TOKEN", "")
	t.Setenv("OFFGRID_LISTEN", "")

	content := `
listen = "0.0.0.0:9000"

[engine]
url = "https://engine.example/api/extract"
method = "GET"
token = "secret"
timeout = "5s"

[validator]
allowed_hosts = []

[proxy]
referer = "origin"
header_timeout = "3s"

[normalize]
prefer = ["image", "video"]
`
	dir := filepath.Join(tmpDir, "offgrid")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.Engine.URL != "https://engine.example/api/extract" {
		t.Errorf("engine url = %q", cfg.Engine.URL)
	}
	if cfg.Engine.Method != "GET" {
		t.Errorf("method = %q, want GET", cfg.Engine.Method)
	}
	if cfg.Engine.QueryParam != "url" {
		t.Errorf("query param should keep default, got %q", cfg.Engine.QueryParam)
	}
	if cfg.Engine.Timeout.Duration != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", cfg.Engine.Timeout)
	}
	if len(cfg.Validator.AllowedHosts) != 0 {
		t.Errorf("allowed hosts = %v, want empty", cfg.Validator.AllowedHosts)
	}
	if cfg.Proxy.Referer != "origin" {
		t.Errorf("referer = %q", cfg.Proxy.Referer)
	}
	if cfg.Normalize.Prefer[0] != "image" {
		t.Errorf("prefer = %v", cfg.Normalize.Prefer)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OFFGRID_ENGINE_URL", "http://engine.internal:9999/extract")
	t.Setenv("OFFGRID_ENGINE_TOKEN", "tok")
	t.Setenv("OFFGRID_LISTEN", ":7000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.URL != "http://engine.internal:9999/extract" {
		t.Errorf("engine url = %q", cfg.Engine.URL)
	}
	if cfg.Engine.Token != "tok" {
		t.Errorf("token = %q", cfg.Engine.Token)
	}
	if cfg.Listen != ":7000" {
		t.Errorf("listen = %q", cfg.Listen)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("OFFGRID_ENGINE_URL", "")
	t.Setenv("OFFGRID_LISTEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() should not error on missing file: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("missing file should return defaults, got listen = %q", cfg.Listen)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load() with an explicit missing path should error")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[engine]\nmethod = \"DELETE\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OFFGRID_ENGINE_URL", "")

	if _, err := Load(path); err == nil {
		t.Error("Load() should reject an unsupported engine method")
	}
}

func TestExpandDownloadDir(t *testing.T) {
	cfg := Default()
	cfg.DownloadDir = "/tmp/test-downloads"

	dir, err := cfg.ExpandDownloadDir()
	if err != nil {
		t.Fatalf("ExpandDownloadDir() error: %v", err)
	}
	if dir != "/tmp/test-downloads" {
		t.Errorf("got %q, want /tmp/test-downloads", dir)
	}
}
