// Package config handles TOML-based configuration loading and validation.
// Values resolve as defaults < config file < environment; the CLI applies
// flag overrides on top and re-validates.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultUserAgent is sent upstream by the media proxy.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Duration wraps time.Duration so it can be written as "15s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config holds all application configuration.
type Config struct {
	Listen      string `toml:"listen"`
	Debug       bool   `toml:"debug"`
	DownloadDir string `toml:"download_dir"`

	Engine    Engine    `toml:"engine"`
	Validator Validator `toml:"validator"`
	Proxy     Proxy     `toml:"proxy"`
	Normalize Normalize `toml:"normalize"`
}

// Engine configures the extraction backend client.
type Engine struct {
	URL           string   `toml:"url"`
	Method        string   `toml:"method"`
	QueryParam    string   `toml:"query_param"`
	AuthHeader    string   `toml:"auth_header"`
	Token         string   `toml:"token"`
	Timeout       Duration `toml:"timeout"`
	QuotaStatuses []int    `toml:"quota_statuses"`
	QuotaCodes    []string `toml:"quota_codes"`
}

// Validator configures the advisory source-URL check.
type Validator struct {
	AllowedHosts []string `toml:"allowed_hosts"`
}

// Proxy configures the media relay.
type Proxy struct {
	Referer       string   `toml:"referer"`
	UserAgent     string   `toml:"user_agent"`
	HeaderTimeout Duration `toml:"header_timeout"`
	// IdleTimeout bounds the wait for each chunk of the body; zero uses HeaderTimeout.
	IdleTimeout   Duration `toml:"idle_timeout"`
	AllowPrivate  bool     `toml:"allow_private"`
	BufferSize    int      `toml:"buffer_size"`
}

// Normalize configures result normalization policy.
type Normalize struct {
	Prefer []string `toml:"prefer"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Debug:       false,
		DownloadDir: "~/Downloads/offgrid",
		Engine: Engine{
			URL:           "http://127.0.0.1:8000/extract",
			Method:        "POST",
			QueryParam:    "url",
			AuthHeader:    "Authorization",
			Timeout:       Duration{30 * time.Second},
			QuotaStatuses: []int{429},
			QuotaCodes:    []string{"QUOTA_EXCEEDED", "RATE_LIMIT_EXCEEDED"},
		},
		Validator: Validator{
			AllowedHosts: []string{"instagram.com", "instagr.am"},
		},
		Proxy: Proxy{
			Referer:       "https://www.instagram.com/",
			UserAgent:     DefaultUserAgent,
			HeaderTimeout: Duration{15 * time.Second},
			BufferSize:    32 * 1024,
		},
		Normalize: Normalize{
			Prefer: []string{"video", "image"},
		},
	}
}

// configDir returns the XDG-compliant config directory.
func configDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "offgrid"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".config", "offgrid"), nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the config file at path (or the default location when path is
// empty), merges it with defaults and applies environment overrides.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("OFFGRID_ENGINE_URL")); v != "" {
		c.Engine.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFGRID_ENGINE_TOKEN")); v != "" {
		c.Engine.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("OFFGRID_LISTEN")); v != "" {
		c.Listen = v
	}
}

// Validate checks config values are within acceptable bounds.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}

	if c.Engine.URL == "" {
		return fmt.Errorf("engine url cannot be empty")
	}
	u, err := url.Parse(c.Engine.URL)
	if err != nil {
		return fmt.Errorf("malformed engine url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("engine url must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("engine url has no host")
	}

	validMethods := map[string]bool{"GET": true, "POST": true}
	if !validMethods[strings.ToUpper(c.Engine.Method)] {
		return fmt.Errorf("unsupported engine method %q (valid: GET, POST)", c.Engine.Method)
	}
	if strings.EqualFold(c.Engine.Method, "GET") && c.Engine.QueryParam == "" {
		return fmt.Errorf("engine query_param is required for GET")
	}
	if c.Engine.Timeout.Duration <= 0 {
		return fmt.Errorf("engine timeout must be positive")
	}
	for _, s := range c.Engine.QuotaStatuses {
		if s < 400 || s > 599 {
			return fmt.Errorf("quota status %d is not an HTTP error status", s)
		}
	}

	if c.Proxy.HeaderTimeout.Duration <= 0 {
		return fmt.Errorf("proxy header_timeout must be positive")
	}
	if c.Proxy.IdleTimeout.Duration < 0 {
		return fmt.Errorf("proxy idle_timeout cannot be negative")
	}
	if c.Proxy.BufferSize < 512 || c.Proxy.BufferSize > 4*1024*1024 {
		return fmt.Errorf("proxy buffer_size %d out of range (512 to 4MiB)", c.Proxy.BufferSize)
	}
	if r := c.Proxy.Referer; r != "" && r != "origin" {
		ru, err := url.Parse(r)
		if err != nil || ru.Scheme == "" || ru.Host == "" {
			return fmt.Errorf("proxy referer must be empty, \"origin\" or an absolute URL, got %q", r)
		}
	}

	validKinds := map[string]bool{"video": true, "image": true}
	if len(c.Normalize.Prefer) == 0 {
		return fmt.Errorf("normalize prefer cannot be empty")
	}
	for _, k := range c.Normalize.Prefer {
		if !validKinds[strings.ToLower(k)] {
			return fmt.Errorf("unsupported media kind %q in normalize prefer (valid: video, image)", k)
		}
	}

	return nil
}

// ExpandDownloadDir resolves ~ in the download directory path.
func (c *Config) ExpandDownloadDir() (string, error) {
	dir := c.DownloadDir
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expanding home dir: %w", err)
		}
		dir = filepath.Join(home, dir[2:])
	}
	return filepath.Abs(dir)
}
