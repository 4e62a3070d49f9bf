// Package config loads the navigator and dev backend settings from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level viewnav configuration.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	Start       string        `yaml:"start"`
	CacheSize   int           `yaml:"cache_size"`
	LogEndpoint string        `yaml:"log_endpoint"`
	StaticHome  string        `yaml:"static_home"`
	FallbackDir string        `yaml:"fallback_dir"`
	Fetch       FetchConfig   `yaml:"fetch"`
	Prewarm     PrewarmConfig `yaml:"prewarm"`
	Browser     BrowserConfig `yaml:"browser"`
	Server      ServerConfig  `yaml:"server"`
}

// FetchConfig controls the resource transport.
type FetchConfig struct {
	Timeout          time.Duration `yaml:"timeout"`
	Retries          int           `yaml:"retries"`
	Backoff          time.Duration `yaml:"backoff"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerReset     time.Duration `yaml:"breaker_reset"`
}

// PrewarmConfig controls image prewarming.
type PrewarmConfig struct {
	Workers int           `yaml:"workers"`
	Timeout time.Duration `yaml:"timeout"`
}

// BrowserConfig controls the headless Chrome engine.
type BrowserConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Remote   string `yaml:"remote"`
	Stealth  string `yaml:"stealth"` // headless | headful | none
	ShellURL string `yaml:"shell_url"`
}

// ServerConfig controls the dev backend.
type ServerConfig struct {
	Addr   string `yaml:"addr"`
	WebDir string `yaml:"web_dir"`
	DBPath string `yaml:"db_path"`

	// Retention prunes stored actions older than this. Zero keeps all.
	Retention time.Duration `yaml:"retention"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		BaseURL:     "http://127.0.0.1:5050",
		Start:       "/view/home",
		CacheSize:   8,
		LogEndpoint: "/log",
		StaticHome:  "/ui/pages/home.json",
		Fetch: FetchConfig{
			Timeout:          10 * time.Second,
			Retries:          1,
			Backoff:          200 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Prewarm: PrewarmConfig{Workers: 4, Timeout: 5 * time.Second},
		Browser: BrowserConfig{Stealth: "headless"},
		Server: ServerConfig{
			Addr:   "127.0.0.1:5050",
			WebDir: "apps/web",
			DBPath: "data/viewnav.db",
		},
	}
}

// LoadFile reads a YAML configuration file. Keys absent from the file keep
// their Default value.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load returns Default when path is empty and LoadFile otherwise.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return &cfg, nil
	}
	return LoadFile(path)
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.Start == "" {
		c.Start = d.Start
	}
	if c.CacheSize <= 0 {
		c.CacheSize = d.CacheSize
	}
	if c.StaticHome == "" {
		c.StaticHome = d.StaticHome
	}
	if c.Fetch.Retries < 0 {
		c.Fetch.Retries = 0
	}
	if c.Prewarm.Workers <= 0 {
		c.Prewarm.Workers = d.Prewarm.Workers
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = d.Browser.Stealth
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

// Validate checks the fields that cannot be defaulted.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base_url %q must be an absolute http(s) URL", c.BaseURL)
	}
	switch c.Browser.Stealth {
	case "headless", "headful", "none":
	default:
		return fmt.Errorf("config: browser.stealth %q must be headless, headful or none", c.Browser.Stealth)
	}
	return nil
}

// LogURL is where actions are posted. An empty log_endpoint disables
// action logging.
func (c *Config) LogURL() string {
	if c.LogEndpoint == "" || strings.Contains(c.LogEndpoint, "://") {
		return c.LogEndpoint
	}
	return c.BaseURL + "/" + strings.TrimLeft(c.LogEndpoint, "/")
}

// ShellURL is the SPA page the browser engine loads.
func (c *Config) ShellURL() string {
	if c.Browser.ShellURL != "" {
		return c.Browser.ShellURL
	}
	return c.BaseURL + c.Start
}
