// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Site       SiteConfig       `mapstructure:"site"`
	Identity   IdentityConfig   `mapstructure:"identity"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	DB         DBConfig         `mapstructure:"db"`
	Ops        OpsConfig        `mapstructure:"ops"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SiteConfig identifies the listing index to crawl.
type SiteConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	PageParam string `mapstructure:"page_param"`
}

// IdentityConfig governs the Tor circuit lifecycle.
type IdentityConfig struct {
	SocksPorts        []int  `mapstructure:"socks_ports"`
	LaunchTimeoutSec  int    `mapstructure:"launch_timeout_seconds"`
	PollIntervalSec   int    `mapstructure:"poll_interval_seconds"`
	VerifyTimeoutSec  int    `mapstructure:"verify_timeout_seconds"`
	EchoURL           string `mapstructure:"echo_url"`
	TorBinary         string `mapstructure:"tor_binary"`
	FallbackDataDir   string `mapstructure:"fallback_data_dir"`
	FallbackSocksPort int    `mapstructure:"fallback_socks_port"`
}

// BrowserConfig configures the headless browser session.
type BrowserConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	NavTimeoutSec  int    `mapstructure:"nav_timeout_seconds"`
	Headless       bool   `mapstructure:"headless"`
	DisableWebGL   bool   `mapstructure:"disable_webgl"`
	PrivateBrowser bool   `mapstructure:"private_browsing"`
}

// CrawlConfig governs orchestrator pacing and budgets.
type CrawlConfig struct {
	PageBudget      int     `mapstructure:"page_budget"`
	LinkDelayMinSec int     `mapstructure:"link_delay_min_seconds"`
	LinkDelayMaxSec int     `mapstructure:"link_delay_max_seconds"`
	PageDelayMinSec int     `mapstructure:"page_delay_min_seconds"`
	PageDelayMaxSec int     `mapstructure:"page_delay_max_seconds"`
	BaseRPS         float64 `mapstructure:"base_rps"`
	ExpiryDays      int     `mapstructure:"default_expiry_days"`
}

// CheckpointConfig locates the resume checkpoint file.
type CheckpointConfig struct {
	Path string `mapstructure:"path"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	EnsureSchema bool   `mapstructure:"ensure_schema"`
	MaxConns     int    `mapstructure:"max_conns"`
}

// OpsConfig configures the optional metrics/health endpoint.
type OpsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ADSCRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	v.SetDefault("site.base_url", "https://www.njuskalo.hr/auti")
	v.SetDefault("site.page_param", "page")

	// 9150 is the Tor Browser bundle port, 9050 the standalone daemon.
	v.SetDefault("identity.socks_ports", []int{9150, 9050})
	v.SetDefault("identity.launch_timeout_seconds", 60)
	v.SetDefault("identity.poll_interval_seconds", 3)
	v.SetDefault("identity.verify_timeout_seconds", 10)
	v.SetDefault("identity.echo_url", "https://check.torproject.org/api/ip")
	v.SetDefault("identity.tor_binary", "tor")
	v.SetDefault("identity.fallback_data_dir", "/tmp/adscrawler_tor")
	v.SetDefault("identity.fallback_socks_port", 9050)

	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (X11; Linux x86_64; rv:135.0) Gecko/20100101 Firefox/135.0")
	v.SetDefault("browser.nav_timeout_seconds", 30)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_webgl", true)
	v.SetDefault("browser.private_browsing", true)

	v.SetDefault("crawl.page_budget", 20)
	v.SetDefault("crawl.link_delay_min_seconds", 1)
	v.SetDefault("crawl.link_delay_max_seconds", 10)
	v.SetDefault("crawl.page_delay_min_seconds", 2)
	v.SetDefault("crawl.page_delay_max_seconds", 5)
	v.SetDefault("crawl.base_rps", 0.5)
	v.SetDefault("crawl.default_expiry_days", 180)

	v.SetDefault("checkpoint.path", "checkpoint.txt")

	v.SetDefault("db.ensure_schema", false)
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("ops.enabled", false)
	v.SetDefault("ops.port", 9091)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.Crawl.PageBudget <= 0 {
		return fmt.Errorf("crawl.page_budget must be > 0")
	}
	if c.Crawl.LinkDelayMinSec > c.Crawl.LinkDelayMaxSec {
		return fmt.Errorf("crawl.link_delay_min_seconds must be <= crawl.link_delay_max_seconds")
	}
	if c.Crawl.PageDelayMinSec > c.Crawl.PageDelayMaxSec {
		return fmt.Errorf("crawl.page_delay_min_seconds must be <= crawl.page_delay_max_seconds")
	}
	if len(c.Identity.SocksPorts) == 0 {
		return fmt.Errorf("identity.socks_ports must not be empty")
	}
	if c.Browser.NavTimeoutSec <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.Checkpoint.Path == "" {
		return fmt.Errorf("checkpoint.path must be set")
	}
	if c.Ops.Enabled && c.Ops.Port <= 0 {
		return fmt.Errorf("ops.port must be > 0 when ops is enabled")
	}
	return nil
}

// NavTimeout converts the browser timeout into a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// LaunchTimeout converts the identity launch budget into a duration.
func (c IdentityConfig) LaunchTimeout() time.Duration {
	return time.Duration(c.LaunchTimeoutSec) * time.Second
}

// PollInterval converts the identity poll cadence into a duration.
func (c IdentityConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// VerifyTimeout converts the liveness probe budget into a duration.
func (c IdentityConfig) VerifyTimeout() time.Duration {
	return time.Duration(c.VerifyTimeoutSec) * time.Second
}
