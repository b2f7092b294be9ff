// internal/config/types.go
package config

import "time"

// Config is the top-level application configuration.
type Config struct {
	BaseURL   string        `yaml:"base_url,omitempty"`
	UserAgent string        `yaml:"user_agent,omitempty"`
	LogLevel  string        `yaml:"log_level,omitempty"`
	ListenAPI string        `yaml:"listen_api,omitempty"`
	DataDir   string        `yaml:"data_dir,omitempty"`
	Fetch     FetchConfig   `yaml:"fetch,omitempty"`
	Monitor   MonitorConfig `yaml:"monitor,omitempty"`
	Cache     CacheConfig   `yaml:"cache,omitempty"`
	Browser   BrowserConfig `yaml:"browser,omitempty"`
	Archive   ArchiveConfig `yaml:"archive,omitempty"`
	Export    ExportConfig  `yaml:"export,omitempty"`
}

// FetchConfig tunes the upstream HTTP client.
type FetchConfig struct {
	Timeout         time.Duration `yaml:"timeout,omitempty"`
	DialTimeout     time.Duration `yaml:"dial_timeout,omitempty"`
	RetryAttempts   int           `yaml:"retry_attempts,omitempty"`
	RetryDelay      time.Duration `yaml:"retry_delay,omitempty"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host,omitempty"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout,omitempty"`
	ConnRotation    time.Duration `yaml:"conn_rotation,omitempty"`
	LockoutDuration time.Duration `yaml:"lockout_duration,omitempty"`
	RateLimit       float64       `yaml:"rate_limit,omitempty"`
	RateBurst       int           `yaml:"rate_burst,omitempty"`
	MaxPages        int           `yaml:"max_pages,omitempty"`
}

// MonitorConfig tunes the refresh scheduler.
type MonitorConfig struct {
	Interval    time.Duration `yaml:"interval,omitempty"`
	Tick        time.Duration `yaml:"tick,omitempty"`
	Concurrency int           `yaml:"concurrency,omitempty"`
	Capacity    int           `yaml:"capacity,omitempty"`
}

// CacheConfig tunes the derived-statistics cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// BrowserConfig controls the headless-browser fallback for pages that
// refuse plain HTTP clients.
type BrowserConfig struct {
	Enabled   bool          `yaml:"enabled,omitempty"`
	Headless  *bool         `yaml:"headless,omitempty"`
	WaitDelay time.Duration `yaml:"wait_delay,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// ArchiveConfig selects the optional long-term listing archive.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Driver  string `yaml:"driver,omitempty"`
	DSN     string `yaml:"dsn,omitempty"`
}

// ExportConfig controls snapshot exports.
type ExportConfig struct {
	Directory string `yaml:"directory,omitempty"`
	Format    string `yaml:"format,omitempty"`
}
