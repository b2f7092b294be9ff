// internal/config/validation.go
package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validArchiveDrivers = map[string]bool{
	"sqlite3":  true,
	"mysql":    true,
	"postgres": true,
}

var validExportFormats = map[string]bool{
	"xlsx": true,
	"json": true,
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url is not a valid URL: %s", c.BaseURL)
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}

	if _, _, err := net.SplitHostPort(c.ListenAPI); err != nil {
		return fmt.Errorf("listen_api is not a valid host:port: %s", c.ListenAPI)
	}

	if c.Fetch.Timeout < 0 || c.Fetch.DialTimeout < 0 || c.Fetch.RetryDelay < 0 {
		return fmt.Errorf("fetch timeouts cannot be negative")
	}

	if c.Fetch.RetryAttempts < 0 {
		return fmt.Errorf("retry_attempts cannot be negative")
	}

	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	if c.Monitor.Concurrency < 1 {
		return fmt.Errorf("monitor concurrency must be at least 1")
	}

	if c.Monitor.Capacity < 1 {
		return fmt.Errorf("monitor capacity must be at least 1")
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor interval must be positive")
	}

	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}

	if c.Archive.Enabled {
		if !validArchiveDrivers[c.Archive.Driver] {
			return fmt.Errorf("invalid archive driver: %s", c.Archive.Driver)
		}
		if c.Archive.Driver != "sqlite3" && c.Archive.DSN == "" {
			return fmt.Errorf("archive dsn is required for driver %s", c.Archive.Driver)
		}
	}

	if !validExportFormats[c.Export.Format] {
		return fmt.Errorf("invalid export format: %s", c.Export.Format)
	}

	return nil
}
