// internal/config/config.go
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFromFile loads configuration from a YAML file. A missing file is not
// an error: the companion runs fine on defaults.
func LoadFromFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, fmt.Errorf("configuration filename cannot be empty")
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file: %v", err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	// Substitute environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML configuration: %v", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from an io.Reader.
func LoadFromReader(reader io.Reader) (*Config, error) {
	if reader == nil {
		return nil, fmt.Errorf("reader cannot be nil")
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read from reader: %v", err)
	}

	return LoadFromBytes(data)
}

// SaveToFile saves configuration to a YAML file.
func SaveToFile(cfg *Config, filename string) error {
	if cfg == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration to YAML: %v", err)
	}

	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write configuration file: %v", err)
	}

	return nil
}

// applyDefaults applies default values to the configuration.
func applyDefaults(cfg *Config) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://ro.gnjoy.com/itemDeal"
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.ListenAPI == "" {
		cfg.ListenAPI = "127.0.0.1:8199"
	}

	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	if cfg.Fetch.Timeout == 0 {
		cfg.Fetch.Timeout = 30 * time.Second
	}

	if cfg.Fetch.DialTimeout == 0 {
		cfg.Fetch.DialTimeout = 15 * time.Second
	}

	if cfg.Fetch.RetryAttempts == 0 {
		cfg.Fetch.RetryAttempts = 4
	}

	if cfg.Fetch.RetryDelay == 0 {
		cfg.Fetch.RetryDelay = 1 * time.Second
	}

	if cfg.Fetch.MaxConnsPerHost == 0 {
		cfg.Fetch.MaxConnsPerHost = 10
	}

	if cfg.Fetch.IdleConnTimeout == 0 {
		cfg.Fetch.IdleConnTimeout = 90 * time.Second
	}

	if cfg.Fetch.ConnRotation == 0 {
		cfg.Fetch.ConnRotation = 2 * time.Minute
	}

	if cfg.Fetch.LockoutDuration == 0 {
		cfg.Fetch.LockoutDuration = 10 * time.Minute
	}

	if cfg.Fetch.RateLimit == 0 {
		cfg.Fetch.RateLimit = 1.0
	}

	if cfg.Fetch.RateBurst == 0 {
		cfg.Fetch.RateBurst = 3
	}

	if cfg.Fetch.MaxPages == 0 {
		cfg.Fetch.MaxPages = 3
	}

	if cfg.Monitor.Interval == 0 {
		cfg.Monitor.Interval = 5 * time.Minute
	}

	if cfg.Monitor.Tick == 0 {
		cfg.Monitor.Tick = 2 * time.Second
	}

	if cfg.Monitor.Concurrency == 0 {
		cfg.Monitor.Concurrency = 3
	}

	if cfg.Monitor.Capacity == 0 {
		cfg.Monitor.Capacity = 10
	}

	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 5 * time.Minute
	}

	if cfg.Browser.WaitDelay == 0 {
		cfg.Browser.WaitDelay = 500 * time.Millisecond
	}

	if cfg.Browser.Timeout == 0 {
		cfg.Browser.Timeout = 45 * time.Second
	}

	if cfg.Browser.Headless == nil {
		headless := true
		cfg.Browser.Headless = &headless
	}

	if cfg.Archive.Driver == "" {
		cfg.Archive.Driver = "sqlite3"
	}

	if cfg.Export.Format == "" {
		cfg.Export.Format = "xlsx"
	}
}
