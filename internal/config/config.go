// Package config handles seam configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config is the root configuration structure.
type Config struct {
	// API settings for the message REST backend.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Push settings for the realtime event transport.
	Push PushConfig `yaml:"push" mapstructure:"push"`

	// Timeline settings.
	Timeline TimelineConfig `yaml:"timeline" mapstructure:"timeline"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// APIConfig contains message API settings.
type APIConfig struct {
	// BaseURL is the root of the message API, e.g. https://api.example.com.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds each HTTP request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PushConfig contains realtime transport settings.
type PushConfig struct {
	// URL is the websocket endpoint, e.g. wss://push.example.com/events.
	URL string `yaml:"url" mapstructure:"url"`

	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" mapstructure:"handshake_timeout"`
}

// TimelineConfig contains timeline behavior settings.
type TimelineConfig struct {
	// PageSize is how many messages each history fetch requests.
	PageSize int `yaml:"page_size" mapstructure:"page_size"`

	// Timezone names the location used for day grouping. Empty means the
	// system's local zone.
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 15 * time.Second,
		},
		Push: PushConfig{
			URL:              "ws://localhost:8080/events",
			HandshakeTimeout: 10 * time.Second,
		},
		Timeline: TimelineConfig{
			PageSize: 50,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url must be an absolute URL, got %q", c.API.BaseURL)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return fmt.Errorf("api.base_url scheme must be http or https, got %q", u.Scheme)
	}

	p, err := url.Parse(c.Push.URL)
	if err != nil || p.Scheme == "" || p.Host == "" {
		return fmt.Errorf("push.url must be an absolute URL, got %q", c.Push.URL)
	}
	switch p.Scheme {
	case "ws", "wss":
	default:
		return fmt.Errorf("push.url scheme must be ws or wss, got %q", p.Scheme)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.Push.HandshakeTimeout <= 0 {
		return fmt.Errorf("push.handshake_timeout must be positive")
	}
	if c.Timeline.PageSize < 1 {
		return fmt.Errorf("timeline.page_size must be at least 1")
	}
	if c.Timeline.Timezone != "" {
		if _, err := time.LoadLocation(c.Timeline.Timezone); err != nil {
			return fmt.Errorf("timeline.timezone: %w", err)
		}
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// Location resolves the configured day-grouping timezone. Validate has
// already checked the name, so failures here fall back to local time.
func (c *Config) Location() *time.Location {
	if c.Timeline.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timeline.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
