package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/zdiemer/simplescraper/internal/core"
	"github.com/zdiemer/simplescraper/internal/core/engine"
	"github.com/zdiemer/simplescraper/internal/core/transport"
)

// Config represents the complete application configuration.
// Values come from defaults, an optional YAML file, .env files and
// SIMPLESCRAPER_* environment variables, in increasing precedence.
type Config struct {
	Scraper ScraperConfig `mapstructure:"scraper" yaml:"scraper"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// ScraperConfig configures the request orchestrator.
type ScraperConfig struct {
	RateLimit               RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Backoff                 BackoffConfig   `mapstructure:"backoff" yaml:"backoff"`
	SpoofHeaders            bool            `mapstructure:"spoof_headers" yaml:"spoof_headers"`
	IdentityTTL             time.Duration   `mapstructure:"identity_ttl" yaml:"identity_ttl"`
	ImmediatelyStopStatuses []int           `mapstructure:"immediately_stop_statuses" yaml:"immediately_stop_statuses"`
	UserAgent               string          `mapstructure:"user_agent" yaml:"user_agent"`
	BaseURL                 string          `mapstructure:"base_url" yaml:"base_url"`
	// Transport is "http" or "browser".
	Transport string        `mapstructure:"transport" yaml:"transport"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Browser   BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Proxy     ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
}

// RateLimitConfig mirrors engine.RateLimit in configuration form.
type RateLimitConfig struct {
	MaxRequests int    `mapstructure:"max_requests" yaml:"max_requests"`
	Per         string `mapstructure:"per" yaml:"per"`
	PerRoute    bool   `mapstructure:"per_route" yaml:"per_route"`
	// RouteKey names a built-in route key function: path or first_segment.
	RouteKey        string `mapstructure:"route_key" yaml:"route_key"`
	RangeLow        int    `mapstructure:"range_low" yaml:"range_low"`
	RangeHigh       int    `mapstructure:"range_high" yaml:"range_high"`
	BurstMultiplier int    `mapstructure:"burst_multiplier" yaml:"burst_multiplier"`
}

// BackoffConfig mirrors engine.BackoffPolicy.
type BackoffConfig struct {
	Initial     time.Duration `mapstructure:"initial" yaml:"initial"`
	Exponent    float64       `mapstructure:"exponent" yaml:"exponent"`
	MaxAttempts int           `mapstructure:"max_attempts" yaml:"max_attempts"`
}

// BrowserConfig configures the browser transport.
type BrowserConfig struct {
	XvfbPath string `mapstructure:"xvfb_path" yaml:"xvfb_path"`
	// Display reuses a running X server instead of starting Xvfb.
	Display  string `mapstructure:"display" yaml:"display"`
	Screen   string `mapstructure:"screen" yaml:"screen"`
	ExecPath string `mapstructure:"exec_path" yaml:"exec_path"`
}

// ProxyConfig configures proxy routing.
type ProxyConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	ListFile string `mapstructure:"list_file" yaml:"list_file"`
	FeedURL  string `mapstructure:"feed_url" yaml:"feed_url"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects simple console output or structured JSON.
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Build converts the configuration into a validated engine.RateLimit.
func (c RateLimitConfig) Build() (engine.RateLimit, error) {
	per, err := core.ParseDatePart(c.Per)
	if err != nil {
		return engine.RateLimit{}, fmt.Errorf("%w: %v", core.ErrInvalidRateLimit, err)
	}

	limit := engine.RateLimit{
		MaxRequests:     c.MaxRequests,
		Per:             per,
		PerRoute:        c.PerRoute,
		BurstMultiplier: c.BurstMultiplier,
	}
	if c.PerRoute && strings.TrimSpace(c.RouteKey) != "" {
		fn, err := engine.RouteKeyFunc(c.RouteKey)
		if err != nil {
			return engine.RateLimit{}, fmt.Errorf("%w: %v", core.ErrInvalidRateLimit, err)
		}
		limit.RouteKey = fn
	}
	if c.RangeLow != 0 || c.RangeHigh != 0 {
		limit.RandomRange = &engine.RequestRange{Low: c.RangeLow, High: c.RangeHigh}
	}

	if err := limit.Validate(); err != nil {
		return engine.RateLimit{}, err
	}
	return limit, nil
}

// Policy converts the configuration into an engine.BackoffPolicy.
func (c BackoffConfig) Policy() engine.BackoffPolicy {
	return engine.BackoffPolicy{Initial: c.Initial, Exponent: c.Exponent, MaxAttempts: c.MaxAttempts}
}

// Validate checks values that cannot be caught by decoding alone.
func (c *Config) Validate() error {
	if _, err := c.Scraper.RateLimit.Build(); err != nil {
		return err
	}
	if err := c.Scraper.Backoff.Policy().Validate(); err != nil {
		return err
	}
	if _, err := transport.ParseKind(c.Scraper.Transport); err != nil {
		return err
	}
	for _, status := range c.Scraper.ImmediatelyStopStatuses {
		if status < 100 || status > 599 {
			return fmt.Errorf("immediately stop status %d is not an HTTP status", status)
		}
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	return nil
}
