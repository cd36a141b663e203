// Package config provides centralized configuration management for simplescraper.
// Configuration is layered with viper: built-in defaults, an optional YAML
// file, .env files and SIMPLESCRAPER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SIMPLESCRAPER_SCRAPER_TRANSPORT.
const EnvPrefix = "SIMPLESCRAPER"

var (
	// appConfig holds the current application configuration
	appConfig *Config
	configMu  sync.RWMutex
)

// Bind wires environment lookups and defaults into v.
func Bind(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// LoadDotEnv loads .env style files into the process environment. Missing
// files are ignored; existing variables are never overwritten.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// SetDefaults registers default configuration values on v.
func SetDefaults(v *viper.Viper) {
	// Rate limiting: one request per second per host
	v.SetDefault("scraper.rate_limit.max_requests", 1)
	v.SetDefault("scraper.rate_limit.per", "second")
	v.SetDefault("scraper.rate_limit.per_route", false)
	v.SetDefault("scraper.rate_limit.route_key", "")
	v.SetDefault("scraper.rate_limit.range_low", 0)
	v.SetDefault("scraper.rate_limit.range_high", 0)
	v.SetDefault("scraper.rate_limit.burst_multiplier", 1)

	// Backoff: 2s, 4s, 16s then give up
	v.SetDefault("scraper.backoff.initial", "2s")
	v.SetDefault("scraper.backoff.exponent", 2.0)
	v.SetDefault("scraper.backoff.max_attempts", 3)

	v.SetDefault("scraper.spoof_headers", false)
	v.SetDefault("scraper.identity_ttl", "60m")
	v.SetDefault("scraper.immediately_stop_statuses", []int{})
	v.SetDefault("scraper.user_agent", "")
	v.SetDefault("scraper.base_url", "")
	v.SetDefault("scraper.transport", "http")
	v.SetDefault("scraper.timeout", "30s")

	v.SetDefault("scraper.browser.xvfb_path", "Xvfb")
	v.SetDefault("scraper.browser.display", "")
	v.SetDefault("scraper.browser.screen", "1920x1080x24")
	v.SetDefault("scraper.browser.exec_path", "")

	v.SetDefault("scraper.proxy.enabled", false)
	v.SetDefault("scraper.proxy.list_file", "proxies_list.txt")
	v.SetDefault("scraper.proxy.feed_url", "")

	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "5m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	v.SetDefault("metrics.enabled", true)
}

// Load decodes the settings held by v into a validated Config and makes it
// the current configuration. Safe to call again on reload.
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	setConfig(cfg)
	return cfg, nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}
