package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zdiemer/simplescraper/internal/core"
)

func newTestViper() *viper.Viper {
	v := viper.New()
	Bind(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(newTestViper())
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 1, cfg.Scraper.RateLimit.MaxRequests)
		assert.Equal(t, "second", cfg.Scraper.RateLimit.Per)
		assert.Equal(t, 1, cfg.Scraper.RateLimit.BurstMultiplier)
		assert.Equal(t, 2*time.Second, cfg.Scraper.Backoff.Initial)
		assert.Equal(t, 2.0, cfg.Scraper.Backoff.Exponent)
		assert.Equal(t, 3, cfg.Scraper.Backoff.MaxAttempts)
		assert.Equal(t, 60*time.Minute, cfg.Scraper.IdentityTTL)
		assert.Equal(t, 30*time.Second, cfg.Scraper.Timeout)
		assert.Equal(t, "http", cfg.Scraper.Transport)
		assert.Equal(t, "proxies_list.txt", cfg.Scraper.Proxy.ListFile)
		assert.False(t, cfg.Scraper.Proxy.Enabled)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.True(t, cfg.Metrics.Enabled)

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvironmentOverrides", func(t *testing.T) {
		t.Setenv("SIMPLESCRAPER_SCRAPER_RATE_LIMIT_MAX_REQUESTS", "30")
		t.Setenv("SIMPLESCRAPER_SCRAPER_RATE_LIMIT_PER", "minutes")
		t.Setenv("SIMPLESCRAPER_SCRAPER_IMMEDIATELY_STOP_STATUSES", "403,451")
		t.Setenv("SIMPLESCRAPER_SCRAPER_BACKOFF_INITIAL", "500ms")
		t.Setenv("SIMPLESCRAPER_SCRAPER_SPOOF_HEADERS", "true")
		t.Setenv("SIMPLESCRAPER_SERVER_PORT", "9999")

		cfg, err := Load(newTestViper())
		require.NoError(t, err)

		assert.Equal(t, 30, cfg.Scraper.RateLimit.MaxRequests)
		assert.Equal(t, []int{403, 451}, cfg.Scraper.ImmediatelyStopStatuses)
		assert.Equal(t, 500*time.Millisecond, cfg.Scraper.Backoff.Initial)
		assert.True(t, cfg.Scraper.SpoofHeaders)
		assert.Equal(t, 9999, cfg.Server.Port)

		limit, err := cfg.Scraper.RateLimit.Build()
		require.NoError(t, err)
		assert.Equal(t, core.DatePartMinute, limit.Per)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
scraper:
  transport: browser
  rate_limit:
    per_route: true
    route_key: first_segment
    range_low: 2
    range_high: 5
  proxy:
    enabled: true
    feed_url: https://proxies.example.com/feed
`), 0o600))

		v := newTestViper()
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, "browser", cfg.Scraper.Transport)
		assert.True(t, cfg.Scraper.Proxy.Enabled)

		limit, err := cfg.Scraper.RateLimit.Build()
		require.NoError(t, err)
		require.NotNil(t, limit.RouteKey)
		require.NotNil(t, limit.RandomRange)
		assert.Equal(t, "example.com/api", limit.RouteKey("https://example.com/api/users"))
	})

	t.Run("InvalidValues", func(t *testing.T) {
		cases := map[string]string{
			"SIMPLESCRAPER_SCRAPER_RATE_LIMIT_MAX_REQUESTS":   "0",
			"SIMPLESCRAPER_SCRAPER_RATE_LIMIT_PER":            "fortnight",
			"SIMPLESCRAPER_SCRAPER_RATE_LIMIT_PER_ROUTE":      "true",
			"SIMPLESCRAPER_SCRAPER_TRANSPORT":                 "smoke-signals",
			"SIMPLESCRAPER_SCRAPER_BACKOFF_EXPONENT":          "0.5",
			"SIMPLESCRAPER_SCRAPER_IMMEDIATELY_STOP_STATUSES": "42",
		}
		for key, value := range cases {
			t.Run(key, func(t *testing.T) {
				t.Setenv(key, value)
				_, err := Load(newTestViper())
				require.Error(t, err)
			})
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SIMPLESCRAPER_SCRAPER_USER_AGENT=dotenv-agent\n"), 0o600))
	t.Setenv("SIMPLESCRAPER_SCRAPER_USER_AGENT", "")
	require.NoError(t, os.Unsetenv("SIMPLESCRAPER_SCRAPER_USER_AGENT"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))

	cfg, err := Load(newTestViper())
	require.NoError(t, err)
	assert.Equal(t, "dotenv-agent", cfg.Scraper.UserAgent)
}
