package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/config"
	errwrap "github.com/zdiemer/simplescraper/internal/errors"
	"github.com/zdiemer/simplescraper/internal/observability"
	"github.com/zdiemer/simplescraper/internal/server"
	"github.com/zdiemer/simplescraper/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API with graceful shutdown support.

Endpoints:
  POST   /v1/fetch        fetch a URL through the scraper
  GET    /v1/store        rate limit key and cache entry counts
  GET    /v1/rate-limits  per-key limiter state (?key= or ?prefix=)
  DELETE /v1/rate-limits  forget limiter state (?key=, ?prefix= or ?all=true)
  DELETE /v1/cache        drop cached responses
  GET    /health, /health/live, /health/ready, /version, /metrics

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-read the config file (restart to apply scraper changes)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")

	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	if err := observability.InitServerLogger(binaryName, cfg.Logging.Level, cfg.Scraper.Transport); err != nil {
		return err
	}
	logger := observability.ServerLogger

	var (
		registry *prometheus.Registry
		observer *observability.ScraperMetrics
	)
	if cfg.Metrics.Enabled {
		registry = observability.NewRegistry()
		observer = observability.NewScraperMetrics(registry)
	}

	bundle, err := buildScraper(cmd.Context(), cfg.Scraper, logger, observer)
	if err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "scraper initialization failed")
	}

	logger.Info("Initializing server",
		zap.String("service", binaryName),
		zap.String("version", versionInfo.Version),
		zap.String("transport", bundle.Scraper.TransportName()),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics", cfg.Metrics.Enabled))

	health := handlers.NewHealthManager(versionInfo.Version, bundle.Scraper.TransportName())
	if bundle.Proxies != nil {
		health.RegisterChecker("proxy_pool", handlers.HealthCheckFunc(func(ctx context.Context) error {
			if bundle.Proxies.Len() == 0 {
				return errors.New("proxy pool is empty")
			}
			return nil
		}))
	}

	srv := server.New(server.Options{
		Config:   cfg.Server,
		Fetcher:  bundle.Scraper,
		Health:   health,
		Store:    bundle.Store,
		Registry: registry,
	})

	registerShutdownHandlers(srv, cfg.Server.ShutdownTimeout)

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 2)
	go func() {
		errChan <- srv.Start()
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}

// registerShutdownHandlers runs LIFO: the server stops first, then logs flush.
func registerShutdownHandlers(srv *server.Server, timeout time.Duration) {
	logger := observability.ServerLogger
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Flushing logger...")
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: re-reading config file")
		if err := viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				logger.Info("No config file found - using defaults and environment variables")
				return nil
			}
			logger.Error("Failed to reload config file",
				zap.String("file", viper.ConfigFileUsed()),
				zap.Error(err))
			return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
		}
		if _, err := config.Load(viper.GetViper()); err != nil {
			logger.Error("Reloaded config is invalid", zap.Error(err))
			return errwrap.WrapInvalidInput(ctx, err, "config reload failed")
		}
		logger.Info("Configuration reloaded; restart to apply scraper settings",
			zap.String("file", viper.ConfigFileUsed()))
		return nil
	})
}
