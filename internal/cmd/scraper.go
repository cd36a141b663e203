package cmd

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/config"
	"github.com/zdiemer/simplescraper/internal/core/engine"
	"github.com/zdiemer/simplescraper/internal/core/identity"
	"github.com/zdiemer/simplescraper/internal/core/store"
	"github.com/zdiemer/simplescraper/internal/core/transport"
)

// scraperBundle is a configured scraper together with the state it owns.
type scraperBundle struct {
	Scraper *engine.Scraper
	Store   *store.Store
	Proxies *transport.ProxyPool
}

// buildScraper turns configuration into a ready Scraper. The proxy pool is
// only loaded when proxy use is enabled.
func buildScraper(ctx context.Context, cfg config.ScraperConfig, logger engine.Logger, observer engine.Observer) (*scraperBundle, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	rateLimit, err := cfg.RateLimit.Build()
	if err != nil {
		return nil, err
	}

	tr, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	var proxies *transport.ProxyPool
	if cfg.Proxy.Enabled {
		proxies, err = loadProxies(ctx, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded proxy pool", zap.Int("proxies", proxies.Len()))
	}

	var provider engine.IdentityProvider
	if cfg.SpoofHeaders {
		p := identity.NewProvider(cfg.IdentityTTL)
		p.Logger = logger
		provider = p
	}

	state := store.New()
	scraper, err := engine.New(engine.Options{
		RateLimit:               rateLimit,
		Backoff:                 cfg.Backoff.Policy(),
		SpoofHeaders:            cfg.SpoofHeaders,
		Identity:                provider,
		ImmediatelyStopStatuses: cfg.ImmediatelyStopStatuses,
		BaseURL:                 cfg.BaseURL,
		UserAgent:               cfg.UserAgent,
		Transport:               tr,
		Proxies:                 proxies,
		UseProxy:                cfg.Proxy.Enabled,
		Store:                   state,
		Logger:                  logger,
		Observer:                observer,
	})
	if err != nil {
		return nil, err
	}

	return &scraperBundle{Scraper: scraper, Store: state, Proxies: proxies}, nil
}

func buildTransport(cfg config.ScraperConfig) (transport.Transport, error) {
	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return nil, err
	}

	opts := transport.Options{Kind: kind, Timeout: cfg.Timeout}
	if kind == transport.KindBrowser {
		opts.ExecPath = cfg.Browser.ExecPath
		if display := strings.TrimSpace(cfg.Browser.Display); display != "" {
			opts.Display = transport.StaticDisplay(display)
		} else {
			opts.Display = &transport.XvfbDisplay{Path: cfg.Browser.XvfbPath, Screen: cfg.Browser.Screen}
		}
	}
	return transport.New(opts)
}

// loadProxies reads the proxy list file, falling back to the feed when one is configured.
func loadProxies(ctx context.Context, cfg config.ProxyConfig) (*transport.ProxyPool, error) {
	var harvester transport.Harvester
	if feed := strings.TrimSpace(cfg.FeedURL); feed != "" {
		harvester = &transport.FeedHarvester{URL: feed}
	}

	pool, err := transport.LoadProxyPool(ctx, cfg.ListFile, harvester)
	if err != nil {
		return nil, err
	}
	if pool.Len() == 0 {
		return nil, fmt.Errorf("proxy use is enabled but no proxies were loaded")
	}
	return pool, nil
}
