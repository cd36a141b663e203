package server

import (
	"net/http"

	"github.com/zdiemer/simplescraper/internal/server/handlers"
)

func (s *Server) registerRoutes() {
	s.router.Get("/health", s.health.HealthHandler)
	s.router.Get("/health/live", s.health.LivenessHandler)
	s.router.Get("/health/ready", s.health.ReadinessHandler)

	s.router.Get("/version", handlers.VersionHandler)

	if s.registry != nil {
		s.router.Get("/metrics", MetricsHandler(s.registry))
	}

	if s.fetcher != nil {
		s.router.Method(http.MethodPost, "/v1/fetch", &handlers.FetchHandler{Fetcher: s.fetcher})
	}

	if s.store != nil {
		admin := &handlers.StoreHandler{Admin: s.store}
		s.router.Get("/v1/store", admin.Stats)
		s.router.Delete("/v1/cache", admin.ClearCache)
		s.router.Get("/v1/rate-limits", admin.ListRateLimits)
		s.router.Delete("/v1/rate-limits", admin.ResetRateLimits)
	}
}
