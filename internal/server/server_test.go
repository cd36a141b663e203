package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zdiemer/simplescraper/internal/config"
	"github.com/zdiemer/simplescraper/internal/core"
	"github.com/zdiemer/simplescraper/internal/core/engine"
	"github.com/zdiemer/simplescraper/internal/core/store"
	"github.com/zdiemer/simplescraper/internal/core/transport"
	apperrors "github.com/zdiemer/simplescraper/internal/errors"
	"github.com/zdiemer/simplescraper/internal/metrics"
	"github.com/zdiemer/simplescraper/internal/observability"
	"github.com/zdiemer/simplescraper/internal/server/handlers"
)

func newTestServer(t *testing.T, upstreamStops ...int) (*Server, *prometheus.Registry) {
	t.Helper()

	registry := prometheus.NewRegistry()
	state := store.New()
	scraper, err := engine.New(engine.Options{
		Store:                   state,
		RateLimit:               engine.RateLimit{MaxRequests: 100, Per: core.DatePartSecond},
		Backoff:                 engine.BackoffPolicy{Initial: time.Millisecond, Exponent: 1, MaxAttempts: 1},
		ImmediatelyStopStatuses: upstreamStops,
		Transport:               transport.NewHTTPTransport(5 * time.Second),
		Observer:                observability.NewScraperMetrics(registry),
		Sleep:                   func(ctx context.Context, d time.Duration) error { return ctx.Err() },
	})
	require.NoError(t, err)

	srv := New(Options{
		Config:   config.ServerConfig{Host: "127.0.0.1", Port: 0},
		Fetcher:  scraper,
		Health:   handlers.NewHealthManager("test", scraper.TransportName()),
		Store:    state,
		Registry: registry,
	})
	t.Cleanup(func() { metrics.Install(nil) })
	return srv, registry
}

func postFetch(t *testing.T, srv *Server, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/fetch", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "NOT_FOUND", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/fetch", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestFetchEndpointServesAndCaches(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"page":"` + r.URL.Query().Get("page") + `"}`))
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)
	payload := map[string]any{
		"url":    upstream.URL + "/items",
		"params": map[string][]string{"page": {"3"}},
	}

	first := postFetch(t, srv, payload)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	var firstBody handlers.FetchResponse
	require.NoError(t, json.NewDecoder(first.Body).Decode(&firstBody))
	assert.Equal(t, map[string]any{"page": "3"}, firstBody.JSON)
	assert.False(t, firstBody.FromCache)
	assert.Equal(t, "http", firstBody.Transport)

	second := postFetch(t, srv, payload)
	require.Equal(t, http.StatusOK, second.Code)
	var secondBody handlers.FetchResponse
	require.NoError(t, json.NewDecoder(second.Body).Decode(&secondBody))
	assert.True(t, secondBody.FromCache)
	assert.Equal(t, int32(1), hits.Load())
}

func TestStoreRoutesReflectScraperState(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, postFetch(t, srv, map[string]any{"url": upstream.URL}).Code)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/store", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, store.Stats{RateLimitKeys: 1, CachedResponses: 1}, stats)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/rate-limits", nil))
	var limits []handlers.RateLimitEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&limits))
	require.Len(t, limits, 1)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/cache", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/rate-limits", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchEndpointReportsImmediateStop(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t, http.StatusForbidden)
	rec := postFetch(t, srv, map[string]any{"url": upstream.URL})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body apperrors.HTTPErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, apperrors.CodeUpstreamBlocked, body.Error.Code)
}

func TestFetchEndpointRejectsRelativeURLWithoutBase(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := postFetch(t, srv, map[string]any{"url": "/relative"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpointExposesScraperMetrics(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer upstream.Close()

	srv, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, postFetch(t, srv, map[string]any{"url": upstream.URL}).Code)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "simplescraper_requests_total"))
	assert.True(t, strings.Contains(body, "simplescraper_http_requests_total"))
}

func TestHealthAndVersionRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/version"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestShutdownBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t)
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, "127.0.0.1:0", srv.Addr())
}
