package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zdiemer/simplescraper/internal/core/store"
	apperrors "github.com/zdiemer/simplescraper/internal/errors"
)

// StoreAdmin inspects and clears the scraper's in-memory state.
type StoreAdmin interface {
	ListRateLimits(q store.RateLimitQuery) ([]store.RateLimitEntry, error)
	ResetRateLimits(q store.RateLimitQuery) (int, error)
	Stats() store.Stats
	ClearResponses()
}

// RateLimitEntry is one key in the rate limit listing.
type RateLimitEntry struct {
	Key          string    `json:"key"`
	LastCallAt   time.Time `json:"last_call_at"`
	RequestCount int       `json:"request_count"`
}

// RateLimitResetResponse reports how many keys a reset removed.
type RateLimitResetResponse struct {
	Removed int `json:"removed"`
}

// StoreHandler exposes the limiter and cache state of the running scraper.
type StoreHandler struct {
	Admin StoreAdmin
}

// Stats serves GET /v1/store.
func (h *StoreHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Admin.Stats())
}

// ClearCache serves DELETE /v1/cache.
func (h *StoreHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	h.Admin.ClearResponses()
	w.WriteHeader(http.StatusNoContent)
}

// ListRateLimits serves GET /v1/rate-limits. Without key or prefix every key is listed.
func (h *StoreHandler) ListRateLimits(w http.ResponseWriter, r *http.Request) {
	query := rateLimitQuery(r)
	if !query.All && query.Key == "" && query.Prefix == "" {
		query.All = true
	}

	entries, err := h.Admin.ListRateLimits(query)
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid rate limit query"))
		return
	}

	response := make([]RateLimitEntry, 0, len(entries))
	for _, entry := range entries {
		response = append(response, RateLimitEntry{
			Key:          entry.Key,
			LastCallAt:   entry.State.LastCallAt,
			RequestCount: entry.State.RequestCount,
		})
	}
	writeJSON(w, http.StatusOK, response)
}

// ResetRateLimits serves DELETE /v1/rate-limits. One of key, prefix or all=true is required.
func (h *StoreHandler) ResetRateLimits(w http.ResponseWriter, r *http.Request) {
	removed, err := h.Admin.ResetRateLimits(rateLimitQuery(r))
	if err != nil {
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "invalid rate limit query"))
		return
	}
	writeJSON(w, http.StatusOK, RateLimitResetResponse{Removed: removed})
}

func rateLimitQuery(r *http.Request) store.RateLimitQuery {
	values := r.URL.Query()
	all, _ := strconv.ParseBool(values.Get("all"))
	return store.RateLimitQuery{
		All:    all,
		Key:    strings.TrimSpace(values.Get("key")),
		Prefix: strings.TrimSpace(values.Get("prefix")),
	}
}
