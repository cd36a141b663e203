// Package store holds the mutable state owned by one Scraper instance: the
// per-key last-call timestamps and the response cache. Each Scraper gets its
// own Store, so independent scrapers never share rate limits or cached bodies.
package store

import (
	"sync"

	"github.com/zdiemer/simplescraper/internal/core"
)

// Store is an in-memory arena keyed by rate limit key and request fingerprint.
// It is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	rateLimits map[string]core.RateLimitState
	responses  map[string]*core.Result
}

// New returns an empty store.
func New() *Store {
	return &Store{
		rateLimits: make(map[string]core.RateLimitState),
		responses:  make(map[string]*core.Result),
	}
}

// Stats summarizes the store contents.
type Stats struct {
	RateLimitKeys   int `json:"rate_limit_keys"`
	CachedResponses int `json:"cached_responses"`
}

// Stats returns the current entry counts.
func (s *Store) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		RateLimitKeys:   len(s.rateLimits),
		CachedResponses: len(s.responses),
	}
}

func (s *Store) init() {
	if s.rateLimits == nil {
		s.rateLimits = make(map[string]core.RateLimitState)
	}
	if s.responses == nil {
		s.responses = make(map[string]*core.Result)
	}
}
