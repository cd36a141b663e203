package store

import (
	"context"
	"errors"
	"strings"

	"github.com/zdiemer/simplescraper/internal/core"
)

// GetCachedResponse returns a copy of the cached result for a fingerprint, or nil on a miss.
// Entries never expire; the cache grows with every distinct fingerprint stored.
func (s *Store) GetCachedResponse(ctx context.Context, fingerprint string) (*core.Result, error) {
	if s == nil {
		return nil, errors.New("store is not initialized")
	}

	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return nil, errors.New("cache fingerprint is required")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	cached, ok := s.responses[fingerprint]
	if !ok {
		return nil, nil
	}
	return cached.Clone(), nil
}

// SetCachedResponse stores a copy of result under fingerprint.
func (s *Store) SetCachedResponse(ctx context.Context, fingerprint string, result *core.Result) error {
	if s == nil {
		return errors.New("store is not initialized")
	}

	fingerprint = strings.TrimSpace(fingerprint)
	if fingerprint == "" {
		return errors.New("cache fingerprint is required")
	}
	if result == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.init()
	s.responses[fingerprint] = result.Clone()
	return nil
}

// ClearResponses drops every cached response.
func (s *Store) ClearResponses() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = make(map[string]*core.Result)
}
