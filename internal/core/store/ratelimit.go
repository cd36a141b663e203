package store

import (
	"context"
	"errors"

	"github.com/zdiemer/simplescraper/internal/core"
)

// GetRateLimit returns the stored state for a key, or nil when the key is
// unseen. Keys are stored verbatim.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	if s == nil {
		return nil, errors.New("store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.rateLimits[key]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// UpdateRateLimit replaces the stored state for a key.
func (s *Store) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	if s == nil {
		return errors.New("store is not initialized")
	}

	if state == nil {
		return errors.New("rate limit state is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.init()
	s.rateLimits[key] = *state
	return nil
}
