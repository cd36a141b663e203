package store

import (
	"errors"
	"sort"
	"strings"

	"github.com/zdiemer/simplescraper/internal/core"
)

type RateLimitEntry struct {
	Key   string
	State core.RateLimitState
}

type RateLimitQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q RateLimitQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify all, key, or prefix")
}

func (q RateLimitQuery) matches(key string) bool {
	if q.All {
		return true
	}
	if strings.TrimSpace(q.Key) != "" {
		return key == q.Key
	}
	return strings.HasPrefix(key, strings.TrimSpace(q.Prefix))
}

// ListRateLimits returns the matching entries ordered by key.
func (s *Store) ListRateLimits(q RateLimitQuery) ([]RateLimitEntry, error) {
	if s == nil {
		return nil, errors.New("store is not initialized")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entries := []RateLimitEntry{}
	for key, state := range s.rateLimits {
		if q.matches(key) {
			entries = append(entries, RateLimitEntry{Key: key, State: state})
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// ResetRateLimits forgets the matching keys and returns how many were removed.
// A forgotten key is treated as unseen and is granted immediately.
func (s *Store) ResetRateLimits(q RateLimitQuery) (int, error) {
	if s == nil {
		return 0, errors.New("store is not initialized")
	}
	if err := q.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key := range s.rateLimits {
		if q.matches(key) {
			delete(s.rateLimits, key)
			removed++
		}
	}
	return removed, nil
}
