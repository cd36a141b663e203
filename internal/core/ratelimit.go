package core

import "time"

// RateLimitState captures per-key rate limiting state.
type RateLimitState struct {
	LastCallAt   time.Time
	RequestCount int
}
