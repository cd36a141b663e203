package engine

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/core"
)

// throttleLogThreshold is the shortest wait worth a debug line.
const throttleLogThreshold = 5 * time.Second

// RateLimit describes how often calls against one key may be made.
type RateLimit struct {
	MaxRequests int
	Per         core.DatePart
	// PerRoute keys the limiter with RouteKey instead of the URL host.
	PerRoute bool
	RouteKey func(rawURL string) string
	// RandomRange, when set, replaces MaxRequests with a fresh draw from
	// [Low, High] on every acquisition.
	RandomRange     *RequestRange
	BurstMultiplier int
}

// RequestRange is an inclusive range of request counts.
type RequestRange struct {
	Low  int
	High int
}

// DefaultRateLimit allows one request per second per host.
func DefaultRateLimit() RateLimit {
	return RateLimit{MaxRequests: 1, Per: core.DatePartSecond, BurstMultiplier: 1}
}

// Validate rejects impossible combinations.
func (l RateLimit) Validate() error {
	if l.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be greater than zero", core.ErrInvalidRateLimit)
	}
	if !l.Per.Valid() {
		return fmt.Errorf("%w: unknown unit %s", core.ErrInvalidRateLimit, l.Per)
	}
	if l.PerRoute && l.RouteKey == nil {
		return fmt.Errorf("%w: a route key function is required when limiting per route", core.ErrInvalidRateLimit)
	}
	if l.RandomRange != nil {
		if l.RandomRange.Low >= l.RandomRange.High {
			return fmt.Errorf("%w: range lower bound must be smaller than the upper bound", core.ErrInvalidRateLimit)
		}
		if l.RandomRange.Low <= 0 {
			return fmt.Errorf("%w: range lower bound must be greater than zero", core.ErrInvalidRateLimit)
		}
	}
	if l.BurstMultiplier < 0 {
		return fmt.Errorf("%w: burst multiplier must be positive", core.ErrInvalidRateLimit)
	}
	return nil
}

func (l RateLimit) withDefaults() RateLimit {
	if l.BurstMultiplier == 0 {
		l.BurstMultiplier = 1
	}
	return l
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error
}

// RateLimiter spaces calls per key. Callers on the same key are admitted one
// at a time in the order they obtain the key's gate; different keys never
// wait on each other.
type RateLimiter struct {
	Limit    RateLimit
	Store    RateLimitStore
	Clock    func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	Random   Random
	Logger   Logger
	Observer Observer

	mu    sync.Mutex
	gates map[string]chan struct{}
}

// NewRateLimiter validates limit and returns a limiter backed by store.
func NewRateLimiter(limit RateLimit, store RateLimitStore) (*RateLimiter, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	return &RateLimiter{Limit: limit.withDefaults(), Store: store}, nil
}

// Key returns the limiter key for a URL: the route key when limiting per
// route, otherwise (or when the route key is empty) the host.
func (r *RateLimiter) Key(rawURL string) string {
	if r.Limit.PerRoute && r.Limit.RouteKey != nil {
		if key := r.Limit.RouteKey(rawURL); key != "" {
			return key
		}
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

// Interval returns the target spacing between calls. With a random range the
// request count is redrawn on every call.
func (r *RateLimiter) Interval() time.Duration {
	limit := r.Limit.withDefaults()
	maxRequests := limit.MaxRequests
	if limit.RandomRange != nil {
		low, high := limit.RandomRange.Low, limit.RandomRange.High
		maxRequests = low + r.random().IntN(high-low+1)
	}
	seconds := limit.Per.Seconds() / (float64(maxRequests) / float64(limit.BurstMultiplier))
	return secondsToDuration(seconds)
}

// NextCall returns the earliest time key may be called again. Unseen keys
// may be called at now.
func (r *RateLimiter) NextCall(ctx context.Context, key string, now time.Time) (time.Time, error) {
	state, err := r.Store.GetRateLimit(ctx, key)
	if err != nil {
		return now, err
	}
	if state == nil || state.LastCallAt.IsZero() {
		return now, nil
	}
	jitter := secondsToDuration(r.random().Float64())
	return state.LastCallAt.Add(r.Interval() + jitter), nil
}

// Acquire blocks until key may be called, then stamps the call time.
func (r *RateLimiter) Acquire(ctx context.Context, key string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gate := r.gate(key)
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-gate }()

	now := r.now()
	next, err := r.NextCall(ctx, key, now)
	if err != nil {
		return err
	}

	if wait := next.Sub(now); wait > 0 {
		if wait >= throttleLogThreshold {
			r.logger().Debug("Throttling",
				zap.String("key", key),
				zap.Duration("wait", wait))
		}
		r.observer().Throttled(key, wait)
		if err := r.sleep(ctx, wait); err != nil {
			return err
		}
	}

	state, err := r.Store.GetRateLimit(ctx, key)
	if err != nil {
		return err
	}
	if state == nil {
		state = &core.RateLimitState{}
	}
	state.LastCallAt = r.now()
	state.RequestCount++
	return r.Store.UpdateRateLimit(ctx, key, state)
}

func (r *RateLimiter) gate(key string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gates == nil {
		r.gates = make(map[string]chan struct{})
	}
	gate, ok := r.gates[key]
	if !ok {
		gate = make(chan struct{}, 1)
		r.gates[key] = gate
	}
	return gate
}

func (r *RateLimiter) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep != nil {
		return r.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (r *RateLimiter) random() Random {
	if r.Random != nil {
		return r.Random
	}
	return globalRandom{}
}

func (r *RateLimiter) logger() Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}

func (r *RateLimiter) observer() Observer {
	if r.Observer != nil {
		return r.Observer
	}
	return nopObserver{}
}
