package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/core"
)

// BackoffPolicy configures the exponential backoff of one request chain.
type BackoffPolicy struct {
	Initial     time.Duration
	Exponent    float64
	MaxAttempts int
}

// DefaultBackoffPolicy waits 2s, 4s, 16s and then gives up.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: 2 * time.Second, Exponent: 2, MaxAttempts: 3}
}

// Validate rejects policies that cannot terminate or grow.
func (p BackoffPolicy) Validate() error {
	if p.Initial <= 0 {
		return errors.New("backoff initial delay must be positive")
	}
	if p.Exponent < 1 {
		return errors.New("backoff exponent must be at least 1")
	}
	if p.MaxAttempts < 0 {
		return errors.New("backoff max attempts must not be negative")
	}
	return nil
}

// Backoff is the retry state of a single request chain. It is not safe for
// concurrent use; create one per logical request.
type Backoff struct {
	Policy BackoffPolicy
	Sleep  func(ctx context.Context, d time.Duration) error
	Random Random
	Logger Logger
	// Notify, when set, is called before every wait.
	Notify func(attempt int, wait time.Duration)

	delay    float64
	attempts int
}

// NewBackoff returns fresh chain state for policy.
func NewBackoff(policy BackoffPolicy) *Backoff {
	return &Backoff{Policy: policy, delay: policy.Initial.Seconds()}
}

// Attempts returns how many retries were granted so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// Delay returns the base delay of the next wait, without jitter.
func (b *Backoff) Delay() time.Duration {
	return secondsToDuration(b.delay)
}

// OnFailure records a failure of the chain identified by id. It sleeps and
// returns nil when the caller should retry, or returns a
// *core.BackoffExhaustedError once the attempts are spent.
func (b *Backoff) OnFailure(ctx context.Context, id string, cause error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}

	if b.attempts >= b.Policy.MaxAttempts {
		return &core.BackoffExhaustedError{
			URL:      id,
			Attempts: b.attempts,
			Reason:   reason,
			Cause:    cause,
		}
	}

	wait := secondsToDuration(b.delay + b.random().Float64())
	b.logger().Warn("Backing off",
		zap.Duration("delay", wait),
		zap.String("url", id),
		zap.String("reason", reason),
		zap.Int("attempt", b.attempts+1),
		zap.Int("max_attempts", b.Policy.MaxAttempts))
	if b.Notify != nil {
		b.Notify(b.attempts+1, wait)
	}

	if err := b.sleep(ctx, wait); err != nil {
		return fmt.Errorf("backoff interrupted: %w", err)
	}

	b.delay = math.Pow(b.delay, b.Policy.Exponent)
	b.attempts++
	return nil
}

func (b *Backoff) sleep(ctx context.Context, d time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, d)
	}
	return sleepContext(ctx, d)
}

func (b *Backoff) random() Random {
	if b.Random != nil {
		return b.Random
	}
	return globalRandom{}
}

func (b *Backoff) logger() Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return zap.NewNop()
}
