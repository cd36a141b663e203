package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zdiemer/simplescraper/internal/core"
)

func TestBackoffGrowsThenExhausts(t *testing.T) {
	clock := newFakeClock()
	backoff := NewBackoff(BackoffPolicy{Initial: 2 * time.Second, Exponent: 2, MaxAttempts: 3})
	backoff.Sleep = clock.Sleep
	backoff.Random = &fixedRandom{}

	var notified []int
	backoff.Notify = func(attempt int, _ time.Duration) {
		notified = append(notified, attempt)
	}

	cause := errors.New("status 503")
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, backoff.OnFailure(ctx, "https://example.com", cause))
	}

	err := backoff.OnFailure(ctx, "https://example.com", cause)
	require.Error(t, err)
	require.True(t, core.IsBackoffExhausted(err))
	require.ErrorIs(t, err, cause)

	var exhausted *core.BackoffExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.Equal(t, "status 503", exhausted.Reason)

	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second, 16 * time.Second}, clock.Slept())
	require.Equal(t, []int{1, 2, 3}, notified)
	require.Equal(t, 256*time.Second, backoff.Delay())
}

func TestBackoffAddsJitter(t *testing.T) {
	clock := newFakeClock()
	backoff := NewBackoff(DefaultBackoffPolicy())
	backoff.Sleep = clock.Sleep
	backoff.Random = &fixedRandom{jitter: 0.25}

	require.NoError(t, backoff.OnFailure(context.Background(), "id", nil))
	require.Equal(t, []time.Duration{2250 * time.Millisecond}, clock.Slept())
	require.Equal(t, 1, backoff.Attempts())
}

func TestBackoffZeroAttemptsExhaustsImmediately(t *testing.T) {
	clock := newFakeClock()
	backoff := NewBackoff(BackoffPolicy{Initial: time.Second, Exponent: 2, MaxAttempts: 0})
	backoff.Sleep = clock.Sleep

	err := backoff.OnFailure(context.Background(), "id", errors.New("nope"))
	require.True(t, core.IsBackoffExhausted(err))
	require.Empty(t, clock.Slept())
}

func TestBackoffInterruptedByContext(t *testing.T) {
	backoff := NewBackoff(DefaultBackoffPolicy())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backoff.OnFailure(ctx, "id", errors.New("flaky"))
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, core.IsBackoffExhausted(err))
}

func TestBackoffPolicyValidate(t *testing.T) {
	require.NoError(t, DefaultBackoffPolicy().Validate())
	require.Error(t, BackoffPolicy{Initial: 0, Exponent: 2, MaxAttempts: 3}.Validate())
	require.Error(t, BackoffPolicy{Initial: time.Second, Exponent: 0.5, MaxAttempts: 3}.Validate())
	require.Error(t, BackoffPolicy{Initial: time.Second, Exponent: 2, MaxAttempts: -1}.Validate())
}
