package engine

import (
	"context"
	"sync"
	"time"
)

// fakeClock advances virtual time whenever something sleeps on it.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// fixedRandom returns the same jitter and index every time.
type fixedRandom struct {
	mu     sync.Mutex
	jitter float64
	index  int
	draws  int
}

func (r *fixedRandom) Float64() float64 {
	return r.jitter
}

func (r *fixedRandom) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.draws++
	if r.index >= n {
		return n - 1
	}
	return r.index
}

type recordingObserver struct {
	mu       sync.Mutex
	hits     int
	misses   int
	throttle []time.Duration
	backoffs []int
	outcomes []string
}

func (o *recordingObserver) CacheLookup(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) Throttled(_ string, wait time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.throttle = append(o.throttle, wait)
}

func (o *recordingObserver) BackedOff(_ string, attempt int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backoffs = append(o.backoffs, attempt)
}

func (o *recordingObserver) Finished(_ string, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}
