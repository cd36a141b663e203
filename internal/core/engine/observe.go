package engine

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Logger is the logging surface the engine needs. *zap.Logger and the gofulmen
// logger both satisfy it.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
}

// Observer receives request lifecycle events, typically for metrics.
type Observer interface {
	CacheLookup(hit bool)
	Throttled(key string, wait time.Duration)
	BackedOff(key string, attempt int, wait time.Duration)
	Finished(key string, outcome string, elapsed time.Duration)
}

// Outcome labels reported to Observer.Finished.
const (
	OutcomeSuccess       = "success"
	OutcomeImmediateStop = "immediate_stop"
	OutcomeExhausted     = "exhausted"
	OutcomeError         = "error"
)

// Random is the source of jitter and random choices.
type Random interface {
	Float64() float64
	IntN(n int) int
}

type nopObserver struct{}

func (nopObserver) CacheLookup(bool)                       {}
func (nopObserver) Throttled(string, time.Duration)        {}
func (nopObserver) BackedOff(string, int, time.Duration)   {}
func (nopObserver) Finished(string, string, time.Duration) {}

type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) IntN(n int) int   { return rand.IntN(n) }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func secondsToDuration(seconds float64) time.Duration {
	const maxSeconds = float64(math.MaxInt64) / float64(time.Second)
	if seconds >= maxSeconds {
		return time.Duration(math.MaxInt64)
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// fieldLogger prefixes every entry with a fixed set of fields.
type fieldLogger struct {
	base   Logger
	fields []zap.Field
}

func withFields(base Logger, fields ...zap.Field) Logger {
	return fieldLogger{base: base, fields: fields}
}

func (l fieldLogger) Debug(msg string, fields ...zap.Field) {
	l.base.Debug(msg, l.merge(fields)...)
}

func (l fieldLogger) Info(msg string, fields ...zap.Field) {
	l.base.Info(msg, l.merge(fields)...)
}

func (l fieldLogger) Warn(msg string, fields ...zap.Field) {
	l.base.Warn(msg, l.merge(fields)...)
}

func (l fieldLogger) merge(fields []zap.Field) []zap.Field {
	merged := make([]zap.Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	return append(merged, fields...)
}
