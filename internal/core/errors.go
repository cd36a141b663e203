package core

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrImmediateStop marks a response status the caller declared terminal.
	ErrImmediateStop = errors.New("simplescraper: immediate stop status")

	// ErrBackoffExhausted marks a chain that ran out of retry attempts.
	ErrBackoffExhausted = errors.New("simplescraper: backoff exhausted")

	// ErrEmptyResponse is the retry reason for a successful but empty body.
	ErrEmptyResponse = errors.New("empty response")

	// ErrInvalidRateLimit is returned for rejected rate limit configurations.
	ErrInvalidRateLimit = errors.New("invalid rate limit")

	// ErrInvalidRequest marks a request rejected before dispatch.
	ErrInvalidRequest = errors.New("invalid request")
)

// ImmediateStopError reports a response whose status is in the immediate-stop set.
type ImmediateStopError struct {
	URL        string
	StatusCode int
}

func (e *ImmediateStopError) Error() string {
	return fmt.Sprintf("immediate stop: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is match ErrImmediateStop.
func (e *ImmediateStopError) Is(target error) bool {
	return target == ErrImmediateStop
}

// BackoffExhaustedError reports that the retry budget of a chain is spent.
// Reason is the last observed failure; Cause holds it as an error when available.
type BackoffExhaustedError struct {
	URL      string
	Attempts int
	Reason   string
	Cause    error
}

func (e *BackoffExhaustedError) Error() string {
	return fmt.Sprintf("gave up on %s after %d retries: %s", e.URL, e.Attempts, e.Reason)
}

// Is lets errors.Is match ErrBackoffExhausted.
func (e *BackoffExhaustedError) Is(target error) bool {
	return target == ErrBackoffExhausted
}

func (e *BackoffExhaustedError) Unwrap() error {
	return e.Cause
}

// StatusError is a non-2xx response treated as a retryable failure.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return e.Body
	}
	return fmt.Sprintf("%d", e.StatusCode)
}

// IsImmediateStop reports whether err terminated on an immediate-stop status.
func IsImmediateStop(err error) bool {
	return errors.Is(err, ErrImmediateStop)
}

// IsBackoffExhausted reports whether err is a spent retry budget.
func IsBackoffExhausted(err error) bool {
	return errors.Is(err, ErrBackoffExhausted)
}
