package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/core"
	"github.com/zdiemer/simplescraper/internal/core/identity"
	"github.com/zdiemer/simplescraper/internal/core/store"
	"github.com/zdiemer/simplescraper/internal/core/transport"
)

// ResponseCache stores successful results by request fingerprint.
type ResponseCache interface {
	GetCachedResponse(ctx context.Context, fingerprint string) (*core.Result, error)
	SetCachedResponse(ctx context.Context, fingerprint string, result *core.Result) error
}

// Store is the per-scraper state: last-call times and cached responses.
type Store interface {
	RateLimitStore
	ResponseCache
}

// IdentityProvider returns the spoofed headers for a request.
type IdentityProvider interface {
	Current(requestURL string) map[string]string
}

// Options configures a Scraper.
type Options struct {
	RateLimit RateLimit
	Backoff   BackoffPolicy
	// SpoofHeaders overlays Identity's headers on every request.
	SpoofHeaders bool
	Identity     IdentityProvider
	// ImmediatelyStopStatuses end a chain on first sight, without backoff.
	ImmediatelyStopStatuses []int
	BaseURL                 string
	UserAgent               string
	Transport               transport.Transport
	Proxies                 *transport.ProxyPool
	UseProxy                bool
	Store                   Store
	Logger                  Logger
	Observer                Observer
	Clock                   func() time.Time
	Sleep                   func(ctx context.Context, d time.Duration) error
	Random                  Random
}

// RequestOptions are the per-call knobs of Request.
type RequestOptions struct {
	Params  url.Values
	Headers map[string]string
	// Data is the raw request body. It cannot be combined with JSONBody.
	Data     []byte
	JSONBody any
	// Text returns the body as text instead of decoding JSON.
	Text bool
	// RetryErrors are additional errors (matched with errors.Is) that trigger backoff.
	RetryErrors []error
	RetryIf     func(error) bool
	// NoCache skips both the cache lookup and the cache store.
	NoCache bool
}

// Scraper issues polite requests: cached, rate limited, retried with backoff
// and optionally disguised.
type Scraper struct {
	opts    Options
	limiter *RateLimiter
	stops   map[int]struct{}
	base    *url.URL
}

// New validates opts and returns a Scraper.
func New(opts Options) (*Scraper, error) {
	if opts.RateLimit.MaxRequests == 0 && opts.RateLimit.Per == 0 {
		opts.RateLimit = DefaultRateLimit()
	}
	if opts.Backoff == (BackoffPolicy{}) {
		opts.Backoff = DefaultBackoffPolicy()
	}
	if err := opts.Backoff.Validate(); err != nil {
		return nil, err
	}
	if opts.Store == nil {
		opts.Store = store.New()
	}
	if opts.Transport == nil {
		opts.Transport = transport.NewHTTPTransport(transport.DefaultTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SpoofHeaders && opts.Identity == nil {
		provider := identity.NewProvider(identity.DefaultTTL)
		provider.Clock = opts.Clock
		provider.Logger = opts.Logger
		opts.Identity = provider
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}

	limiter, err := NewRateLimiter(opts.RateLimit, opts.Store)
	if err != nil {
		return nil, err
	}
	limiter.Clock = opts.Clock
	limiter.Sleep = opts.Sleep
	limiter.Random = opts.Random
	limiter.Logger = opts.Logger
	limiter.Observer = opts.Observer

	s := &Scraper{opts: opts, limiter: limiter, stops: make(map[int]struct{})}
	for _, status := range opts.ImmediatelyStopStatuses {
		s.stops[status] = struct{}{}
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		parsed, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse base url: %w", err)
		}
		s.base = parsed
	}
	return s, nil
}

// TransportName reports the configured transport.
func (s *Scraper) TransportName() string {
	return s.opts.Transport.Name()
}

// Get issues a GET request.
func (s *Scraper) Get(ctx context.Context, rawURL string, opts *RequestOptions) (*core.Result, error) {
	return s.Request(ctx, http.MethodGet, rawURL, opts)
}

// Post issues a POST request.
func (s *Scraper) Post(ctx context.Context, rawURL string, opts *RequestOptions) (*core.Result, error) {
	return s.Request(ctx, http.MethodPost, rawURL, opts)
}

// Request runs one logical request: cache check, rate limit wait, then
// dispatch with backoff until success, an immediate stop, exhaustion or an
// unclassified error.
func (s *Scraper) Request(ctx context.Context, method, rawURL string, opts *RequestOptions) (*core.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts == nil {
		opts = &RequestOptions{}
	}
	if len(opts.Data) > 0 && opts.JSONBody != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidRequest, transport.ErrBodyConflict)
	}

	target, err := s.resolve(rawURL)
	if err != nil {
		return nil, err
	}
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}

	chainID := uuid.NewString()
	logger := withFields(s.opts.Logger, zap.String("chain_id", chainID))
	key := s.limiter.Key(target)
	started := s.now()

	fingerprint, err := Fingerprint(target, opts.Params, opts.Data, opts.JSONBody)
	if err != nil {
		return nil, err
	}

	if !opts.NoCache {
		cached, err := s.opts.Store.GetCachedResponse(ctx, fingerprint)
		if err != nil {
			return nil, err
		}
		s.opts.Observer.CacheLookup(cached != nil)
		if cached != nil {
			logger.Debug("Serving from cache",
				zap.String("url", target))
			cached.FromCache = true
			return cached, nil
		}
	}

	headers := s.headers(target, opts.Headers)

	if err := s.limiter.Acquire(ctx, key); err != nil {
		return nil, err
	}

	backoff := NewBackoff(s.opts.Backoff)
	backoff.Sleep = s.opts.Sleep
	backoff.Random = s.opts.Random
	backoff.Logger = logger
	backoff.Notify = func(attempt int, wait time.Duration) {
		s.opts.Observer.BackedOff(key, attempt, wait)
	}

	for {
		result, err := s.dispatch(ctx, method, target, headers, opts)
		if err == nil {
			result.Attempts = backoff.Attempts() + 1
			if !opts.NoCache {
				if err := s.opts.Store.SetCachedResponse(ctx, fingerprint, result); err != nil {
					return nil, err
				}
			}
			s.opts.Observer.Finished(key, OutcomeSuccess, s.now().Sub(started))
			return result, nil
		}

		var retry *retryableError
		if !errors.As(err, &retry) {
			outcome := OutcomeError
			if core.IsImmediateStop(err) {
				outcome = OutcomeImmediateStop
				logger.Warn("Immediate stop status received",
					zap.String("url", target),
					zap.Error(err))
			}
			s.opts.Observer.Finished(key, outcome, s.now().Sub(started))
			return nil, err
		}

		if ferr := backoff.OnFailure(ctx, target, retry.cause); ferr != nil {
			if core.IsBackoffExhausted(ferr) {
				logger.Warn("Giving up after backoff",
					zap.String("url", target),
					zap.Int("attempts", backoff.Attempts()),
					zap.Error(retry.cause))
				s.opts.Observer.Finished(key, OutcomeExhausted, s.now().Sub(started))
			} else {
				s.opts.Observer.Finished(key, OutcomeError, s.now().Sub(started))
			}
			return nil, ferr
		}
	}
}

// retryableError marks a dispatch failure that goes through backoff.
type retryableError struct {
	cause error
}

func (e *retryableError) Error() string {
	return e.cause.Error()
}

func (e *retryableError) Unwrap() error {
	return e.cause
}

// dispatch performs one attempt and classifies its outcome.
func (s *Scraper) dispatch(ctx context.Context, method, target string, headers map[string]string, opts *RequestOptions) (*core.Result, error) {
	req := &transport.Request{
		Method:   method,
		URL:      target,
		Params:   opts.Params,
		Headers:  headers,
		Body:     opts.Data,
		JSONBody: opts.JSONBody,
	}
	if s.opts.UseProxy {
		req.Proxy = s.opts.Proxies.Pick()
	}

	resp, err := s.opts.Transport.Fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if s.retryable(err, opts) {
			return nil, &retryableError{cause: err}
		}
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if _, stop := s.stops[resp.StatusCode]; stop {
			return nil, &core.ImmediateStopError{URL: target, StatusCode: resp.StatusCode}
		}
		return nil, &retryableError{cause: &core.StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(resp.Body)),
		}}
	}

	result := &core.Result{
		URL:        target,
		Method:     method,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
		Transport:  s.opts.Transport.Name(),
		FetchedAt:  s.now(),
	}

	if opts.Text {
		if len(bytes.TrimSpace(resp.Body)) == 0 {
			return nil, &retryableError{cause: core.ErrEmptyResponse}
		}
		return result, nil
	}

	trimmed := bytes.TrimSpace(resp.Body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &retryableError{cause: core.ErrEmptyResponse}
	}
	if err := json.Unmarshal(trimmed, &result.JSON); err != nil {
		return nil, fmt.Errorf("decode json response from %s: %w", target, err)
	}
	return result, nil
}

func (s *Scraper) retryable(err error, opts *RequestOptions) bool {
	if transport.IsTransient(err) {
		return true
	}
	for _, candidate := range opts.RetryErrors {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return opts.RetryIf != nil && opts.RetryIf(err)
}

// headers merges default, per-call and spoofed headers, later sources winning.
func (s *Scraper) headers(target string, callHeaders map[string]string) map[string]string {
	merged := make(map[string]string)
	if ua := strings.TrimSpace(s.opts.UserAgent); ua != "" {
		merged["User-Agent"] = ua
	}
	for key, value := range callHeaders {
		merged[http.CanonicalHeaderKey(key)] = value
	}
	if s.opts.SpoofHeaders && s.opts.Identity != nil {
		for key, value := range s.opts.Identity.Current(target) {
			merged[http.CanonicalHeaderKey(key)] = value
		}
	}
	return merged
}

func (s *Scraper) resolve(rawURL string) (string, error) {
	value := strings.TrimSpace(rawURL)
	if value == "" {
		return "", fmt.Errorf("%w: url is required", core.ErrInvalidRequest)
	}
	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %w", core.ErrInvalidRequest, err)
	}
	if !parsed.IsAbs() {
		if s.base == nil {
			return "", fmt.Errorf("%w: relative url %q requires a base url", core.ErrInvalidRequest, value)
		}
		parsed = s.base.ResolveReference(parsed)
	}
	return parsed.String(), nil
}

func (s *Scraper) now() time.Time {
	if s.opts.Clock != nil {
		return s.opts.Clock()
	}
	return time.Now().UTC()
}
