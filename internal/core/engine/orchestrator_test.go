package engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zdiemer/simplescraper/internal/core"
	"github.com/zdiemer/simplescraper/internal/core/store"
	"github.com/zdiemer/simplescraper/internal/core/transport"
)

type fakeReply struct {
	status int
	body   string
	err    error
}

type fakeTransport struct {
	mu       sync.Mutex
	replies  []fakeReply
	requests []*transport.Request
}

func (f *fakeTransport) Fetch(_ context.Context, req *transport.Request) (*transport.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)

	reply := f.replies[len(f.replies)-1]
	if len(f.requests) <= len(f.replies) {
		reply = f.replies[len(f.requests)-1]
	}
	if reply.err != nil {
		return nil, reply.err
	}
	return &transport.Response{StatusCode: reply.status, Body: []byte(reply.body), URL: req.URL}, nil
}

func (f *fakeTransport) Name() string {
	return "fake"
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTransport) Last() *transport.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type stubIdentity map[string]string

func (s stubIdentity) Current(string) map[string]string {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

func newTestScraper(t *testing.T, tr transport.Transport, mutate func(*Options)) (*Scraper, *fakeClock, *recordingObserver) {
	t.Helper()
	clock := newFakeClock()
	observer := &recordingObserver{}
	opts := Options{
		RateLimit: RateLimit{MaxRequests: 1, Per: core.DatePartSecond},
		Backoff:   BackoffPolicy{Initial: 2 * time.Second, Exponent: 2, MaxAttempts: 3},
		Transport: tr,
		Store:     store.New(),
		Observer:  observer,
		Clock:     clock.Now,
		Sleep:     clock.Sleep,
		Random:    &fixedRandom{},
	}
	if mutate != nil {
		mutate(&opts)
	}
	scraper, err := New(opts)
	require.NoError(t, err)
	return scraper, clock, observer
}

func TestScraperServesFromCache(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: `{"id":1}`}}}
	scraper, _, observer := newTestScraper(t, tr, nil)
	ctx := context.Background()

	first, err := scraper.Get(ctx, "https://example.com/items", &RequestOptions{Params: url.Values{"page": {"1"}}})
	require.NoError(t, err)
	require.False(t, first.FromCache)
	require.Equal(t, map[string]any{"id": float64(1)}, first.JSON)
	require.Equal(t, 1, first.Attempts)

	second, err := scraper.Get(ctx, "https://example.com/items", &RequestOptions{Params: url.Values{"page": {"1"}}})
	require.NoError(t, err)
	require.True(t, second.FromCache)
	require.Equal(t, first.JSON, second.JSON)
	require.Equal(t, 1, tr.Calls())

	_, err = scraper.Get(ctx, "https://example.com/items", &RequestOptions{Params: url.Values{"page": {"2"}}})
	require.NoError(t, err)
	require.Equal(t, 2, tr.Calls())

	require.Equal(t, 1, observer.hits)
	require.Equal(t, 2, observer.misses)
}

func TestScraperCacheHitSkipsRateLimit(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, clock, _ := newTestScraper(t, tr, func(o *Options) {
		o.RateLimit = RateLimit{MaxRequests: 1, Per: core.DatePartHour}
	})
	ctx := context.Background()

	_, err := scraper.Get(ctx, "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)
	_, err = scraper.Get(ctx, "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)

	require.Empty(t, clock.Slept())
}

func TestScraperNoCacheAlwaysDispatches(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "fresh"}}}
	scraper, _, _ := newTestScraper(t, tr, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result, err := scraper.Get(ctx, "https://example.com", &RequestOptions{Text: true, NoCache: true})
		require.NoError(t, err)
		require.False(t, result.FromCache)
	}
	require.Equal(t, 3, tr.Calls())

	_, err := scraper.Get(ctx, "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, 4, tr.Calls())
}

func TestScraperImmediateStop(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: http.StatusForbidden, body: "banned"}}}
	scraper, clock, observer := newTestScraper(t, tr, func(o *Options) {
		o.ImmediatelyStopStatuses = []int{http.StatusForbidden}
	})

	_, err := scraper.Get(context.Background(), "https://example.com", nil)
	require.Error(t, err)
	require.True(t, core.IsImmediateStop(err))

	var stop *core.ImmediateStopError
	require.ErrorAs(t, err, &stop)
	require.Equal(t, http.StatusForbidden, stop.StatusCode)

	require.Equal(t, 1, tr.Calls())
	require.Empty(t, clock.Slept())
	require.Equal(t, []string{OutcomeImmediateStop}, observer.outcomes)
}

func TestScraperRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{status: http.StatusServiceUnavailable, body: "busy"},
		{err: transport.Transient("GET", syscall.ECONNRESET)},
		{status: 200, body: `[1,2]`},
	}}
	scraper, clock, observer := newTestScraper(t, tr, nil)

	result, err := scraper.Get(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	require.Equal(t, []any{float64(1), float64(2)}, result.JSON)
	require.Equal(t, 3, result.Attempts)
	require.Equal(t, 3, tr.Calls())
	require.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, clock.Slept())
	require.Equal(t, []int{1, 2}, observer.backoffs)
	require.Equal(t, []string{OutcomeSuccess}, observer.outcomes)
}

func TestScraperExhaustsBackoff(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: http.StatusInternalServerError, body: " oops \n"}}}
	scraper, _, observer := newTestScraper(t, tr, nil)

	_, err := scraper.Get(context.Background(), "https://example.com", nil)
	require.Error(t, err)
	require.True(t, core.IsBackoffExhausted(err))
	require.False(t, core.IsImmediateStop(err))

	var status *core.StatusError
	require.ErrorAs(t, err, &status)
	require.Equal(t, http.StatusInternalServerError, status.StatusCode)
	require.Equal(t, "oops", status.Body)

	require.Equal(t, 4, tr.Calls())
	require.Equal(t, []string{OutcomeExhausted}, observer.outcomes)

	_, err = scraper.Get(context.Background(), "https://example.com", &RequestOptions{})
	require.Error(t, err)
	require.Equal(t, 8, tr.Calls())
}

func TestScraperRetriesEmptyBodies(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{
		{status: 200, body: "   "},
		{status: 200, body: "content"},
	}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	result, err := scraper.Get(context.Background(), "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, "content", result.Text())
	require.Equal(t, 2, tr.Calls())

	jsonTr := &fakeTransport{replies: []fakeReply{
		{status: 200, body: "null"},
		{status: 200, body: `{"ok":true}`},
	}}
	jsonScraper, _, _ := newTestScraper(t, jsonTr, nil)

	result, err = jsonScraper.Get(context.Background(), "https://example.com", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, result.JSON)
	require.Equal(t, 2, jsonTr.Calls())
}

func TestScraperPropagatesUnclassifiedErrors(t *testing.T) {
	boom := errors.New("boom")
	tr := &fakeTransport{replies: []fakeReply{{err: boom}}}
	scraper, clock, observer := newTestScraper(t, tr, nil)

	_, err := scraper.Get(context.Background(), "https://example.com", nil)
	require.ErrorIs(t, err, boom)
	require.False(t, core.IsBackoffExhausted(err))
	require.Equal(t, 1, tr.Calls())
	require.Empty(t, clock.Slept())
	require.Equal(t, []string{OutcomeError}, observer.outcomes)
}

func TestScraperInvalidJSONIsNotRetried(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "<html>"}}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	_, err := scraper.Get(context.Background(), "https://example.com", nil)
	require.Error(t, err)
	require.False(t, core.IsBackoffExhausted(err))
	require.Equal(t, 1, tr.Calls())
}

func TestScraperCallerRetryErrors(t *testing.T) {
	errFlaky := errors.New("flaky upstream")
	tr := &fakeTransport{replies: []fakeReply{{err: errFlaky}, {status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	result, err := scraper.Get(context.Background(), "https://example.com", &RequestOptions{
		Text:        true,
		RetryErrors: []error{errFlaky},
	})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Text())

	predicateTr := &fakeTransport{replies: []fakeReply{{err: errors.New("weird")}, {status: 200, body: "ok"}}}
	predicateScraper, _, _ := newTestScraper(t, predicateTr, nil)
	_, err = predicateScraper.Get(context.Background(), "https://example.com", &RequestOptions{
		Text:    true,
		RetryIf: func(err error) bool { return err.Error() == "weird" },
	})
	require.NoError(t, err)
	require.Equal(t, 2, predicateTr.Calls())
}

func TestScraperHeaderPrecedence(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, func(o *Options) {
		o.UserAgent = "default-agent"
		o.SpoofHeaders = true
		o.Identity = stubIdentity{"User-Agent": "spoofed-agent", "Referer": "https://www.bing.com/"}
	})

	_, err := scraper.Get(context.Background(), "https://example.com", &RequestOptions{
		Text:    true,
		Headers: map[string]string{"user-agent": "call-agent", "x-token": "abc"},
	})
	require.NoError(t, err)

	headers := tr.Last().Headers
	require.Equal(t, "spoofed-agent", headers["User-Agent"])
	require.Equal(t, "abc", headers["X-Token"])
	require.Equal(t, "https://www.bing.com/", headers["Referer"])
}

func TestScraperCallHeadersOverrideDefaults(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, func(o *Options) {
		o.UserAgent = "default-agent"
	})

	_, err := scraper.Get(context.Background(), "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, "default-agent", tr.Last().Headers["User-Agent"])

	_, err = scraper.Get(context.Background(), "https://example.com/other", &RequestOptions{
		Text:    true,
		Headers: map[string]string{"User-Agent": "call-agent"},
	})
	require.NoError(t, err)
	require.Equal(t, "call-agent", tr.Last().Headers["User-Agent"])
}

func TestScraperResolvesBaseURL(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, func(o *Options) {
		o.BaseURL = "https://api.example.com/v1/"
	})

	result, err := scraper.Get(context.Background(), "items", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1/items", result.URL)
	require.Equal(t, "https://api.example.com/v1/items", tr.Last().URL)

	bare, _, _ := newTestScraper(t, tr, nil)
	_, err = bare.Get(context.Background(), "items", nil)
	require.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestScraperRejectsConflictingBodies(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	_, err := scraper.Post(context.Background(), "https://example.com", &RequestOptions{
		Data:     []byte("a=1"),
		JSONBody: map[string]int{"a": 1},
	})
	require.ErrorIs(t, err, transport.ErrBodyConflict)
	require.ErrorIs(t, err, core.ErrInvalidRequest)
	require.Zero(t, tr.Calls())
}

func TestScraperPostSendsBody(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 201, body: `{"created":true}`}}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	result, err := scraper.Post(context.Background(), "https://example.com/things", &RequestOptions{
		JSONBody: map[string]string{"name": "widget"},
	})
	require.NoError(t, err)
	require.Equal(t, http.MethodPost, result.Method)
	require.Equal(t, http.MethodPost, tr.Last().Method)
	require.Equal(t, map[string]string{"name": "widget"}, tr.Last().JSONBody)
}

func TestScraperUsesProxyPool(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, func(o *Options) {
		o.UseProxy = true
		o.Proxies = transport.NewProxyPool([]string{"10.0.0.1:8080"})
	})

	_, err := scraper.Get(context.Background(), "https://example.com", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, "http://10.0.0.1:8080", tr.Last().Proxy)
}

func TestScraperStopsOnCancellation(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := scraper.Get(ctx, "https://example.com", nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, tr.Calls())
}

func TestScraperWithHTTPTransport(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"q":"` + r.URL.Query().Get("q") + `"}`))
	}))
	defer server.Close()

	scraper, _, _ := newTestScraper(t, transport.NewHTTPTransport(5*time.Second), nil)

	result, err := scraper.Get(context.Background(), server.URL+"/search", &RequestOptions{Params: url.Values{"q": {"go"}}})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"q": "go"}, result.JSON)
	require.Equal(t, "http", result.Transport)
	require.Equal(t, int32(2), hits.Load())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Options{RateLimit: RateLimit{MaxRequests: 1, Per: core.DatePartSecond, PerRoute: true}})
	require.ErrorIs(t, err, core.ErrInvalidRateLimit)

	_, err = New(Options{Backoff: BackoffPolicy{Initial: -time.Second, Exponent: 2, MaxAttempts: 1}})
	require.Error(t, err)

	scraper, err := New(Options{})
	require.NoError(t, err)
	require.Equal(t, "http", scraper.TransportName())
}

func TestScraperCachedJSONIsNotSharedWithCallers(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: `{"a":"b","tags":["x"]}`}}}
	scraper, _, _ := newTestScraper(t, tr, nil)
	ctx := context.Background()

	first, err := scraper.Get(ctx, "https://example.com/doc", nil)
	require.NoError(t, err)
	first.JSON.(map[string]any)["a"] = "mutated"
	first.JSON.(map[string]any)["tags"].([]any)[0] = "y"

	second, err := scraper.Get(ctx, "https://example.com/doc", nil)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	second.JSON.(map[string]any)["a"] = "mutated again"

	third, err := scraper.Get(ctx, "https://example.com/doc", nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": "b", "tags": []any{"x"}}, third.JSON)
	require.Equal(t, 1, tr.Calls())
}

func TestScraperEmptyRouteKeyUsesHost(t *testing.T) {
	tr := &fakeTransport{replies: []fakeReply{{status: 200, body: "ok"}}}
	scraper, _, _ := newTestScraper(t, tr, func(o *Options) {
		o.RateLimit = RateLimit{
			MaxRequests: 1,
			Per:         core.DatePartSecond,
			PerRoute:    true,
			RouteKey:    func(string) string { return "" },
		}
	})

	result, err := scraper.Get(context.Background(), "https://example.com/a", &RequestOptions{Text: true})
	require.NoError(t, err)
	require.Equal(t, "ok", result.Text())
}
