package transport

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/http2"
)

// ErrBodyConflict is returned when a request carries both a raw and a JSON body.
var ErrBodyConflict = errors.New("data and json body are mutually exclusive")

// HTTPTransport performs direct HTTP requests. Clients are cached per proxy
// endpoint so connections are reused across requests.
type HTTPTransport struct {
	Timeout time.Duration
	// Client overrides the direct (no proxy) client.
	Client *http.Client

	clients sync.Map
}

// NewHTTPTransport returns a direct transport bounded by timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{Timeout: timeout}
}

// Name identifies the transport in results and logs.
func (t *HTTPTransport) Name() string {
	return string(KindHTTP)
}

// Fetch performs req and returns the decoded response body.
func (t *HTTPTransport) Fetch(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("request is required")
	}
	if len(req.Body) > 0 && req.JSONBody != nil {
		return nil, ErrBodyConflict
	}

	target, err := req.RequestURL()
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := ""
	switch {
	case req.JSONBody != nil:
		payload, err := json.Marshal(req.JSONBody)
		if err != nil {
			return nil, fmt.Errorf("encode json body: %w", err)
		}
		body = bytes.NewReader(payload)
		contentType = "application/json"
	case len(req.Body) > 0:
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	client, err := t.client(req.Proxy)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		if IsTransient(err) {
			return nil, Transient(method+" "+target, err)
		}
		return nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	payload, err := readBody(resp)
	if err != nil {
		return nil, Transient("read body", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       payload,
		URL:        resp.Request.URL.String(),
		Header:     resp.Header,
	}, nil
}

func (t *HTTPTransport) client(proxy string) (*http.Client, error) {
	proxy = strings.TrimSpace(proxy)
	if proxy == "" && t.Client != nil {
		return t.Client, nil
	}
	if cached, ok := t.clients.Load(proxy); ok {
		return cached.(*http.Client), nil
	}

	roundTripper := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy %q: %w", proxy, err)
		}
		roundTripper.Proxy = http.ProxyURL(proxyURL)
	} else {
		roundTripper.Proxy = http.ProxyFromEnvironment
	}
	if err := http2.ConfigureTransport(roundTripper); err != nil {
		return nil, fmt.Errorf("configure http2: %w", err)
	}

	client := &http.Client{Transport: roundTripper, Timeout: t.timeout()}
	actual, _ := t.clients.LoadOrStore(proxy, client)
	return actual.(*http.Client), nil
}

func (t *HTTPTransport) timeout() time.Duration {
	if t.Timeout > 0 {
		return t.Timeout
	}
	return DefaultTimeout
}

// readBody reads the response, undoing any content encoding the transport
// did not already strip. Spoofed Accept-Encoding headers disable Go's
// transparent gzip handling.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.Uncompressed || len(raw) == 0 {
		return raw, nil
	}

	var reader io.Reader
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		defer gz.Close() // nolint:errcheck // reader over an in-memory buffer
		reader = gz
	case "deflate":
		zr, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			reader = flate.NewReader(bytes.NewReader(raw))
		} else {
			defer zr.Close() // nolint:errcheck // reader over an in-memory buffer
			reader = zr
		}
	case "br":
		reader = brotli.NewReader(bytes.NewReader(raw))
	default:
		return raw, nil
	}

	return io.ReadAll(reader)
}
