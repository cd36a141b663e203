// Package transport implements the fetch capability used by the scraper: a
// direct HTTP client and a browser renderer, both optionally routed through a
// proxy pool.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single direct HTTP exchange.
const DefaultTimeout = 30 * time.Second

// Request describes one dispatch.
type Request struct {
	Method   string
	URL      string
	Params   url.Values
	Headers  map[string]string
	Body     []byte
	JSONBody any
	// Proxy is an endpoint such as http://host:port; empty means direct.
	Proxy string
}

// Response is the payload returned by a transport.
type Response struct {
	StatusCode int
	Body       []byte
	URL        string
	Header     http.Header
}

// Transport fetches a request and returns its content or a typed failure.
type Transport interface {
	Fetch(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Kind selects a transport variant.
type Kind string

const (
	KindHTTP    Kind = "http"
	KindBrowser Kind = "browser"
)

// ParseKind parses a configured transport name.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindHTTP:
		return KindHTTP, nil
	case KindBrowser:
		return KindBrowser, nil
	default:
		return "", fmt.Errorf("unknown transport %q (expected http or browser)", value)
	}
}

// RequestURL returns the request URL with Params merged into its query.
func (r *Request) RequestURL() (string, error) {
	parsed, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if len(r.Params) == 0 {
		return parsed.String(), nil
	}
	query := parsed.Query()
	for key, values := range r.Params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// Options configures New.
type Options struct {
	Kind     Kind
	Timeout  time.Duration
	ExecPath string
	Display  Display
}

// New returns the transport variant selected by opts.Kind.
func New(opts Options) (Transport, error) {
	switch opts.Kind {
	case "", KindHTTP:
		return NewHTTPTransport(opts.Timeout), nil
	case KindBrowser:
		return &BrowserTransport{ExecPath: opts.ExecPath, Display: opts.Display, Timeout: opts.Timeout}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", opts.Kind)
	}
}
