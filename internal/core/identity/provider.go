// Package identity produces the spoofed browser headers presented on outbound
// requests and keeps one profile alive for a fixed lifetime.
package identity

import (
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a generated profile is reused.
const DefaultTTL = 60 * time.Minute

// Fixed values applied on top of every generated profile.
const (
	AcceptEncoding = "gzip, deflate, br"
	AcceptLanguage = "en-US,en;q=0.9,ja;q=0.8"
	Accept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
)

// selfReferer marks the referer candidate that points at the request itself.
const selfReferer = ""

var refererCandidates = []string{
	"https://www.google.com/",
	"https://www.bing.com/",
	"https://search.yahoo.com/",
	"https://duckduckgo.com/",
	selfReferer,
	"https://twitter.com/",
}

// Generator produces a plausible browser header set.
type Generator interface {
	Generate() map[string]string
}

// Logger is the subset of a logger the provider uses.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
}

// Profile is one generated identity and its expiry.
type Profile struct {
	Headers   map[string]string
	ExpiresAt time.Time
}

// Provider hands out the current identity, regenerating it once it expires.
// It is safe for concurrent use; readers always see one whole profile.
type Provider struct {
	TTL       time.Duration
	Generator Generator
	Clock     func() time.Time
	// Pick returns a uniform index in [0, n).
	Pick   func(n int) int
	Logger Logger

	mu          sync.Mutex
	current     *Profile
	generations int
}

// NewProvider returns a provider using the default browser generator.
func NewProvider(ttl time.Duration) *Provider {
	return &Provider{TTL: ttl, Generator: NewBrowserGenerator()}
}

// Current returns the headers of the active profile for a request to requestURL.
// The returned map is a copy owned by the caller.
func (p *Provider) Current(requestURL string) map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.current == nil || now.After(p.current.ExpiresAt) {
		p.current = p.generate(requestURL, now)
		p.generations++
		p.logger().Debug("Refreshing spoofed headers",
			zap.String("user_agent", p.current.Headers["User-Agent"]),
			zap.Time("expires_at", p.current.ExpiresAt))
	}

	headers := make(map[string]string, len(p.current.Headers))
	for key, value := range p.current.Headers {
		headers[key] = value
	}
	return headers
}

// Generations reports how many profiles were generated so far.
func (p *Provider) Generations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generations
}

func (p *Provider) generate(requestURL string, now time.Time) *Profile {
	generator := p.Generator
	if generator == nil {
		generator = NewBrowserGenerator()
	}

	headers := make(map[string]string)
	for key, value := range generator.Generate() {
		headers[key] = value
	}

	referer := refererCandidates[p.pick(len(refererCandidates))]
	if referer == selfReferer {
		referer = selfRefererFor(requestURL)
	}
	if referer != "" {
		headers["Referer"] = referer
	}
	headers["Accept-Encoding"] = AcceptEncoding
	headers["Accept-Language"] = AcceptLanguage
	headers["Accept"] = Accept

	return &Profile{Headers: headers, ExpiresAt: now.Add(p.ttl())}
}

// selfRefererFor strips the query and fragment from requestURL.
func selfRefererFor(requestURL string) string {
	parsed, err := url.Parse(requestURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return (&url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: parsed.Path}).String()
}

func (p *Provider) ttl() time.Duration {
	if p.TTL > 0 {
		return p.TTL
	}
	return DefaultTTL
}

func (p *Provider) now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now().UTC()
}

func (p *Provider) pick(n int) int {
	if p.Pick != nil {
		return p.Pick(n)
	}
	return rand.IntN(n)
}

func (p *Provider) logger() Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.NewNop()
}
