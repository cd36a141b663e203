package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
)

// DefaultProxyListFile is the list consulted before falling back to a harvester.
const DefaultProxyListFile = "proxies_list.txt"

// ProxyPool is an immutable set of proxy endpoints.
type ProxyPool struct {
	endpoints []string
	// IntN returns a uniform index in [0, n).
	IntN func(n int) int
}

// NewProxyPool builds a pool from endpoints, normalising each to http://host:port.
func NewProxyPool(endpoints []string) *ProxyPool {
	normalized := make([]string, 0, len(endpoints))
	for _, endpoint := range endpoints {
		if value := NormalizeProxy(endpoint); value != "" {
			normalized = append(normalized, value)
		}
	}
	return &ProxyPool{endpoints: normalized}
}

// Pick returns a uniformly chosen endpoint, or "" for an empty pool.
func (p *ProxyPool) Pick() string {
	if p == nil || len(p.endpoints) == 0 {
		return ""
	}
	intN := p.IntN
	if intN == nil {
		intN = rand.IntN
	}
	return p.endpoints[intN(len(p.endpoints))]
}

// Len reports the pool size.
func (p *ProxyPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.endpoints)
}

// Endpoints returns a copy of the pool contents in load order.
func (p *ProxyPool) Endpoints() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.endpoints...)
}

// NormalizeProxy turns host:port into http://host:port. Blank input yields "".
func NormalizeProxy(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		return value
	}
	return "http://" + value
}

// ReadProxyList parses a newline-delimited host:port list, skipping blank lines.
func ReadProxyList(r io.Reader) ([]string, error) {
	var endpoints []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if value := NormalizeProxy(scanner.Text()); value != "" {
			endpoints = append(endpoints, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read proxy list: %w", err)
	}
	return endpoints, nil
}

// Harvester discovers proxies from a third-party source. It returns parallel
// sequences of addresses and ports.
type Harvester interface {
	Harvest(ctx context.Context) (ips []string, ports []string, err error)
}

// LoadProxyPool reads path when it exists, otherwise asks harvester.
func LoadProxyPool(ctx context.Context, path string, harvester Harvester) (*ProxyPool, error) {
	if strings.TrimSpace(path) == "" {
		path = DefaultProxyListFile
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close() // nolint:errcheck // read-only file
		endpoints, err := ReadProxyList(file)
		if err != nil {
			return nil, err
		}
		return NewProxyPool(endpoints), nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("open proxy list: %w", err)
	}

	if harvester == nil {
		return nil, fmt.Errorf("proxy list %s not found and no feed configured", path)
	}
	ips, ports, err := harvester.Harvest(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest proxies: %w", err)
	}
	if len(ips) != len(ports) {
		return nil, fmt.Errorf("harvest proxies: %d addresses but %d ports", len(ips), len(ports))
	}

	endpoints := make([]string, 0, len(ips))
	for i := range ips {
		endpoints = append(endpoints, strings.TrimSpace(ips[i])+":"+strings.TrimSpace(ports[i]))
	}
	return NewProxyPool(endpoints), nil
}

// FeedHarvester downloads a proxy feed. The feed is either a JSON object with
// parallel "ips" and "ports" arrays or plain host:port lines.
type FeedHarvester struct {
	URL    string
	Client *http.Client
}

type feedPayload struct {
	IPs   []string `json:"ips"`
	Ports []string `json:"ports"`
}

// Harvest fetches and parses the feed.
func (h *FeedHarvester) Harvest(ctx context.Context) ([]string, []string, error) {
	if h == nil || strings.TrimSpace(h.URL) == "" {
		return nil, nil, errors.New("proxy feed url is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, nil, err
	}

	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("proxy feed returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, nil, err
	}

	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var payload feedPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, nil, fmt.Errorf("decode proxy feed: %w", err)
		}
		return payload.IPs, payload.Ports, nil
	}

	var ips, ports []string
	for _, line := range strings.Split(trimmed, "\n") {
		host, port, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok || host == "" || port == "" {
			continue
		}
		ips = append(ips, host)
		ports = append(ports, port)
	}
	return ips, ports, nil
}
