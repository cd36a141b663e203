package engine

import (
	"fmt"
	"net/url"
	"strings"
)

// PathRouteKey keys by host and full path.
func PathRouteKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return parsed.Host + parsed.EscapedPath()
}

// FirstSegmentRouteKey keys by host and the first path segment, so
// /api/users/1 and /api/users/2 share a limit.
func FirstSegmentRouteKey(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	segment, _, _ := strings.Cut(strings.TrimPrefix(parsed.EscapedPath(), "/"), "/")
	if segment == "" {
		return parsed.Host + "/"
	}
	return parsed.Host + "/" + segment
}

// RouteKeyFunc returns the named built-in route key function.
func RouteKeyFunc(name string) (func(string) string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "path":
		return PathRouteKey, nil
	case "first_segment":
		return FirstSegmentRouteKey, nil
	default:
		return nil, fmt.Errorf("unknown route key %q (expected path or first_segment)", name)
	}
}
