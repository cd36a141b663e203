package core

import (
	"fmt"
	"strings"
	"time"
)

// DatePart is the time unit a rate limit is expressed in.
type DatePart int

const (
	DatePartSecond DatePart = iota + 1
	DatePartMinute
	DatePartHour
	DatePartDay
	DatePartWeek
	DatePartMonth
	DatePartYear
)

var datePartSeconds = map[DatePart]float64{
	DatePartSecond: 1,
	DatePartMinute: 60,
	DatePartHour:   3600,
	DatePartDay:    86_400,
	DatePartWeek:   604_800,
	DatePartMonth:  2.628e6,
	DatePartYear:   3.154e7,
}

var datePartNames = map[DatePart]string{
	DatePartSecond: "second",
	DatePartMinute: "minute",
	DatePartHour:   "hour",
	DatePartDay:    "day",
	DatePartWeek:   "week",
	DatePartMonth:  "month",
	DatePartYear:   "year",
}

// Seconds returns the length of the unit in seconds, or 0 for an unknown unit.
func (d DatePart) Seconds() float64 {
	return datePartSeconds[d]
}

// Valid reports whether d is one of the known units.
func (d DatePart) Valid() bool {
	_, ok := datePartSeconds[d]
	return ok
}

func (d DatePart) String() string {
	if name, ok := datePartNames[d]; ok {
		return name
	}
	return fmt.Sprintf("DatePart(%d)", int(d))
}

// ParseDatePart converts a unit name ("second", "minutes", "hour", ...) to a DatePart.
func ParseDatePart(value string) (DatePart, error) {
	normalized := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(value)), "s")
	if normalized == "" {
		return DatePartSecond, nil
	}
	for part, name := range datePartNames {
		if name == normalized {
			return part, nil
		}
	}
	return 0, fmt.Errorf("unknown rate limit unit: %q", value)
}

// Result is the outcome of a successful request chain.
type Result struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"-"`
	JSON       any       `json:"json,omitempty"`
	FromCache  bool      `json:"from_cache"`
	Attempts   int       `json:"attempts"`
	Transport  string    `json:"transport"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// Text returns the raw body as a string.
func (r *Result) Text() string {
	if r == nil {
		return ""
	}
	return string(r.Body)
}

// Clone returns a copy that shares neither the body buffer nor the decoded
// JSON value.
func (r *Result) Clone() *Result {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Body = append([]byte(nil), r.Body...)
	clone.JSON = cloneJSON(r.JSON)
	return &clone
}

// cloneJSON deep-copies the maps and slices produced by encoding/json.
func cloneJSON(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneJSON(item)
		}
		return out
	default:
		return v
	}
}
