package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/zdiemer/simplescraper/internal/core"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatRaw      Format = "raw"
)

// bodyPreviewLimit bounds the body shown in table and markdown output.
const bodyPreviewLimit = 200

// Formatter renders fetch results and proxy lists.
type Formatter interface {
	FormatResult(view ResultView) (string, error)
	FormatProxies(endpoints []string) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	case string(FormatRaw):
		return FormatRaw, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	case FormatRaw:
		return &RawFormatter{}
	default:
		return &TableFormatter{}
	}
}

// ResultView is the rendered shape of a core.Result. Text mode fills Text;
// JSON mode fills JSON.
type ResultView struct {
	URL        string    `json:"url"`
	Method     string    `json:"method"`
	StatusCode int       `json:"status_code"`
	FromCache  bool      `json:"from_cache"`
	Attempts   int       `json:"attempts"`
	Transport  string    `json:"transport"`
	FetchedAt  time.Time `json:"fetched_at"`
	JSON       any       `json:"json,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// NewResultView converts result for output.
func NewResultView(result *core.Result, text bool) ResultView {
	if result == nil {
		return ResultView{}
	}
	view := ResultView{
		URL:        result.URL,
		Method:     result.Method,
		StatusCode: result.StatusCode,
		FromCache:  result.FromCache,
		Attempts:   result.Attempts,
		Transport:  result.Transport,
		FetchedAt:  result.FetchedAt,
	}
	if text {
		view.Text = result.Text()
	} else {
		view.JSON = result.JSON
	}
	return view
}

func summaryRows(view ResultView) [][2]string {
	fetched := ""
	if !view.FetchedAt.IsZero() {
		fetched = view.FetchedAt.UTC().Format(time.RFC3339)
	}
	return [][2]string{
		{"URL", view.URL},
		{"Method", view.Method},
		{"Status", fmt.Sprintf("%d", view.StatusCode)},
		{"From cache", yesNo(view.FromCache)},
		{"Attempts", fmt.Sprintf("%d", view.Attempts)},
		{"Transport", view.Transport},
		{"Fetched at", fetched},
		{"Body", bodyPreview(view)},
	}
}

func bodyPreview(view ResultView) string {
	body, err := bodyText(view, false)
	if err != nil {
		return fmt.Sprintf("(unrenderable: %v)", err)
	}
	body = strings.Join(strings.Fields(body), " ")
	if len(body) > bodyPreviewLimit {
		return body[:bodyPreviewLimit] + "..."
	}
	return body
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
