package output

import (
	"encoding/json"
	"strings"
)

// RawFormatter prints only the body, suitable for piping.
type RawFormatter struct{}

// FormatResult returns the text body, or the decoded JSON re-encoded compactly.
func (f *RawFormatter) FormatResult(view ResultView) (string, error) {
	return bodyText(view, true)
}

// FormatProxies prints one endpoint per line.
func (f *RawFormatter) FormatProxies(endpoints []string) (string, error) {
	return strings.Join(endpoints, "\n"), nil
}

func bodyText(view ResultView, indent bool) (string, error) {
	if view.Text != "" || view.JSON == nil {
		return view.Text, nil
	}
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(view.JSON, "", "  ")
	} else {
		data, err = json.Marshal(view.JSON)
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
