package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders results as a markdown table.
type MarkdownFormatter struct{}

// FormatResult renders a result summary as Markdown.
func (f *MarkdownFormatter) FormatResult(view ResultView) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## %s %s\n\n", escapeMarkdownCell(view.Method), escapeMarkdownCell(view.URL)))
	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")

	for _, row := range summaryRows(view) {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", escapeMarkdownCell(row[0]), escapeMarkdownCell(row[1])))
	}

	return sb.String(), nil
}

// FormatProxies renders the proxy pool as a Markdown list.
func (f *MarkdownFormatter) FormatProxies(endpoints []string) (string, error) {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Proxies (%d)\n\n", len(endpoints)))
	for _, endpoint := range endpoints {
		sb.WriteString(fmt.Sprintf("- `%s`\n", endpoint))
	}
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
