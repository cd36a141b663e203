package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders results as an ASCII table.
type TableFormatter struct{}

// FormatResult renders a result summary as a two column table.
func (f *TableFormatter) FormatResult(view ResultView) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, row := range summaryRows(view) {
		t.AppendRow(table.Row{row[0], row[1]})
	}

	return t.Render(), nil
}

// FormatProxies renders the proxy pool as a numbered table.
func (f *TableFormatter) FormatProxies(endpoints []string) (string, error) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"#", "Endpoint"})

	for i, endpoint := range endpoints {
		t.AppendRow(table.Row{i + 1, endpoint})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d proxies", len(endpoints))})

	return t.Render(), nil
}
