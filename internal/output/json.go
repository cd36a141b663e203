package output

import (
	"encoding/json"
)

// JSONFormatter renders results as JSON.
type JSONFormatter struct {
	Indent bool
}

// FormatResult renders a result view as JSON.
func (f *JSONFormatter) FormatResult(view ResultView) (string, error) {
	return f.marshal(view)
}

// FormatProxies renders the endpoints as a JSON array.
func (f *JSONFormatter) FormatProxies(endpoints []string) (string, error) {
	if endpoints == nil {
		endpoints = []string{}
	}
	return f.marshal(endpoints)
}

func (f *JSONFormatter) marshal(value any) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(value, "", "  ")
	} else {
		data, err = json.Marshal(value)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
