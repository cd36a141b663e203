package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/core/engine"
	"github.com/zdiemer/simplescraper/internal/observability"
	"github.com/zdiemer/simplescraper/internal/output"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url> [url...]",
	Short: "Fetch one or more URLs through the polite request pipeline",
	Long: `Fetch URLs with the configured rate limit, backoff, cache, identity and
transport. Several URLs share one scraper, so they are spaced by the rate
limit and repeated URLs are served from the cache.

Examples:
  simplescraper fetch https://api.example.com/items --param page=2
  simplescraper fetch https://example.com --text --output raw
  simplescraper fetch https://api.example.com/items -X POST --json-body '{"name":"widget"}'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("method", "X", "GET", "HTTP method")
	fetchCmd.Flags().StringArrayP("param", "p", nil, "Query parameter as key=value (repeatable)")
	fetchCmd.Flags().StringArrayP("header", "H", nil, "Request header as 'Name: value' (repeatable)")
	fetchCmd.Flags().StringP("data", "d", "", "Raw request body; @file reads it from a file")
	fetchCmd.Flags().String("json-body", "", "JSON request body; cannot be combined with --data")
	fetchCmd.Flags().Bool("text", false, "Treat the response as text instead of JSON")
	fetchCmd.Flags().Bool("no-cache", false, "Skip the response cache")
	fetchCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown, raw")
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	method, err := cmd.Flags().GetString("method")
	if err != nil {
		return err
	}
	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}
	opts, err := fetchOptions(cmd)
	if err != nil {
		return err
	}

	bundle, err := buildScraper(cmd.Context(), cfg.Scraper, observability.CLILogger, nil)
	if err != nil {
		return err
	}

	formatter := output.NewFormatter(format)
	startedAt := time.Now()
	for _, target := range args {
		result, err := bundle.Scraper.Request(cmd.Context(), method, target, opts)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", target, err)
		}

		rendered, err := formatter.FormatResult(output.NewResultView(result, opts.Text))
		if err != nil {
			return err
		}
		if rendered != "" {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		}
	}

	observability.CLILogger.Debug("Fetch complete",
		zap.Int("urls", len(args)),
		zap.Duration("elapsed", time.Since(startedAt)),
		zap.Int("cached_responses", bundle.Store.Stats().CachedResponses))
	return nil
}

func fetchOptions(cmd *cobra.Command) (*engine.RequestOptions, error) {
	rawParams, err := cmd.Flags().GetStringArray("param")
	if err != nil {
		return nil, err
	}
	rawHeaders, err := cmd.Flags().GetStringArray("header")
	if err != nil {
		return nil, err
	}
	data, err := cmd.Flags().GetString("data")
	if err != nil {
		return nil, err
	}
	jsonBody, err := cmd.Flags().GetString("json-body")
	if err != nil {
		return nil, err
	}
	text, err := cmd.Flags().GetBool("text")
	if err != nil {
		return nil, err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return nil, err
	}

	params, err := parseParams(rawParams)
	if err != nil {
		return nil, err
	}
	headers, err := parseHeaders(rawHeaders)
	if err != nil {
		return nil, err
	}

	opts := &engine.RequestOptions{
		Params:  params,
		Headers: headers,
		Text:    text,
		NoCache: noCache,
	}
	if data != "" {
		body, err := readData(data)
		if err != nil {
			return nil, err
		}
		opts.Data = body
	}
	if jsonBody != "" {
		var decoded any
		if err := json.Unmarshal([]byte(jsonBody), &decoded); err != nil {
			return nil, fmt.Errorf("invalid --json-body: %w", err)
		}
		opts.JSONBody = decoded
	}
	return opts, nil
}

func parseParams(values []string) (url.Values, error) {
	if len(values) == 0 {
		return nil, nil
	}
	params := url.Values{}
	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q (expected key=value)", value)
		}
		params.Add(key, val)
	}
	return params, nil
}

func parseHeaders(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(values))
	for _, value := range values {
		name, val, ok := strings.Cut(value, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --header %q (expected 'Name: value')", value)
		}
		headers[name] = strings.TrimSpace(val)
	}
	return headers, nil
}

func readData(value string) ([]byte, error) {
	path, ok := strings.CutPrefix(value, "@")
	if !ok {
		return []byte(value), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read --data file: %w", err)
	}
	return data, nil
}
