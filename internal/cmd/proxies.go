package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zdiemer/simplescraper/internal/output"
)

var proxiesCmd = &cobra.Command{
	Use:   "proxies",
	Short: "List the proxy pool",
	Long: `Load the proxy pool the way fetch and serve do: the list file first
(scraper.proxy.list_file, one host:port per line), then the feed
(scraper.proxy.feed_url) when the file does not exist.`,
	Args: cobra.NoArgs,
	RunE: runProxies,
}

func init() {
	rootCmd.AddCommand(proxiesCmd)

	proxiesCmd.Flags().String("list-file", "", "Proxy list file (overrides scraper.proxy.list_file)")
	proxiesCmd.Flags().String("feed-url", "", "Proxy feed URL (overrides scraper.proxy.feed_url)")
	proxiesCmd.Flags().StringP("output", "o", "table", "Output format: table, json, markdown, raw")
}

func runProxies(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	proxyCfg := cfg.Scraper.Proxy

	if value, _ := cmd.Flags().GetString("list-file"); value != "" {
		proxyCfg.ListFile = value
	}
	if value, _ := cmd.Flags().GetString("feed-url"); value != "" {
		proxyCfg.FeedURL = value
	}

	formatValue, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(formatValue)
	if err != nil {
		return err
	}

	pool, err := loadProxies(cmd.Context(), proxyCfg)
	if err != nil {
		return err
	}

	rendered, err := output.NewFormatter(format).FormatProxies(pool.Endpoints())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return nil
}
