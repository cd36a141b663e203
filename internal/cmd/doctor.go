package cmd

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/config"
	"github.com/zdiemer/simplescraper/internal/core/transport"
	"github.com/zdiemer/simplescraper/internal/observability"
)

// chromeCandidates are the executable names chromedp also searches for.
var chromeCandidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Check the configuration, the selected transport and the proxy pool, and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		logger := observability.CLILogger
		logger.Info("=== " + binaryName + " doctor ===")

		allChecks := true
		totalChecks := 5

		logger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s (%s/%s)", totalChecks, runtime.Version(), runtime.GOOS, runtime.GOARCH))

		version := crucible.GetVersion()
		if version.Gofulmen != "" && version.Crucible != "" {
			logger.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible))
		} else {
			logger.Warn(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ⚠️  version metadata unavailable", totalChecks))
			allChecks = false
		}

		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			logger.Error(fmt.Sprintf("[3/%d] Checking configuration... ❌", totalChecks), zap.Error(err))
			ExitWithCode(logger, foundry.ExitConfigInvalid, "Configuration is invalid", err)
			return
		}
		source := viper.ConfigFileUsed()
		if source == "" {
			source = "defaults and environment"
		}
		logger.Info(fmt.Sprintf("[3/%d] Checking configuration... ✅ %s", totalChecks, source))

		if problems := transportProblems(cfg.Scraper); len(problems) > 0 {
			for _, problem := range problems {
				logger.Warn(fmt.Sprintf("[4/%d] Checking %s transport... ⚠️  %s", totalChecks, cfg.Scraper.Transport, problem))
			}
			allChecks = false
		} else {
			logger.Info(fmt.Sprintf("[4/%d] Checking %s transport... ✅", totalChecks, cfg.Scraper.Transport))
		}

		switch {
		case !cfg.Scraper.Proxy.Enabled:
			logger.Info(fmt.Sprintf("[5/%d] Checking proxy pool... ✅ disabled", totalChecks))
		default:
			pool, err := loadProxies(cmd.Context(), cfg.Scraper.Proxy)
			if err != nil {
				logger.Warn(fmt.Sprintf("[5/%d] Checking proxy pool... ⚠️  %v", totalChecks, err))
				allChecks = false
			} else {
				logger.Info(fmt.Sprintf("[5/%d] Checking proxy pool... ✅ %d proxies", totalChecks, pool.Len()))
			}
		}

		if allChecks {
			logger.Info("All checks passed")
			return
		}
		logger.Warn("Some checks need attention")
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// transportProblems lists what is missing for the configured transport to run.
func transportProblems(cfg config.ScraperConfig) []string {
	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return []string{err.Error()}
	}
	if kind != transport.KindBrowser {
		return nil
	}

	var problems []string
	if strings.TrimSpace(cfg.Browser.Display) == "" {
		if _, err := exec.LookPath(cfg.Browser.XvfbPath); err != nil {
			problems = append(problems, fmt.Sprintf("Xvfb not found at %q; install xvfb or set scraper.browser.display", cfg.Browser.XvfbPath))
		}
	}

	if execPath := strings.TrimSpace(cfg.Browser.ExecPath); execPath != "" {
		if _, err := exec.LookPath(execPath); err != nil {
			problems = append(problems, fmt.Sprintf("browser executable %q not found", execPath))
		}
		return problems
	}
	for _, candidate := range chromeCandidates {
		if _, err := exec.LookPath(candidate); err == nil {
			return problems
		}
	}
	return append(problems, "no Chrome or Chromium executable on PATH; set scraper.browser.exec_path")
}
