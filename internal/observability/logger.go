package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used for HTTP server (STRUCTURED profile)
	ServerLogger *logging.Logger
)

// InitCLILogger sets CLILogger to a SIMPLE profile console logger on stderr.
// Verbose forces DEBUG regardless of level.
func InitCLILogger(serviceName string, level string, verbose bool) error {
	if verbose {
		level = "debug"
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileSimple,
		DefaultLevel: ParseLogLevel(level),
		Service:      serviceName,
		Environment:  "cli",
		Sinks:        []logging.SinkConfig{stderrSink("console")},
	})
	if err != nil {
		return fmt.Errorf("initialize CLI logger: %w", err)
	}
	CLILogger = logger
	return nil
}

// InitServerLogger sets ServerLogger to a STRUCTURED JSON logger. Every entry
// carries the transport the scraper dispatches through.
func InitServerLogger(serviceName string, level string, transportName string) error {
	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: ParseLogLevel(level),
		Service:      serviceName,
		Environment:  "server",
		StaticFields: map[string]any{"transport": transportName},
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks:            []logging.SinkConfig{stderrSink("json")},
		EnableCaller:     true,
		EnableStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("initialize server logger: %w", err)
	}
	ServerLogger = logger
	return nil
}

func stderrSink(format string) logging.SinkConfig {
	return logging.SinkConfig{
		Type:    "console",
		Format:  format,
		Console: &logging.ConsoleSinkConfig{Stream: "stderr", Colorize: false},
	}
}

// ParseLogLevel maps a config level name onto a logging severity. Unknown
// names fall back to INFO.
func ParseLogLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}
