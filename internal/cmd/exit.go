package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	gferrors "github.com/fulmenhq/gofulmen/errors"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/core"
)

// osExit is replaced in tests.
var osExit = os.Exit

// ExitCodeFor maps a command error onto a foundry exit code. Upstream refusals
// and exhausted retries are reported as an unavailable external service.
func ExitCodeFor(err error) foundry.ExitCode {
	switch {
	case errors.Is(err, core.ErrImmediateStop), errors.Is(err, core.ErrBackoffExhausted):
		return foundry.ExitExternalServiceUnavailable
	case errors.Is(err, core.ErrInvalidRateLimit):
		return foundry.ExitConfigInvalid
	default:
		return foundry.ExitFailure
	}
}

// ExitWithCode logs err with exit code metadata and exits. A nil logger
// falls back to stderr.
func ExitWithCode(logger *logging.Logger, exitCode foundry.ExitCode, msg string, err error) {
	if logger == nil {
		ExitWithCodeStderr(exitCode, msg, err)
		return
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		logger.Error(msg, append(errorFields(err), zap.Int("exit_code", int(exitCode)))...)
		osExit(int(exitCode))
		return
	}

	fields := []zap.Field{
		zap.Int("exit_code", info.Code),
		zap.String("exit_name", info.Name),
		zap.String("exit_category", info.Category),
	}
	logger.Error(msg, append(fields, errorFields(err)...)...)
	osExit(info.Code)
}

// ExitWithCodeStderr is ExitWithCode for failures before the logger exists.
func ExitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	osExit(writeFatal(os.Stderr, exitCode, msg, err))
}

// writeFatal prints the failure and returns the process exit status.
func writeFatal(w io.Writer, exitCode foundry.ExitCode, msg string, err error) int {
	switch {
	case err == nil:
		_, _ = fmt.Fprintf(w, "FATAL: %s\n", msg)
	default:
		_, _ = fmt.Fprintf(w, "FATAL: %s: %v\n", msg, err)
	}

	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) && envelope.CorrelationID != "" {
		_, _ = fmt.Fprintf(w, "Correlation: %s\n", envelope.CorrelationID)
	}

	info, ok := foundry.GetExitCodeInfo(exitCode)
	if !ok {
		_, _ = fmt.Fprintf(w, "Exit Code: %d\n", exitCode)
		return int(exitCode)
	}
	_, _ = fmt.Fprintf(w, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
	return info.Code
}

// errorFields describes err for the structured log, unpacking envelopes and
// scrape failures.
func errorFields(err error) []zap.Field {
	if err == nil {
		return nil
	}

	var fields []zap.Field
	var envelope *gferrors.ErrorEnvelope
	if errors.As(err, &envelope) {
		fields = append(fields,
			zap.String("error_code", envelope.Code),
			zap.String("correlation_id", envelope.CorrelationID),
		)
		if original, ok := envelope.Original.(error); ok && original != nil {
			err = original
		}
	}

	var stop *core.ImmediateStopError
	var exhausted *core.BackoffExhaustedError
	switch {
	case errors.As(err, &stop):
		fields = append(fields, zap.String("url", stop.URL), zap.Int("upstream_status", stop.StatusCode))
	case errors.As(err, &exhausted):
		fields = append(fields, zap.String("url", exhausted.URL), zap.Int("attempts", exhausted.Attempts))
	}

	return append(fields, zap.Error(err))
}
