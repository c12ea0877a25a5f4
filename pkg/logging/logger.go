// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Per-page fetch flow (cursor values, limits)
//   - Cache lookups (hit/miss, key, TTL)
//   - Governor pacing decisions (current delay, window counter)
//
// Info: Normal operation events
//   - Endpoint processing start/completion
//   - Pagination progress (every 10 pages)
//   - Batch save progress (every 1000 records)
//   - Session summary
//
// Warn: Warning conditions that don't prevent operation
//   - Rate limit backoff waits
//   - Retry attempts
//   - Skipped records (serialization failure)
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Failed pages (after retries and recovery)
//   - Failed endpoints
//   - Configuration errors
//
// Context Fields:
//   - endpoint: API endpoint path
//   - page: current page number
//   - attempt: retry or recovery attempt number
//   - wait: backoff wait duration
//   - cumulative_wait: total recovery wait so far
//   - records: unique record count
//   - duplicates: duplicate count
//   - status_code: HTTP status code
//   - error_class: error classification (rate_limit, upstream, decode, network, timeout)
