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
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
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
//   - Individual retry attempts and computed backoff
//   - Cursor URLs as pages advance
//   - Checkpoint store operations
//
// Info: Normal operation events
//   - Page fetched (page number, record count)
//   - Early stop triggered by the ID threshold
//   - Run completion (pages, records, outcome)
//
// Warn: Warning conditions that don't prevent operation
//   - Retryable failures (rate limit, server error, network)
//   - Non-monotonic IDs detected under descending sort
//   - Checkpoint save failures (run continues)
//
// Error: Error conditions requiring attention
//   - Fatal API errors (auth failure, bad request)
//   - Malformed response envelopes
//   - Aborted runs (with the resume cursor)
//
// Context Fields:
//   - endpoint: registry endpoint path
//   - status: HTTP status code
//   - attempt: retry attempt number for the current page
//   - backoff: computed delay before the next attempt
//   - page: 1-based page counter for the run
//   - records: record count (per page or cumulative)
//   - cursor: next-page or resume URL
//   - error_class: classification (client, server, rate_limit, network)
