// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"fmt"
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

// Format selects the log encoding.
type Format string

const (
	// FormatJSON writes one JSON object per event.
	FormatJSON Format = "json"

	// FormatPretty writes colored console lines with timestamp and level.
	FormatPretty Format = "pretty"

	// FormatPlain writes the message and fields only, the way a terminal
	// progress log reads: "p 1..5", "f 1..5	1 / 3".
	FormatPlain Format = "plain"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Format of the output (default: json).
	Format Format

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var logger zerolog.Logger
	switch cfg.Format {
	case FormatPretty:
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	case FormatPlain:
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:           out,
			NoColor:       true,
			PartsOrder:    []string{zerolog.MessageFieldName},
			FieldsExclude: []string{"component"},
		})
	default:
		logger = zerolog.New(out).With().Timestamp().Logger()
	}

	log.Logger = logger
	return logger
}

// ValidateLevel reports an error for level names Setup would not recognise.
func ValidateLevel(level LogLevel) error {
	switch strings.ToLower(string(level)) {
	case "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("unknown log level %q", level)
}

// ValidateFormat reports an error for unknown formats.
func ValidateFormat(format Format) error {
	switch format {
	case FormatJSON, FormatPretty, FormatPlain:
		return nil
	}
	return fmt.Errorf("unknown log format %q", format)
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
//   - Count cache operations (hit/miss, key, TTL)
//   - Individual search requests and page walks
//   - Planner growth steps
//
// Info: Normal operation events
//   - Committed plan intervals ("p low..high")
//   - Fetch progress ("f low..high i / n")
//   - Success after retry
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Skipped singleton scores
//   - Rate-limit waits
//   - Cache errors (fallback to direct request)
//
// Error: Error conditions requiring attention
//   - Coverage gaps
//   - Sink failures
//   - Configuration errors
//
// Context Fields:
//   - component: planner, fetcher, retry, github, count-cache, ratelimit, sink
//   - interval: low..high under work
//   - error_class: rate_limit or transient
//   - attempt: retry attempt number
//   - wait: backoff before the next attempt
//   - remaining: search quota left in the current window
