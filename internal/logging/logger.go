// Package logging builds the structured zerolog logger every component in
// this module shares. Grounded on the teacher's
// internal/shared/monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Level names the minimum severity a Logger emits.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format names the Logger's output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures New.
type Config struct {
	Level   Level
	Format  Format
	Service string
}

// New builds a zerolog.Logger writing to stdout, JSON-encoded unless
// Format is FormatPretty, with a timestamp, caller, and service tag on
// every line.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	service := cfg.Service
	if service == "" {
		service = "gatewayclient"
	}

	return zerolog.New(out).With().
		Timestamp().
		Caller().
		Str("service", service).
		Logger()
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// RecoverPanic is meant for a goroutine's first deferred call: it logs a
// recovered panic with a stack trace and lets the goroutine return
// normally instead of crashing the process.
func RecoverPanic(logger zerolog.Logger, goroutineName string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutineName).
			Interface("panic_value", r).
			Str("stack_trace", string(debug.Stack())).
			Msg("goroutine panic recovered")
	}
}
