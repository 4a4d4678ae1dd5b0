// Package logging provides the structured logger shared by every shardmq
// broker component: the daemon, the acceptor, each shard, and the client
// connections they own log through a zerolog.Logger configured here.
package logging

import (
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
)

// Level is the minimum severity a logger will emit.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the logger's output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures New.
type Config struct {
	Level     Level
	Format    Format
	Component string // e.g. "shard-0", "acceptor", "jetstream.admin"
}

// New builds a zerolog.Logger with a timestamp, a service tag, and the given
// component tag. Pretty format uses zerolog's console writer (for a human
// staring at a terminal); JSON is the default for production log shipping.
func New(cfg Config) zerolog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	switch cfg.Level {
	case LevelDebug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case LevelWarn:
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case LevelError:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	logger := zerolog.New(out).With().
		Timestamp().
		Str("service", "shardmq").
		Logger()

	if cfg.Component != "" {
		logger = logger.With().Str("component", cfg.Component).Logger()
	}

	return logger
}

// RecoverPanic logs a recovered goroutine panic with its stack trace and lets
// the goroutine's caller continue bringing the process down gracefully rather
// than crashing the whole server for one bad connection.
func RecoverPanic(logger zerolog.Logger, goroutine string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("goroutine", goroutine).
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("goroutine panic recovered")
	}
}
