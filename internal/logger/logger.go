package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Options controls how New builds a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Invalid values fall back to info.
	Level string
	// Format is "text" (colored, human readable) or "json".
	Format string
	// Output defaults to stderr so stdout stays free for the CLI result line.
	Output io.Writer
}

// Logger pairs a slog.Logger with the LevelVar backing it, so callers that
// own the logger can change its level at runtime.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New creates a logger. There is no package-level instance: components
// receive the *slog.Logger they should write to.
func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := new(slog.LevelVar)
	level.Set(ParseLevel(opts.Level))

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	return &Logger{Logger: slog.New(handler), level: level}
}

// SetLevel changes the log level at runtime. Valid values: debug, info, warn, error.
// Invalid values fall back to info.
func (l *Logger) SetLevel(levelStr string) {
	l.level.Set(ParseLevel(levelStr))
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent returns a logger with a component attribute.
func WithComponent(log *slog.Logger, component string) *slog.Logger {
	return log.With("component", component)
}

// Discard returns a logger that drops everything. Used by tests and by
// constructors that were handed a nil logger.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return Discard()
	}
	return log
}
