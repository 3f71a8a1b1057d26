// Package logger builds the process-wide slog.Logger and carries the small
// helpers the worker shares: level parsing, context propagation, common
// attribute constructors and an adapter for the cron runner.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Format selects the handler used for output.
type Format string

const (
	// FormatJSON writes one JSON object per line. Used in production.
	FormatJSON Format = "json"
	// FormatText writes logfmt-style lines.
	FormatText Format = "text"
)

// Options configures the logger.
type Options struct {
	Output    io.Writer
	Level     slog.Level
	Format    Format
	AddSource bool

	// Service is attached to every record as "service".
	Service string
}

// DefaultOptions returns sensible defaults for the logger.
func DefaultOptions() Options {
	return Options{
		Output:  os.Stdout,
		Level:   slog.LevelInfo,
		Format:  FormatJSON,
		Service: "lifecycle-worker",
	}
}

// New creates a slog.Logger with the given options.
func New(opts Options) *slog.Logger {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{
		Level:     opts.Level,
		AddSource: opts.AddSource,
	}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(opts.Output, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(opts.Output, handlerOpts)
	}

	l := slog.New(handler)
	if opts.Service != "" {
		l = l.With(slog.String("service", opts.Service))
	}
	return l
}

// ForEnvironment picks JSON output in production and text elsewhere.
func ForEnvironment(env, level string) *slog.Logger {
	opts := DefaultOptions()
	opts.Level = ParseLevel(level)
	if env != "production" {
		opts.Format = FormatText
		opts.AddSource = true
	}
	return New(opts)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ParseLevel parses a string into a slog.Level. Unknown values map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTRIBUTES
// ══════════════════════════════════════════════════════════════════════════════

// RequestIDKey is a common field key for request tracing.
const RequestIDKey = "request_id"

func Err(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}

func Job(name string) slog.Attr         { return slog.String("job", name) }
func StudentID(id string) slog.Attr     { return slog.String("student_id", id) }
func GroupID(id string) slog.Attr       { return slog.String("group_id", id) }
func Date(key string) slog.Attr         { return slog.String("date", key) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }

// ══════════════════════════════════════════════════════════════════════════════
// CRON ADAPTER
// ══════════════════════════════════════════════════════════════════════════════

// CronLogger adapts a slog.Logger to the logger interface of robfig/cron.
type CronLogger struct {
	l *slog.Logger
}

// NewCronLogger wraps l. A nil l falls back to slog.Default().
func NewCronLogger(l *slog.Logger) CronLogger {
	if l == nil {
		l = slog.Default()
	}
	return CronLogger{l: l.With(Component("cron"))}
}

// Info logs routine cron messages at debug level; they fire on every tick.
func (c CronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

// Error logs cron errors, including recovered job panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append([]any{Err(err)}, keysAndValues...)...)
}
