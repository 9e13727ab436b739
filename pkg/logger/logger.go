// Package logger sets up structured logging on top of log/slog.
// Console output is text in development and JSON in production; an optional
// log file always receives JSON through a slog-multi fanout.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// ParseLevel parses a string into a slog.Level. Unknown values map to Info.
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

// Options configures the logger.
type Options struct {
	// Output is the console writer. Default: os.Stdout.
	Output io.Writer

	// Level is the minimum level for every handler.
	Level slog.Level

	// JSON switches the console handler to JSON (production).
	JSON bool

	// File, when set, adds a JSON handler appending to this path.
	File string

	// AddSource includes file:line in records.
	AddSource bool
}

// Setup builds the logger and returns a cleanup func that closes the log file.
// If the file cannot be opened the logger falls back to console-only output.
func Setup(opts Options) (*slog.Logger, func() error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level, AddSource: opts.AddSource}

	var console slog.Handler
	if opts.JSON {
		console = slog.NewJSONHandler(opts.Output, handlerOpts)
	} else {
		console = slog.NewTextHandler(opts.Output, handlerOpts)
	}

	noop := func() error { return nil }
	if opts.File == "" {
		return slog.New(console), noop
	}

	file, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l := slog.New(console)
		l.Error("failed to open log file, using console only", "error", err, "file", opts.File)
		return l, noop
	}

	fileHandler := slog.NewJSONHandler(file, handlerOpts)
	return slog.New(slogmulti.Fanout(console, fileHandler)), file.Close
}

// NewWithWriters creates a fanout logger with custom writers (for testing).
func NewWithWriters(console, file io.Writer, level slog.Level) *slog.Logger {
	consoleHandler := slog.NewTextHandler(console, &slog.HandlerOptions{Level: level})
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Context key for logger.
type ctxKey struct{}

// WithContext returns a new context with the logger attached.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext retrieves the logger from context, or returns slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// Common attribute keys.
const (
	RequestIDKey = "request_id"
	RunIDKey     = "run_id"
)

func RequestID(id string) slog.Attr     { return slog.String(RequestIDKey, id) }
func RunID(id string) slog.Attr         { return slog.String(RunIDKey, id) }
func CandidateID(id string) slog.Attr   { return slog.String("candidate_id", id) }
func Component(name string) slog.Attr   { return slog.String("component", name) }
func Operation(name string) slog.Attr   { return slog.String("operation", name) }
func Latency(d time.Duration) slog.Attr { return slog.Duration("latency", d) }
func Err(err error) slog.Attr           { return slog.Any("error", err) }
