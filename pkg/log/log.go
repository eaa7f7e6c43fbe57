package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/chainguard-dev/clog"
)

// Emojis for different log types
const (
	successEmoji = "✅ "
	stepEmoji    = "👉 "
	issueEmoji   = "📝 "
	repoEmoji    = "📦 "
)

// Logger is a printf-style facade over a structured clog logger.
type Logger struct {
	log   *clog.Logger
	debug bool
}

// New creates a new logger writing to stderr
func New(debug bool) *Logger {
	return NewWithWriter(os.Stderr, debug)
}

// NewWithWriter creates a logger that writes text records to w
func NewWithWriter(w io.Writer, debug bool) *Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return &Logger{log: clog.New(h), debug: debug}
}

type ctxKey struct{}

// FromContext returns the logger stored by Context. Without one it wraps
// clog's context logger, with IsDebug reporting false.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{log: clog.FromContext(ctx)}
}

// With returns a child logger carrying the given key/value attributes
func (l *Logger) With(args ...any) *Logger {
	return &Logger{log: l.log.With(args...), debug: l.debug}
}

// Context stores the logger in ctx so clog.FromContext finds it downstream.
func (l *Logger) Context(ctx context.Context) context.Context {
	return context.WithValue(clog.WithLogger(ctx, l.log), ctxKey{}, l)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.log.Infof(format, args...)
}

// Success logs a completed step at info level
func (l *Logger) Success(format string, args ...any) {
	l.log.Info(successEmoji + fmt.Sprintf(format, args...))
}

// Step logs the start of a step at info level
func (l *Logger) Step(format string, args ...any) {
	l.log.Info(stepEmoji + fmt.Sprintf(format, args...))
}

// Repo logs a repository-related message
func (l *Logger) Repo(format string, args ...any) {
	l.log.Info(repoEmoji + fmt.Sprintf(format, args...))
}

// Issue logs an issue-related message
func (l *Logger) Issue(format string, args ...any) {
	l.log.Info(issueEmoji + fmt.Sprintf(format, args...))
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...any) {
	l.log.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.log.Errorf(format, args...)
}

// Debug logs a debug message; dropped unless debug is enabled
func (l *Logger) Debug(format string, args ...any) {
	l.log.Debugf(format, args...)
}

// IsDebug returns whether debug logging is enabled
func (l *Logger) IsDebug() bool {
	return l.debug
}
