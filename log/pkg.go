package log

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

//nolint:gochecknoglobals
var defaultLog atomic.Pointer[Logger]

func init() {
	l := Make(os.Stderr)
	defaultLog.Store(&l)
}

// Default returns the package-level logger used by the logging functions.
func Default() Logger { return *defaultLog.Load() }

// SetDefault replaces the package-level logger.
func SetDefault(l Logger) { defaultLog.Store(&l) }

// Config reconfigures the package-level logger with the given options.
func Config(opts ...Option) {
	l := Default().Wrap(opts...)
	defaultLog.Store(&l)
}

// With returns a new [Logger] derived from the package-level logger that
// includes the given attributes in each log message.
func With(attrs ...slog.Attr) Logger { return Default().With(attrs...) }

// TraceContext logs a message at Trace level using the default logger.
func TraceContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().logContext(ctx, LevelTrace, msg, attrs...)
}

// Trace logs a message at Trace level using the default logger.
func Trace(msg string, attrs ...slog.Attr) {
	Default().logContext(DefaultContextProvider(), LevelTrace, msg, attrs...)
}

// DebugContext logs a message at Debug level using the default logger.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().logContext(ctx, LevelDebug, msg, attrs...)
}

// Debug logs a message at Debug level using the default logger.
func Debug(msg string, attrs ...slog.Attr) {
	Default().logContext(DefaultContextProvider(), LevelDebug, msg, attrs...)
}

// InfoContext logs a message at Info level using the default logger.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().logContext(ctx, LevelInfo, msg, attrs...)
}

// Info logs a message at Info level using the default logger.
func Info(msg string, attrs ...slog.Attr) {
	Default().logContext(DefaultContextProvider(), LevelInfo, msg, attrs...)
}

// WarnContext logs a message at Warn level using the default logger.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().logContext(ctx, LevelWarn, msg, attrs...)
}

// Warn logs a message at Warn level using the default logger.
func Warn(msg string, attrs ...slog.Attr) {
	Default().logContext(DefaultContextProvider(), LevelWarn, msg, attrs...)
}

// ErrorContext logs a message at Error level using the default logger.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	Default().logContext(ctx, LevelError, msg, attrs...)
}

// Error logs a message at Error level using the default logger.
func Error(msg string, attrs ...slog.Attr) {
	Default().logContext(DefaultContextProvider(), LevelError, msg, attrs...)
}
