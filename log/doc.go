// Package log provides a concurrency-safe simplified logging interface
// based on [log/slog].
//
// Loggers are immutable values configured at creation time with functional
// options. A package-level default logger backs the top-level functions and
// is reconfigured by the CLI before any command runs.
//
// # Basic Usage
//
//	logger := log.Make(os.Stderr, log.WithLevel(log.LevelDebug))
//	logger.Info("app started", slog.String("app", name), slog.Int("port", port))
//
// Attributes attached with [Logger.With] are included in every message:
//
//	logger = logger.With(slog.String("app", name))
//
// # Levels
//
// In addition to the [log/slog] levels, [LevelTrace] sits below
// [LevelDebug] for per-request chatter such as proxied requests.
//
// # Output Formats
//
// [FormatJSON] (default) and [FormatText] map to the [log/slog] handlers.
// With [WithPretty], both formats switch to colorized handlers meant for
// interactive terminals.
//
// # Context-Aware Logging
//
// Each level has a context-aware variant. Context-unaware functions use
// [DefaultContextProvider], which returns [context.TODO] by default.
package log
