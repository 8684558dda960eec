package log_test

import (
	"context"
	"log/slog"
	"os"

	"github.com/ardnew/nanny/log"
)

func Example_textFormat() {
	logger := log.Make(os.Stdout,
		log.WithFormat(log.FormatText),
		log.WithTimeLayout("none"))

	logger.Info("app started", slog.String("app", "demo"), slog.Int("port", 8080))
	logger.Debug("not shown")
	// Output: level=INFO msg="app started" app=demo port=8080
}

func Example_levels() {
	logger := log.Make(os.Stdout,
		log.WithLevel(log.LevelWarn),
		log.WithTimeLayout("none"))

	logger.Info("info message")
	logger.Warn("warning message", slog.String("key", "value"))
	// Output: {"level":"WARN","msg":"warning message","key":"value"}
}

func Example_withContext() {
	type requestIDKey struct{}

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-789")

	logger := log.Make(os.Stdout, log.WithTimeLayout("none")).
		With(slog.String("component", "proxy"))

	logger.InfoContext(ctx, "forwarding request")
	// Output: {"level":"INFO","msg":"forwarding request","component":"proxy"}
}
