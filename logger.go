package pmtree

import (
	"context"
	"log/slog"
	"os"
)

var logLevel = new(slog.LevelVar)

// ConfigureLogging sets up the global default logger with a TextHandler
// and configures the log level based on the PMTREE_LOG_LEVEL environment
// variable. It defaults to Info level if not specified.
//
// This function should be called by the application at startup if it wants
// to use the default pmtree logging configuration.
func ConfigureLogging() {
	// Default to Info
	logLevel.Set(slog.LevelInfo)

	// Check environment variable for log level
	lvl := os.Getenv("PMTREE_LOG_LEVEL")
	switch lvl {
	case "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "WARN":
		logLevel.Set(slog.LevelWarn)
	case "ERROR":
		logLevel.Set(slog.LevelError)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel sets the logging level for the logger configured by ConfigureLogging.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LogLevel selects the slog level Log emits at.
type LogLevel int

const (
	LogDebug LogLevel = iota
	LogWarn
)

// Log emits msg at the given level via slog.Default, attaching key and,
// when non-nil, err. Used by the façade package so a failed Lookup/Update/
// Delete is attributed to the record's rendered key (spec.md §7): routine
// misses (NonExistent) log at Debug, anything else at Warn.
func Log(ctx context.Context, level LogLevel, msg string, key string, err error) {
	attrs := []any{"key", key}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	switch level {
	case LogDebug:
		slog.Default().DebugContext(ctx, msg, attrs...)
	default:
		slog.Default().WarnContext(ctx, msg, attrs...)
	}
}
