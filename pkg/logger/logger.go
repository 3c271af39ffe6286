// Package logger builds the process-wide slog.Logger and provides the
// shared attribute helpers used across the codebase.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a slog.Logger configured from the environment.
// LOG_LEVEL selects the minimum level (case-insensitive, "warning" is
// accepted as an alias for "warn", anything unknown falls back to info).
// GO_ENV=production switches to the JSON handler.
func NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(os.Getenv("LOG_LEVEL")),
	}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(raw) {
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

// Scope tags log records with the component that emitted them.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error attaches an error under the conventional "error" key.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}
