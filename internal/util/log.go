// Package util provides the shared plumbing for logging, retries, rate
// limiting, circuit breaking, and trading-calendar arithmetic.
package util

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger builds the process logger. Level is one of "debug", "info",
// "warn", "error"; format is "json" or "text". Unrecognised values fall
// back to info and json, so a bad config never loses log output.
func NewLogger(level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
