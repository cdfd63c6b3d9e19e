package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger for a binary. Every record carries the
// service name so the api, prewarmer and ingestor logs can share a sink.
// level is one of debug, info, warn, error (default info); format is json or
// text (default json).
func Setup(service, level, format string) {
	slog.SetDefault(New(os.Stdout, service, level, format))
}

// New builds a logger writing to w.
func New(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// ParseLevel maps a config level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
