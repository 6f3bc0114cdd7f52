package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-logr/logr"
)

// newLogger returns a logr.Logger backed by slog writing to w.
func newLogger(w io.Writer, level, format string) (logr.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		handler = slog.NewTextHandler(w, opts)
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		return logr.Discard(), fmt.Errorf("unknown log format %q: must be \"text\" or \"json\"", format)
	}
	return logr.FromSlogHandler(handler), nil
}

func parseLevel(s string) slog.Level {
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
