package logger

import (
	"log/slog"
	"os"
	"strings"
)

// level is shared by every handler built through New so that a config reload
// can change verbosity for the whole process at once.
var level = new(slog.LevelVar)

// New creates a slog.Logger writing to stderr.
// format is "json" or "text" (default text); lvl is debug|info|warn|error.
func New(lvl, format string) *slog.Logger {
	level.Set(ParseLevel(lvl))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// SetLevel changes the level of all loggers created by New.
func SetLevel(lvl string) {
	level.Set(ParseLevel(lvl))
}

// ParseLevel converts a level name to a slog.Level, defaulting to Info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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
