package app

import (
	"io"
	"log/slog"
)

// logLevels maps the accepted -log-level names onto slog levels. The CLI
// validates against the same table, so the flag help and the logger cannot
// drift apart.
var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// ParseLogLevel resolves a level name; ok is false for unknown names.
func ParseLogLevel(name string) (level slog.Level, ok bool) {
	level, ok = logLevels[name]
	return level, ok
}

// ValidLogFormat reports whether name is an accepted -log-format value.
func ValidLogFormat(name string) bool {
	return name == "text" || name == "json"
}

// newLogger builds the run's logger. It never touches the global logger, so
// every App carries an isolated instance; unknown level names fall back to
// info.
func newLogger(levelName, format string, outW io.Writer) *slog.Logger {
	level, ok := ParseLogLevel(levelName)
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(outW, opts))
	}
	return slog.New(slog.NewTextHandler(outW, opts))
}
