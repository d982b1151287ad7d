package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		level, ok := ParseLogLevel(name)
		require.True(t, ok, name)
		assert.Equal(t, want, level)
	}

	_, ok := ParseLogLevel("trace")
	assert.False(t, ok)
}

func TestValidLogFormat(t *testing.T) {
	assert.True(t, ValidLogFormat("text"))
	assert.True(t, ValidLogFormat("json"))
	assert.False(t, ValidLogFormat("yaml"))
}

func TestNewLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("warn", "json", &buf)

	logger.Info("dropped below the threshold")
	logger.Warn("kept", "k", "v")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "v", record["k"])
}

func TestNewLoggerUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger("chatty", "text", &buf)

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.Info("visible")
	assert.Contains(t, buf.String(), "visible")
}
