package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), "level %q", input)
	}
}

func TestNewRespectsLevel(t *testing.T) {
	ctx := context.Background()

	debug := New("debug")
	assert.True(t, debug.Enabled(ctx, slog.LevelDebug))

	errOnly := New("error")
	assert.False(t, errOnly.Enabled(ctx, slog.LevelWarn))
	assert.True(t, errOnly.Enabled(ctx, slog.LevelError))
}

func TestDefaultIsInfoAndFresh(t *testing.T) {
	ctx := context.Background()
	logger := Default()
	require.NotNil(t, logger.Logger)
	assert.True(t, logger.Enabled(ctx, slog.LevelInfo))
	assert.False(t, logger.Enabled(ctx, slog.LevelDebug))
	assert.NotSame(t, logger, Default())
}

func TestTextFormatCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOptions(Options{Level: "info", Format: "console", Output: &buf})

	logger.Component("rules").Info("loaded", "count", 2)

	assert.Contains(t, buf.String(), "component=rules")
	assert.Contains(t, buf.String(), "count=2")
}

func TestJSONRecordShape(t *testing.T) {
	var buf bytes.Buffer
	NewWithOptions(Options{Output: &buf}).Component("router").Warn("careful", "session", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "careful", rec["msg"])
	assert.Equal(t, "router", rec["component"])
	assert.Equal(t, "abc", rec["session"])
}

func TestComponentOnNilLogger(t *testing.T) {
	var l *Logger
	assert.NotNil(t, l.Component("x"))
}
