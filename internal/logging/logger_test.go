package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{LevelTrace, "TRACE"},
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"trace", LevelTrace},
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warning", LevelWarn},
		{"WARN", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, ParseLevel(tt.input), "input %q", tt.input)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelWarn, Output: &buf})

	l.Info("hidden %d", 1)
	assert.Empty(t, buf.String())

	l.Warn("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")
	assert.Contains(t, buf.String(), "level=WARN")
}

func TestLogger_TraceLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelTrace, Output: &buf})

	l.Trace("per-event")
	assert.Contains(t, buf.String(), "level=TRACE")
	assert.Contains(t, buf.String(), "per-event")
}

func TestLogger_WithComponentSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Level: LevelInfo, Output: &buf, Prefix: "test"})
	child := root.WithComponent("queue")

	child.Debug("before")
	assert.Empty(t, buf.String())

	root.SetLevel(LevelDebug)
	child.Debug("after")
	out := buf.String()
	assert.Contains(t, out, "after")
	assert.Contains(t, out, "component=queue")
	assert.Contains(t, out, "app=test")
}

func TestLogger_DisableEnable(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelDebug, Output: &buf})

	l.Disable()
	l.Error("dropped")
	require.Empty(t, buf.String())

	l.Enable()
	l.Error("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestNop(t *testing.T) {
	l := Nop()
	assert.False(t, l.Enabled(LevelError))
	l.Error("nothing %s", "here")

	var nilLogger *Logger
	nilLogger.Info("nil receiver is a no-op")
}
