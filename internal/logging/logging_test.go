package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"error":   slog.LevelError,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"info":    slog.LevelInfo,
		"":        slog.LevelDebug,
		"verbose": slog.LevelDebug,
	}
	for in, want := range cases {
		assert.Equal(t, want, LevelFromString(in), "input %q", in)
	}
}

func TestNewWriterFormats(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewWriter(&buf, "info", "json").Info("ingested", "correlation_id", "run:L2:T1::00001")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "run:L2:T1::00001", line["correlation_id"])

	buf.Reset()
	logger := NewWriter(&buf, "warn", "text")
	logger.Info("dropped")
	assert.Empty(t, buf.String())
	logger.Warn("kept", "component", "bulk")
	assert.Contains(t, buf.String(), "component=bulk")
}
