package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(" INFO "))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("bogus"))
}

func TestWithSessionFields(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "debug")
	t.Cleanup(func() { SetupWriter(&bytes.Buffer{}, "warn") })

	WithSession("alice", "http://az:8081").Info("refreshed")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "session", rec["component"])
	assert.Equal(t, "alice", rec["user"])
	assert.Equal(t, "http://az:8081", rec["url"])
	assert.Equal(t, "refreshed", rec["msg"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetupWriter(&buf, "warn")
	t.Cleanup(func() { SetupWriter(&bytes.Buffer{}, "warn") })

	Info("hidden")
	Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
