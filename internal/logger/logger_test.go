package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerRedactsSecrets(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "json", "info")

	log.Info("login", "email", "admin@example.com", "password", "hunter22", "refreshToken", "eyJ...")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "admin@example.com", record["email"])
	assert.Equal(t, redacted, record["password"])
	assert.Equal(t, redacted, record["refreshToken"])
}

func TestPrettyLoggerRedactsAndFilters(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "pretty", "warn")

	log.Info("hidden")
	log.With("authorization", "Bearer abc").Warn("rejected", "status", 401)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, "rejected")
	assert.Contains(t, out, "=401")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}
