package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_JSONRedactsSensitiveAttributes(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "info", FormatJSON)

	Info("user created", "user", "app", "db_password", "hunter2")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "user created", entry["msg"])
	assert.Equal(t, "app", entry["user"])
	assert.Equal(t, redacted, entry["db_password"])
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestInit_Level(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "warn", FormatText)

	Info("hidden")
	Warn("shown", "encryption_key", "k3y")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "k3y")
}

func TestInit_Color(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "debug", FormatColor)

	Debug("probe", "secret_value", "s3cr3t")
	assert.Contains(t, buf.String(), "probe")
	assert.NotContains(t, buf.String(), "s3cr3t")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}
