package monitoring

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &record))
		records = append(records, record)
	}
	return records
}

func TestStructuredLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggerConfig{
		Level:     LevelInfo,
		Format:    FormatJSON,
		Output:    &buf,
		Component: "keycache",
	})

	logger.Info("loaded %d keys", 3)

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "loaded 3 keys", records[0]["msg"])
	assert.Equal(t, "INFO", records[0]["level"])
	assert.Equal(t, "keycache", records[0]["component"])
	assert.Equal(t, "keyring_vault", records[0]["service"])
}

func TestStructuredLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggerConfig{Level: LevelWarn, Output: &buf})

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")
	logger.Error("shown %s", "too")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "shown", records[0]["msg"])
	assert.Equal(t, "shown too", records[1]["msg"])
	assert.Contains(t, records[1], "caller")
}

func TestStructuredLogger_MessageWithoutArgsIsLiteral(t *testing.T) {
	var buf bytes.Buffer
	logger := NewStructuredLogger(LoggerConfig{Level: LevelInfo, Output: &buf})

	logger.Info("100% done")

	records := decodeLines(t, &buf)
	require.Len(t, records, 1)
	assert.Equal(t, "100% done", records[0]["msg"])
}

func TestStructuredLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	base := NewStructuredLogger(LoggerConfig{Level: LevelInfo, Output: &buf, Component: "store"})
	child := base.WithFields(map[string]any{"mount": "secret"}).WithComponent("mount")

	child.Info("resolved")
	base.Info("untouched")

	records := decodeLines(t, &buf)
	require.Len(t, records, 2)
	assert.Equal(t, "secret", records[0]["mount"])
	assert.Equal(t, "mount", records[0]["component"])
	assert.NotContains(t, records[1], "mount")
	assert.Equal(t, "store", records[1]["component"])
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLogLevel(""))
	assert.Equal(t, LevelInfo, ParseLogLevel("verbose"))
}

func TestNewProductionLogger_ReadsEnvironment(t *testing.T) {
	t.Setenv("KEYRING_VAULT_LOG_LEVEL", "error")
	t.Setenv("KEYRING_VAULT_LOG_FORMAT", "text")

	logger := NewProductionLogger("cli")
	assert.Equal(t, LevelError, logger.level)
	assert.Equal(t, "cli", logger.component)
}

func TestNopLogger(t *testing.T) {
	var logger Logger = NopLogger{}
	logger.Debug("x")
	logger.Info("x %d", 1)
	logger.Warn("x")
	logger.Error("x")
}
