package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWriterJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(Config{Level: "warn", Format: "json"}, &buf)

	log.Info("dropped")
	log.Warn("tariff source failed", zap.String("source", "postgres"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "postgres", entry["source"])
	assert.Contains(t, entry, "timestamp")
}

func TestUnknownLevelIsInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(Config{Level: "chatty", Format: "console"}, &buf)
	log.Debug("hidden")
	log.Info("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	log, err := New(Config{Level: "info", Output: path})
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Sync())
	assert.FileExists(t, path)
}
