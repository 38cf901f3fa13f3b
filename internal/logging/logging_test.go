// ABOUTME: Tests for logger construction
// ABOUTME: Verifies console levels and JSON file output
package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleRespectsDebugFlag(t *testing.T) {
	var quiet, verbose bytes.Buffer

	logger, c := New(Config{Console: &quiet})
	logger.Info("cycle complete", "participants", 3)
	logger.V(1).Info("no participants to synchronize")
	require.NoError(t, c.Close())

	assert.Contains(t, quiet.String(), "cycle complete")
	assert.NotContains(t, quiet.String(), "no participants to synchronize")

	logger, c = New(Config{Console: &verbose, Debug: true})
	logger.V(1).Info("no participants to synchronize")
	require.NoError(t, c.Close())

	assert.Contains(t, verbose.String(), "no participants to synchronize")
}

func TestFileGetsJSONWithDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "berkeley.log")

	logger, c := New(Config{File: path, MaxSizeMB: 1})
	logger.V(1).Info("session started", "participant", "127.0.0.1:5000")
	require.NoError(t, c.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "session started", entry["M"])
	assert.Equal(t, "127.0.0.1:5000", entry["participant"])
}

func TestNoOutputsDiscards(t *testing.T) {
	logger, c := New(Config{})
	logger.Info("dropped")
	assert.NoError(t, c.Close())
	assert.False(t, logger.Enabled())
}
