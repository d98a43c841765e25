package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, DEBUG, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, INFO, lvl)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestWriterLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("test", &buf, WARN)

	logger.Info("не должно попасть")
	logger.Warn("чанк %d", 42)

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [test] чанк 42")
}

func TestNewLogger_WritesFile(t *testing.T) {
	dir := t.TempDir()
	prev := currentOptions()
	defer Configure(prev)

	Configure(Options{Dir: dir, ToFile: true, ConsoleLevel: ERROR, FileLevel: DEBUG})
	logger, err := NewLogger("world")
	require.NoError(t, err)

	logger.Debug("flush %s", "ok")
	require.NoError(t, logger.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "world_"))

	data, err := os.ReadFile(dir + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Contains(t, string(data), "flush ok")
}
