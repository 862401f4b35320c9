package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	logger, err := NewLogger(true, []string{path}, []string{"stderr"})
	require.NoError(t, err)

	logger.Debug("debug line")
	logger.Info("info line")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"debug line"`)
	assert.Contains(t, string(raw), `"timestamp"`)
}

func TestNewLoggerInfoLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")

	logger, err := NewLogger(false, []string{path}, []string{"stderr"})
	require.NoError(t, err)

	logger.Debug("hidden")
	require.NoError(t, logger.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hidden")
}
