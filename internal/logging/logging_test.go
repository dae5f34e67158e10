package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFileLogger(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logs", "service.log")

	logger, closeLog, err := NewFileLogger(path, "capture", slog.LevelInfo)
	require.NoError(t, err)

	logger.Info("Snapshot stored", "webcam", "alpine-visitor-center")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"capture"`)
	assert.Contains(t, string(data), "Snapshot stored")
}

func TestNewFileLoggerHonorsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "service.log")

	logger, closeLog, err := NewFileLogger(path, "runner", slog.LevelInfo)
	require.NoError(t, err)

	logger.Debug("below threshold")
	logger.Warn("above threshold")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "below threshold")
	assert.Contains(t, string(data), "above threshold")
}
