package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, zapcore.InfoLevel, level)

	level, err = ParseLevel(" DEBUG ")
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, level)

	_, err = ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "farecast.log")
	logger, level, err := New(Config{Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	level.SetLevel(zapcore.InfoLevel)
	logger.Info("now visible")
	_ = logger.Sync()

	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(payload)
	assert.NotContains(t, content, "hidden")
	assert.Contains(t, content, "shown")
	assert.Contains(t, content, "now visible")
	assert.Equal(t, 2, strings.Count(content, "\n"))
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, _, err := New(Config{Level: "verbose"})
	assert.Error(t, err)
}
