package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	t.Run("Should reject an invalid level", func(t *testing.T) {
		err := Init("loud", "json", "stdout")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("Should write JSON lines to the configured file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		require.NoError(t, Init("info", "json", path))

		Info("logger smoke test", zap.String("component", "logger"))
		Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"message":"logger smoke test"`)
		assert.Contains(t, string(data), `"level":"info"`)
		assert.Contains(t, string(data), `"component":"logger"`)
	})

	t.Run("Should drop entries below the configured level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "app.log")
		require.NoError(t, Init("warn", "json", path))

		Info("too quiet to land")
		Warn("loud enough")
		Sync()

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "too quiet to land")
		assert.Contains(t, string(data), "loud enough")
	})

	t.Run("Should expose the shared logger", func(t *testing.T) {
		require.NoError(t, Init("debug", "console", "stdout"))
		assert.NotNil(t, GetLogger())
	})
}
