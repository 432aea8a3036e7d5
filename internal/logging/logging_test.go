package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/config"
	"github.com/annelo/tileworld/internal/logging"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	cfg := config.LoggingConfig{Level: "debug", LogToFile: true, FilePath: path}

	logger, err := logging.New(cfg)
	require.NoError(t, err)
	logger.Infow("Мир загружен", "world", "test")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Мир загружен")
	assert.Contains(t, string(data), `"world":"test"`)
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := logging.New(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRotatingWriterDefaults(t *testing.T) {
	w := logging.NewRotatingWriter(config.LoggingConfig{FilePath: "x.log"})
	assert.Equal(t, 10, w.MaxSize)
	assert.Equal(t, 3, w.MaxBackups)
}
