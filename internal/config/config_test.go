package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/tileworld/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate(), "настройки по умолчанию должны быть корректны")
	assert.Equal(t, 50051, cfg.Server.Port)
	assert.Equal(t, int32(2), cfg.World.RenderX)
	assert.Equal(t, 50, cfg.World.MaxCachedChunks)
	assert.Equal(t, 20*time.Second, cfg.Storage.AutosaveInterval)
	assert.Equal(t, int64(600000), cfg.Gameplay.DayLength)
}

func TestLoadFileOverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
server:
  port: 6000
world:
  name: island
  seed: 77
gameplay:
  player_health: 30
auth:
  operator_names: [Admin]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, "island", cfg.World.Name)
	assert.Equal(t, int64(77), cfg.World.Seed)
	assert.Equal(t, 30, cfg.Gameplay.PlayerHealth)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr, "незаданное поле сохраняет значение по умолчанию")
	assert.True(t, cfg.IsOperator("admin"))
	assert.False(t, cfg.IsOperator("guest"))
}

func TestLoadFileErrors(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [1, 2"), 0o644))
	_, err = config.Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("TILEWORLD_PORT", "7000")
	t.Setenv("TILEWORLD_SEED", "-12")
	t.Setenv("TILEWORLD_DEBUG", "true")
	t.Setenv("TILEWORLD_AUTOSAVE_INTERVAL", "5s")
	t.Setenv("TILEWORLD_OPERATORS", "alice, bob ,")
	t.Setenv("TILEWORLD_MAX_CACHED_CHUNKS", "not-a-number")

	cfg := config.Default()
	cfg.ApplyEnv()
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, int64(-12), cfg.World.Seed)
	assert.True(t, cfg.Server.Debug)
	assert.Equal(t, 5*time.Second, cfg.Storage.AutosaveInterval)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Auth.OperatorNames)
	assert.Equal(t, 50, cfg.World.MaxCachedChunks, "нечисловое значение игнорируется")
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.World.UnloadDistance = 1
	cfg.Gameplay.MinNightShade = 300
	cfg.Auth.JWTSecret = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "порт")
	assert.Contains(t, err.Error(), "выгрузки")
	assert.Contains(t, err.Error(), "освещенность")
	assert.Contains(t, err.Error(), "JWT")
}

func TestWorldConfig(t *testing.T) {
	cfg := config.Default()
	cfg.World.Name = "w"
	cfg.Server.Debug = true
	cfg.Gameplay.SmeltTime = 1500
	cfg.Storage.AutosaveInterval = 3 * time.Second

	wc := cfg.WorldConfig(99)
	assert.Equal(t, "w", wc.Name)
	assert.Equal(t, int64(99), wc.Seed)
	assert.True(t, wc.Chunks.Debug)
	assert.Equal(t, 1500*time.Millisecond, wc.SmeltTime)
	assert.Equal(t, int64(3000), wc.Clock.SaveDelay)
	assert.Equal(t, cfg.Gameplay.Reach, wc.Reach)
}
