package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")
	t.Setenv("VOXEL_PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 15556, cfg.Server.Port)
	assert.Equal(t, ModeMultiplayer, cfg.Server.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.Ticks.PhysicsBroadcast)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Setenv("VOXEL_PORT", "")
	path := filepath.Join(t.TempDir(), "server.yaml")
	data := `
server:
  port: 20000
  mode: singleplayer
  max_players: 2
storage:
  game: testgame
ticks:
  cleanup: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20000, cfg.Server.Port)
	assert.Equal(t, ModeSingleplayer, cfg.Server.Mode)
	assert.Equal(t, 2, cfg.Server.MaxPlayers)
	assert.Equal(t, 5*time.Second, cfg.Ticks.Cleanup)
	// Незаданные поля остаются по умолчанию
	assert.Equal(t, 450*time.Millisecond, cfg.Ticks.DirtyBroadcast)
	assert.Equal(t, filepath.Join(cfg.Storage.DataDir, "games", "testgame"), cfg.GameDir())
}

func TestLoad_EnvPortWins(t *testing.T) {
	t.Setenv("VOXEL_PORT", "30000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30000, cfg.Server.Port)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Server.Mode = "coop"
	cfg.World.CacheChunks = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "порт")
	assert.Contains(t, err.Error(), "coop")
	assert.Contains(t, err.Error(), "cache_chunks")
}
