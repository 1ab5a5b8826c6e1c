// ABOUTME: Tests for engine configuration management and credential handling
// ABOUTME: Covers XDG path handling, config persistence, env overrides, and device ID generation
package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/adrg/xdg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPath(t *testing.T) {
	path := ConfigPath()

	expectedBase := filepath.Join(xdg.DataHome, "relay")
	assert.True(t, strings.HasPrefix(path, expectedBase), "path should be under XDG data home")
	assert.Equal(t, "config.json", filepath.Base(path))
}

func TestLoadConfig_NotFound(t *testing.T) {
	origHome := xdg.DataHome
	xdg.DataHome = t.TempDir()
	defer func() { xdg.DataHome = origHome }()

	cfg, err := LoadConfig()
	require.NoError(t, err, "LoadConfig should not error when file not found")
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.Server)
	assert.Empty(t, cfg.Token)
	assert.False(t, cfg.IsConfigured())
}

func TestSaveAndLoadConfig(t *testing.T) {
	origHome := xdg.DataHome
	xdg.DataHome = t.TempDir()
	defer func() { xdg.DataHome = origHome }()

	original := &Config{
		Server:       "https://relay.example.com",
		UserID:       "user123",
		Token:        "token456",
		RefreshToken: "refresh789",
		DeviceID:     "device001",
		MaxPending:   500,
	}

	err := SaveConfig(original)
	require.NoError(t, err, "SaveConfig should succeed")

	info, err := os.Stat(ConfigPath())
	require.NoError(t, err, "config file should exist")
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "config file should have 0600 permissions")

	loaded, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.Server, loaded.Server)
	assert.Equal(t, original.UserID, loaded.UserID)
	assert.Equal(t, original.Token, loaded.Token)
	assert.Equal(t, original.RefreshToken, loaded.RefreshToken)
	assert.Equal(t, original.DeviceID, loaded.DeviceID)
	assert.Equal(t, original.MaxPending, loaded.MaxPending)
	assert.True(t, loaded.IsConfigured())
}

func TestEnvOverrides(t *testing.T) {
	origHome := xdg.DataHome
	xdg.DataHome = t.TempDir()
	defer func() { xdg.DataHome = origHome }()

	require.NoError(t, SaveConfig(&Config{Server: "https://file.example.com", Token: "file-token"}))

	t.Setenv("RELAY_SERVER", "https://env.example.com")
	t.Setenv("RELAY_MAX_PENDING", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.Server, "env should override file value")
	assert.Equal(t, "file-token", cfg.Token, "unset env leaves file value")
	assert.Equal(t, 250, cfg.MaxPending)
}

func TestGenerateDeviceID(t *testing.T) {
	a := GenerateDeviceID()
	b := GenerateDeviceID()

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b, "device IDs should be unique")
}

func TestTuningDefaults(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, DefaultParallelism, cfg.parallelism())
	assert.Equal(t, DefaultBackoffBase, cfg.backoffBase())
	assert.Equal(t, DefaultBackoffCap, cfg.backoffCap())
	assert.Equal(t, DefaultDegradedThreshold, cfg.degradedThreshold())
}
