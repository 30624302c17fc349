package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/patternguard/console/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgadmin.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "default config should be written on first load")

	assert.Equal(t, "http://localhost:8080", cfg.BaseURL())
	assert.Equal(t, 60*time.Second, cfg.Timeout())
	assert.Equal(t, models.DefaultPlatforms, cfg.Platforms())
	assert.Equal(t, filepath.Join(dir, "downloads"), cfg.Storage.DownloadDirectory)
	assert.Equal(t, filepath.Join(dir, "profile", "session.msgpack"), cfg.Session.ProfilePath)
}

func TestLoadConfig_ReadsFileAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgadmin.yaml")
	content := "server:\n  base_url: https://api.example.com/\nfiles:\n  platforms: [Chrome, opera]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL())
	assert.Equal(t, []models.Platform{"chrome", "opera"}, cfg.Platforms())
	assert.Equal(t, 300*time.Second, cfg.VersionCacheTTL(), "unset keys keep their defaults")
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgadmin.yaml")
	abs := filepath.Join(dir, "elsewhere")

	t.Setenv("PGADMIN_API_BASE_URL", "http://backend:9000")
	t.Setenv("PGADMIN_DOWNLOAD_DIR", abs)
	t.Setenv("PGADMIN_LOG_FILE", "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "http://backend:9000", cfg.BaseURL())
	assert.Equal(t, abs, cfg.Storage.DownloadDirectory)
	assert.Empty(t, cfg.Logging.File)
}

func TestLoadConfig_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pgadmin.yaml")
	require.NoError(t, os.WriteFile(path, []byte("files:\n  platforms: []\n"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("server: [unclosed"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)
}

func TestEnsureDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.resolvePaths(dir)

	require.NoError(t, cfg.EnsureDirectories())

	for _, d := range []string{
		filepath.Join(dir, "profile"),
		filepath.Join(dir, "downloads"),
		filepath.Join(dir, "logs"),
	} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
