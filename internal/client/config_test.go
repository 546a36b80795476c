package client

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cairos", "config.toml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, cfg.BaseURL)
	require.Empty(t, cfg.Token)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "base_url")
	require.Contains(t, string(data), "https://localhost")
	require.NotContains(t, string(data), "token")
}

func TestSaveConfigRoundTripAndPermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	require.NoError(t, SaveConfig(path, &Config{BaseURL: "https://cairos.example", Token: "abc123"}))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://cairos.example", cfg.BaseURL)
	require.Equal(t, "abc123", cfg.Token)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestResetConfigDropsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveConfig(path, &Config{BaseURL: "https://old.example", Token: "minted-by-old"}))

	cfg, err := ResetConfig(path, "https://new.example/")
	require.NoError(t, err)
	require.Equal(t, "https://new.example", cfg.BaseURL)
	require.Empty(t, cfg.Token)

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://new.example", loaded.BaseURL)
	require.Empty(t, loaded.Token)

	_, err = ResetConfig(path, "  ")
	require.Error(t, err)
	loaded, err = LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://new.example", loaded.BaseURL)
}

func TestLoadConfigNormalizesBaseURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("base_url = \"https://cairos.example//\"\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://cairos.example", cfg.BaseURL)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("base_url = [unterminated"), 0o600))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("CAIROS_CONFIG", "/tmp/custom.toml")
	p, err := DefaultConfigPath()
	require.NoError(t, err)
	require.Equal(t, "/tmp/custom.toml", p)

	t.Setenv("CAIROS_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	p, err = DefaultConfigPath()
	require.NoError(t, err)
	require.Equal(t, filepath.Join("/tmp/xdg", "cairos", "config.toml"), p)
}
