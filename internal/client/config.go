package client

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultBaseURL is written to a fresh config file.
const DefaultBaseURL = "https://localhost"

// Config is the on-disk CLI configuration.
type Config struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token,omitempty"`
}

// DefaultConfigPath returns $CAIROS_CONFIG, or cairos/config.toml under the
// user config directory ($XDG_CONFIG_HOME on Linux).
func DefaultConfigPath() (string, error) {
	if p := os.Getenv("CAIROS_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "cairos", "config.toml"), nil
}

// LoadConfig reads the config file at path, creating it with defaults if it
// does not exist yet.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := &Config{BaseURL: DefaultBaseURL}
		if err := SaveConfig(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return &cfg, nil
}

// SaveConfig writes cfg to path. The file is written next to its final
// location and renamed into place, so readers never see a partial token.
func SaveConfig(path string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp config: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

// ResetConfig points the config at baseURL and drops any saved token, since
// a token minted by one server must never be sent to another.
func ResetConfig(path, baseURL string) (*Config, error) {
	normalized := NormalizeBaseURL(baseURL)
	if normalized == "" {
		return nil, fmt.Errorf("base url must not be empty")
	}
	cfg := &Config{BaseURL: normalized}
	if err := SaveConfig(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NormalizeBaseURL strips trailing slashes.
func NormalizeBaseURL(v string) string {
	return strings.TrimRight(strings.TrimSpace(v), "/")
}
