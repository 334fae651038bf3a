package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

const (
	// ConfigDir is the default config directory name.
	ConfigDir = ".sidekick"
	// ConfigFile is the default config file name.
	ConfigFile = "config.json"
)

// ConfigPath returns the path to the config file.
func ConfigPath() (string, error) {
	if explicit := strings.TrimSpace(os.Getenv("SIDEKICK_CONFIG")); explicit != "" {
		if strings.HasPrefix(explicit, "~") {
			home, err := resolveHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(home, explicit[1:]), nil
		}
		return explicit, nil
	}
	home, err := resolveHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDir, ConfigFile), nil
}

func resolveHomeDir() (string, error) {
	if h := strings.TrimSpace(os.Getenv("SIDEKICK_HOME")); h != "" {
		if strings.HasPrefix(h, "~") {
			base, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			return filepath.Join(base, h[1:]), nil
		}
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home, nil
}

// Load reads the config file, applies environment overrides, and fills in
// path defaults relative to the data directory. A missing file is not an
// error: defaults plus environment apply.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom loads configuration from an explicit file path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// Fine: env + defaults only.
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := envconfig.Process("sidekick", cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	applyPathDefaults(cfg)
	return cfg, nil
}

// applyPathDefaults derives unset file locations from the data directory.
func applyPathDefaults(cfg *Config) {
	if cfg.Paths.DataDir == "" {
		home, err := resolveHomeDir()
		if err != nil {
			home = "."
		}
		cfg.Paths.DataDir = filepath.Join(home, ConfigDir)
	}
	if cfg.Paths.Database == "" {
		cfg.Paths.Database = filepath.Join(cfg.Paths.DataDir, "sidekick.db")
	}
	if cfg.Paths.MemoryLog == "" {
		cfg.Paths.MemoryLog = filepath.Join(cfg.Paths.DataDir, "memory.jsonl")
	}
	if cfg.Paths.DigestLog == "" {
		cfg.Paths.DigestLog = filepath.Join(cfg.Paths.DataDir, "digest.jsonl")
	}
	if cfg.Paths.PolicyFile == "" {
		cfg.Paths.PolicyFile = filepath.Join(cfg.Paths.DataDir, "policy.json")
	}
}

// EnsureDataDir creates the data directory if it does not exist.
func EnsureDataDir(cfg *Config) error {
	if cfg.Paths.DataDir == "" {
		return nil
	}
	return os.MkdirAll(cfg.Paths.DataDir, 0o755)
}
