package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ccdeck/ccdeck/internal/core/remote"
	"github.com/ccdeck/ccdeck/internal/core/watch"
)

// Config carries every tunable the sync engine takes at construction.
type Config struct {
	TranscriptRoot string
	RemoteURL      string
	IndexPath      string
	Stabilize      time.Duration
	Debounce       time.Duration
	SessionTTL     time.Duration
	MessageTTL     time.Duration
}

// tomlConfig is the on-disk shape; durations are strings like "500ms".
type tomlConfig struct {
	TranscriptRoot string `toml:"transcript_root"`
	RemoteURL      string `toml:"remote_url"`
	IndexPath      string `toml:"index_path"`
	Stabilize      string `toml:"stabilize"`
	Debounce       string `toml:"debounce"`
	SessionTTL     string `toml:"session_ttl"`
	MessageTTL     string `toml:"message_ttl"`
}

// Load reads ~/.config/ccdeck/config.toml, falling back to defaults for
// anything missing. A missing or unreadable config file is not an error.
func Load() (*Config, error) {
	cfg := defaults()

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, nil
	}

	path := filepath.Join(home, ".config", "ccdeck", "config.toml")
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	return loadFile(cfg, path)
}

// LoadFile reads an explicit config path, still defaulting missing fields.
func LoadFile(path string) (*Config, error) {
	return loadFile(defaults(), path)
}

func defaults() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		TranscriptRoot: filepath.Join(home, ".claude", "projects"),
		IndexPath:      filepath.Join(home, ".config", "ccdeck", "index.db"),
		Stabilize:      watch.DefaultStabilize,
		Debounce:       watch.DefaultDebounce,
		SessionTTL:     remote.DefaultSessionTTL,
		MessageTTL:     remote.DefaultMessageTTL,
	}
}

func loadFile(cfg *Config, path string) (*Config, error) {
	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	if tc.TranscriptRoot != "" {
		cfg.TranscriptRoot = tc.TranscriptRoot
	}
	if tc.RemoteURL != "" {
		cfg.RemoteURL = tc.RemoteURL
	}
	if tc.IndexPath != "" {
		cfg.IndexPath = tc.IndexPath
	}

	for _, d := range []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{tc.Stabilize, "stabilize", &cfg.Stabilize},
		{tc.Debounce, "debounce", &cfg.Debounce},
		{tc.SessionTTL, "session_ttl", &cfg.SessionTTL},
		{tc.MessageTTL, "message_ttl", &cfg.MessageTTL},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return nil, fmt.Errorf("config %s: invalid duration %q: %w", d.name, d.raw, err)
		}
		*d.dst = parsed
	}

	return cfg, nil
}
