// Package config loads the application configuration from TOML files.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the application configuration.
type Config struct {
	// Catalog API
	APIBaseURL   string `koanf:"api_base_url"`
	SessionToken string `koanf:"session_token"`

	// Local data; empty means the XDG default locations.
	DataDir  string `koanf:"data_dir"`
	CacheDir string `koanf:"cache_dir"`

	LogLevel string `koanf:"log_level"`

	Playback PlaybackConfig `koanf:"playback"`
	Download DownloadConfig `koanf:"download"`
}

// PlaybackConfig tunes the playback engine.
type PlaybackConfig struct {
	MinRate float64 `koanf:"min_rate"` // default 0.5
	MaxRate float64 `koanf:"max_rate"` // default 3.0
	// Retry selects the source for the single transient retry:
	// "same" (default) or "reresolve".
	Retry string `koanf:"retry"`
}

// DownloadConfig tunes the download manager.
type DownloadConfig struct {
	Concurrency int `koanf:"concurrency"` // default 3
}

const defaultAPIBaseURL = "https://api.audioverse.org"

// Load reads configuration from the known locations, later files winning.
func Load() (*Config, error) {
	k := koanf.New(".")

	for _, path := range configPaths() {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimSuffix(cfg.APIBaseURL, "/")

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.Playback.MinRate <= 0 {
		cfg.Playback.MinRate = 0.5
	}
	if cfg.Playback.MaxRate <= 0 {
		cfg.Playback.MaxRate = 3.0
	}
	if cfg.Playback.Retry != "same" && cfg.Playback.Retry != "reresolve" {
		cfg.Playback.Retry = "same"
	}

	if cfg.Download.Concurrency <= 0 {
		cfg.Download.Concurrency = 3
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.CacheDir = expandPath(cfg.CacheDir)
}

func configPaths() []string {
	paths := []string{}

	// 1. ~/.config/versecast/config.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "versecast", "config.toml"))
	}

	// 2. ./config.toml (pwd, highest priority)
	paths = append(paths, "config.toml")

	return paths
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
