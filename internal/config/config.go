// Package config handles reading and writing .tether/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level structure for .tether/config.yaml.
type Config struct {
	Version  int            `yaml:"version"`
	Endpoint string         `yaml:"endpoint"`
	Git      GitConfig      `yaml:"git"`
	Retain   RetainConfig   `yaml:"retain"`
	Download DownloadConfig `yaml:"download"`
}

// GitConfig holds defaults for git actions issued to the remote host. The
// access token is supplied interactively, never stored here.
type GitConfig struct {
	RemoteURL string `yaml:"remote_url"`
	RepoName  string `yaml:"repo_name"`
}

// RetainConfig controls local cleanup of downloaded artifacts.
type RetainConfig struct {
	ArtifactDays int `yaml:"artifact_days"`
}

// DownloadConfig controls where fetched build artifacts are staged.
type DownloadConfig struct {
	Dir string `yaml:"dir"`
}

const configDir = ".tether"
const configFile = "config.yaml"

// Dir returns the data directory under base (the user's home or a test
// root): config, log, database, and downloads all live in it.
func Dir(base string) string {
	return filepath.Join(base, configDir)
}

// ReadConfig reads .tether/config.yaml from the given base directory.
// Returns an error if the file is not found or YAML is malformed.
func ReadConfig(base string) (*Config, error) {
	path := filepath.Join(base, configDir, configFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

// WriteConfig writes cfg to .tether/config.yaml in the given base
// directory. Creates the .tether/ directory if it does not exist.
func WriteConfig(base string, cfg *Config) error {
	dirPath := filepath.Join(base, configDir)
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	path := filepath.Join(dirPath, configFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// DownloadDir resolves the artifact staging directory, defaulting to
// .tether/downloads under base.
func (c *Config) DownloadDir(base string) string {
	if c.Download.Dir != "" {
		return c.Download.Dir
	}
	return filepath.Join(base, configDir, "downloads")
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		Endpoint: "http://localhost:8080",
		Retain: RetainConfig{
			ArtifactDays: 7,
		},
	}
}
