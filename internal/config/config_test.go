package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigYAMLRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Endpoint = "https://dev-host.example:9000"
	cfg.Git.RemoteURL = "https://github.com/me/app.git"

	if err := WriteConfig(tmpDir, cfg); err != nil {
		t.Fatalf("WriteConfig failed: %v", err)
	}

	loaded, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed: %v", err)
	}

	if loaded.Endpoint != "https://dev-host.example:9000" {
		t.Errorf("Endpoint: got %q, want %q", loaded.Endpoint, "https://dev-host.example:9000")
	}
	if loaded.Git.RemoteURL != "https://github.com/me/app.git" {
		t.Errorf("Git.RemoteURL: got %q, want %q", loaded.Git.RemoteURL, "https://github.com/me/app.git")
	}
	if loaded.Retain.ArtifactDays != 7 {
		t.Errorf("Retain.ArtifactDays: got %d, want 7", loaded.Retain.ArtifactDays)
	}
}

func TestReadConfigMissingFile(t *testing.T) {
	if _, err := ReadConfig(t.TempDir()); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestDownloadDirDefault(t *testing.T) {
	cfg := DefaultConfig()
	want := filepath.Join("/home/x", ".tether", "downloads")
	if got := cfg.DownloadDir("/home/x"); got != want {
		t.Errorf("DownloadDir: got %q, want %q", got, want)
	}

	cfg.Download.Dir = "/mnt/apks"
	if got := cfg.DownloadDir("/home/x"); got != "/mnt/apks" {
		t.Errorf("DownloadDir override: got %q, want /mnt/apks", got)
	}
}

func TestBackwardCompatibility(t *testing.T) {
	// Simulate an old config file without newer fields.
	tmpDir := t.TempDir()
	oldConfig := `version: 1
endpoint: http://10.0.0.5:8080
`
	configPath := filepath.Join(tmpDir, ".tether")
	if err := os.MkdirAll(configPath, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configPath, "config.yaml"), []byte(oldConfig), 0644); err != nil {
		t.Fatalf("failed to write old config: %v", err)
	}

	cfg, err := ReadConfig(tmpDir)
	if err != nil {
		t.Fatalf("ReadConfig failed on old config: %v", err)
	}
	if cfg.Endpoint != "http://10.0.0.5:8080" {
		t.Errorf("Endpoint: got %q, want preserved value", cfg.Endpoint)
	}
	if cfg.Retain.ArtifactDays != 0 {
		t.Errorf("Retain.ArtifactDays: got %d, want zero for old config", cfg.Retain.ArtifactDays)
	}
}
