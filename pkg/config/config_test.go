package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.ChunkSize(); got != DefaultChunkSize {
		t.Fatalf("cfg.ChunkSize() = %d, want %d", got, DefaultChunkSize)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".chatforge")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	content := "" +
		"server:\n" +
		"  host: 0.0.0.0\n" +
		"  port: 9090\n" +
		"storage:\n" +
		"  data_dir: /var/lib/chatforge\n" +
		"embedding:\n" +
		"  provider: ollama\n" +
		"processing:\n" +
		"  chunk_size: 200\n" +
		"  chunk_overlap: 20\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Host(); got != "0.0.0.0" {
		t.Fatalf("cfg.Host() = %q, want %q", got, "0.0.0.0")
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
	if got, want := cfg.UploadDir(), filepath.Join("/var/lib/chatforge", "uploads"); got != want {
		t.Fatalf("cfg.UploadDir() = %q, want %q", got, want)
	}
	if got := cfg.EmbeddingModel(); got != "nomic-embed-text" {
		t.Fatalf("cfg.EmbeddingModel() = %q, want ollama default", got)
	}
	if got := cfg.EmbeddingBaseURL(); got != "http://localhost:11434" {
		t.Fatalf("cfg.EmbeddingBaseURL() = %q", got)
	}
	if got := cfg.ChunkSize(); got != 200 {
		t.Fatalf("cfg.ChunkSize() = %d, want 200", got)
	}
	if got := cfg.ChunkOverlap(); got != 20 {
		t.Fatalf("cfg.ChunkOverlap() = %d, want 20", got)
	}
}

func TestLoad_RejectsOverlapNotSmallerThanSize(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	configDir := filepath.Join(home, ".chatforge")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	configPath := filepath.Join(configDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("processing:\n  chunk_size: 50\n  chunk_overlap: 50\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for overlap >= size")
	}
}
