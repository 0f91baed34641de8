package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.chatforge/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// storage:
//   data_dir: ~/.chatforge/data
// embedding:
//   provider: openai
//   model: text-embedding-3-small
// processing:
//   chunk_size: 300
//   chunk_overlap: 50
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Processing ProcessingConfig `yaml:"processing"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

// StorageConfig controls where the database, uploaded files, and the
// vector store live. All paths default to subdirectories of DataDir.
type StorageConfig struct {
	DataDir   *string `yaml:"data_dir"`
	UploadDir *string `yaml:"upload_dir"`
	VectorDir *string `yaml:"vector_dir"`
}

// EmbeddingConfig selects the embedding backend used for semantic search.
// Provider is "openai" or "ollama"; empty disables embedding generation.
type EmbeddingConfig struct {
	Provider *string `yaml:"provider"`
	Model    *string `yaml:"model"`
	APIKey   *string `yaml:"api_key"`
	BaseURL  *string `yaml:"base_url"`
}

// ProcessingConfig controls document chunking (sizes are in words).
type ProcessingConfig struct {
	ChunkSize    *int `yaml:"chunk_size"`
	ChunkOverlap *int `yaml:"chunk_overlap"`
}

const (
	DefaultHost         = "127.0.0.1"
	DefaultPort         = 8090
	DefaultChunkSize    = 300
	DefaultChunkOverlap = 50

	defaultOpenAIModel = "text-embedding-3-small"
	defaultOllamaModel = "nomic-embed-text"
	defaultOllamaURL   = "http://localhost:11434"
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".chatforge")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.chatforge/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if cfg.ChunkOverlap() >= cfg.ChunkSize() {
		return nil, "", fmt.Errorf("processing.chunk_overlap %d must be smaller than processing.chunk_size %d in %s",
			cfg.ChunkOverlap(), cfg.ChunkSize(), configFile)
	}

	return cfg, configFile, nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{Server: ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)}}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DataDir returns the base data directory (default ~/.chatforge/data).
func (c *AppConfig) DataDir() string {
	if c != nil && c.Storage.DataDir != nil && strings.TrimSpace(*c.Storage.DataDir) != "" {
		return *c.Storage.DataDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".chatforge", "data")
}

// UploadDir returns the directory uploaded document files are stored in.
func (c *AppConfig) UploadDir() string {
	if c != nil && c.Storage.UploadDir != nil && strings.TrimSpace(*c.Storage.UploadDir) != "" {
		return *c.Storage.UploadDir
	}
	return filepath.Join(c.DataDir(), "uploads")
}

// VectorDir returns the persistence directory for the vector store.
func (c *AppConfig) VectorDir() string {
	if c != nil && c.Storage.VectorDir != nil && strings.TrimSpace(*c.Storage.VectorDir) != "" {
		return *c.Storage.VectorDir
	}
	return filepath.Join(c.DataDir(), "vectors")
}

// DatabasePath returns the SQLite database file path.
func (c *AppConfig) DatabasePath() string {
	return filepath.Join(c.DataDir(), "chatforge.db")
}

// EmbeddingProvider returns the configured provider name, or "" if unset.
func (c *AppConfig) EmbeddingProvider() string {
	if c == nil || c.Embedding.Provider == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(*c.Embedding.Provider))
}

// EmbeddingModel returns the model name, defaulted per provider.
func (c *AppConfig) EmbeddingModel() string {
	if c != nil && c.Embedding.Model != nil && strings.TrimSpace(*c.Embedding.Model) != "" {
		return *c.Embedding.Model
	}
	switch c.EmbeddingProvider() {
	case "ollama":
		return defaultOllamaModel
	default:
		return defaultOpenAIModel
	}
}

// EmbeddingAPIKey returns the API key, falling back to OPENAI_API_KEY.
func (c *AppConfig) EmbeddingAPIKey() string {
	if c != nil && c.Embedding.APIKey != nil && *c.Embedding.APIKey != "" {
		return *c.Embedding.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// EmbeddingBaseURL returns the backend base URL, defaulted for ollama.
func (c *AppConfig) EmbeddingBaseURL() string {
	if c != nil && c.Embedding.BaseURL != nil && strings.TrimSpace(*c.Embedding.BaseURL) != "" {
		return *c.Embedding.BaseURL
	}
	if c.EmbeddingProvider() == "ollama" {
		return defaultOllamaURL
	}
	return ""
}

func (c *AppConfig) ChunkSize() int {
	if c == nil || c.Processing.ChunkSize == nil || *c.Processing.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return *c.Processing.ChunkSize
}

func (c *AppConfig) ChunkOverlap() int {
	if c == nil || c.Processing.ChunkOverlap == nil || *c.Processing.ChunkOverlap < 0 {
		return DefaultChunkOverlap
	}
	return *c.Processing.ChunkOverlap
}

func ptr[T any](v T) *T { return &v }
