// Package config provides configuration loading and structs for the invoice auditor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Inbox     InboxConfig     `yaml:"inbox"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Services  ServicesConfig  `yaml:"services"`
	RefData   RefDataConfig   `yaml:"refdata"`
	Reports   ReportsConfig   `yaml:"reports"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// InboxConfig holds inbox scheduler settings.
type InboxConfig struct {
	Directory        string   `yaml:"directory"`
	ArchiveDirectory string   `yaml:"archive_directory"`
	Extensions       []string `yaml:"extensions"`
	PollSeconds      int      `yaml:"poll_seconds"`
}

// StorageConfig holds paths for the database and the vector index snapshot.
type StorageConfig struct {
	DatabasePath    string `yaml:"database_path"`
	VectorIndexPath string `yaml:"vector_index_path"`
}

// EmbeddingConfig holds ONNX embedder settings.
type EmbeddingConfig struct {
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
}

// KnowledgeConfig holds chunking and retrieval settings.
type KnowledgeConfig struct {
	ChunkSize    int     `yaml:"chunk_size"`
	ChunkOverlap int     `yaml:"chunk_overlap"`
	TopK         int     `yaml:"top_k"`
	MinPassScore float64 `yaml:"min_pass_score"`
}

// ServicesConfig holds endpoints and timeouts for external collaborators.
// API credentials come from the environment, not the config file.
type ServicesConfig struct {
	StandardizerURL string `yaml:"standardizer_url"`
	CompletionURL   string `yaml:"completion_url"`
	CompletionModel string `yaml:"completion_model"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
}

// RefDataConfig holds the location of the read-only reference data files.
type RefDataConfig struct {
	Directory string `yaml:"directory"`
}

// ReportsConfig holds the output location for persisted report artifacts.
type ReportsConfig struct {
	Directory string `yaml:"directory"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Inbox.Directory = expandPath(cfg.Inbox.Directory, configDir)
	cfg.Inbox.ArchiveDirectory = expandPath(cfg.Inbox.ArchiveDirectory, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.VectorIndexPath = expandPath(cfg.Storage.VectorIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	cfg.RefData.Directory = expandPath(cfg.RefData.Directory, configDir)
	cfg.Reports.Directory = expandPath(cfg.Reports.Directory, configDir)

	return &cfg, nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
