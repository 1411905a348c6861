// Package config provides configuration loading and structs for the edna server and build job.
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
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Index     IndexConfig     `yaml:"index"`
	Classify  ClassifyConfig  `yaml:"classify"`
	Cluster   ClusterConfig   `yaml:"cluster"`
	Watch     WatchConfig     `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the run database, the label search index and the
// persisted index/catalog artifacts.
type StorageConfig struct {
	DatabasePath   string         `yaml:"database_path"`
	LabelIndexPath string         `yaml:"label_index_path"`
	Artifacts      ArtifactConfig `yaml:"artifacts"`
	IndexName      string         `yaml:"index_name"`
	CatalogName    string         `yaml:"catalog_name"`
}

// ArtifactConfig selects where the index and catalog blobs live.
type ArtifactConfig struct {
	Backend  string `yaml:"backend"` // local or s3
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// EmbeddingConfig holds embedder settings. Provider is kmer, onnx, remote or mock.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	KmerSize   int    `yaml:"kmer_size"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
}

// IndexConfig holds vector index build and search parameters.
type IndexConfig struct {
	Type           string `yaml:"type"`
	Metric         string `yaml:"metric"`
	Nlist          int    `yaml:"nlist"`
	Segments       int    `yaml:"segments"`
	BitsPerSegment int    `yaml:"bits_per_segment"`
	CodesOnly      bool   `yaml:"codes_only"`
	Nprobe         int    `yaml:"nprobe"`
	AddBatchSize   int    `yaml:"add_batch_size"`
	TrainSample    int    `yaml:"train_sample"`
}

// ClassifyConfig holds classification request defaults.
type ClassifyConfig struct {
	DefaultTopK int     `yaml:"default_topk"`
	MaxTopK     int     `yaml:"max_topk"`
	DefaultTau  float64 `yaml:"default_tau"`
}

// ClusterConfig holds novelty clustering parameters. Eps <= 0 selects eps automatically.
type ClusterConfig struct {
	Eps       float64 `yaml:"eps"`
	MinPoints int     `yaml:"min_points"`
}

// WatchConfig holds FASTA inbox settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	OutputDir   string   `yaml:"output_dir"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
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
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.LabelIndexPath = expandPath(cfg.Storage.LabelIndexPath, configDir)
	if cfg.Storage.Artifacts.Backend == "local" {
		cfg.Storage.Artifacts.Dir = expandPath(cfg.Storage.Artifacts.Dir, configDir)
	}
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Watch.OutputDir != "" {
		cfg.Watch.OutputDir = expandPath(cfg.Watch.OutputDir, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects values that defaults cannot repair.
func Validate(cfg *Config) error {
	switch cfg.Index.Metric {
	case "l2", "ip":
	default:
		return fmt.Errorf("invalid config: index.metric must be l2 or ip, got %q", cfg.Index.Metric)
	}
	switch cfg.Storage.Artifacts.Backend {
	case "local":
	case "s3":
		if cfg.Storage.Artifacts.Bucket == "" {
			return fmt.Errorf("invalid config: storage.artifacts.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("invalid config: storage.artifacts.backend must be local or s3, got %q", cfg.Storage.Artifacts.Backend)
	}
	if cfg.Classify.DefaultTau < 0 || cfg.Classify.DefaultTau > 1 {
		return fmt.Errorf("invalid config: classify.default_tau must be in [0,1], got %v", cfg.Classify.DefaultTau)
	}
	if cfg.Classify.DefaultTopK > cfg.Classify.MaxTopK {
		return fmt.Errorf("invalid config: classify.default_topk %d exceeds max_topk %d", cfg.Classify.DefaultTopK, cfg.Classify.MaxTopK)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
