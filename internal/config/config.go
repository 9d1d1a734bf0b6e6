// Package config loads the MBA query core's configuration.
package config

import (
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v2"
)

// DatabaseConfig holds the relational store's connection settings.
type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	MaxConns    int32  `yaml:"max_conns"`
	MinConns    int32  `yaml:"min_conns"`
	MembersTbl      string `yaml:"members_table"`
	WideTableDB     string `yaml:"wide_table"`
	AccumulatorsTbl string `yaml:"accumulators_table"`
}

// ObjectStoreConfig holds the S3-compatible object store's settings.
type ObjectStoreConfig struct {
	Bucket     string      `yaml:"bucket"`
	Endpoint   string      `yaml:"endpoint,omitempty"`
	Region     string      `yaml:"region"`
	AccessKey  string      `yaml:"access_key,omitempty"`
	SecretKey  string      `yaml:"secret_key,omitempty"`
	PathStyle  bool        `yaml:"path_style"`
	SkipVerify bool        `yaml:"skip_tls_verify,omitempty"`
	Prefix     string      `yaml:"prefix,omitempty"`
	SSE        S3SSEConfig `yaml:"sse,omitempty"`
}

// S3SSEConfig controls server-side encryption applied to objects written
// through ObjectStoreConfig's bucket. Mode "none" (the default) disables
// SSE headers entirely.
type S3SSEConfig struct {
	Mode     string `yaml:"mode,omitempty"`
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// VectorStoreConfig holds the Qdrant collection's connection and shape.
type VectorStoreConfig struct {
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Dimension  int    `yaml:"dimension"`
	Metric     string `yaml:"metric"`
}

// EmbeddingConfig holds the embedding provider's settings.
type EmbeddingConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key,omitempty"`
	APIHeader string `yaml:"api_header,omitempty"`
	Model     string `yaml:"model"`
	CharCap   int    `yaml:"char_cap"`
}

// RerankerConfig holds the cross-encoder rerank provider's settings.
type RerankerConfig struct {
	Host   string `yaml:"host"`
	APIKey string `yaml:"api_key,omitempty"`
	Model  string `yaml:"model"`
}

// GenerationConfig holds the answer-synthesis LLM provider's settings.
type GenerationConfig struct {
	APIKey      string  `yaml:"api_key,omitempty"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// SessionConfig bounds in-memory session history.
type SessionConfig struct {
	MaxHistory int `yaml:"max_history"`
}

// ServerConfig is consumed only by the (out-of-scope) HTTP layer.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// LocalStoreConfig holds the on-disk embedded store used by LocalDocHandler.
type LocalStoreConfig struct {
	Path      string `yaml:"path"`
	DocsDir   string `yaml:"docs_dir"`
	Dimension int    `yaml:"dimension"`
}

// Config is the MBA query core's top-level configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore"`
	VectorStore VectorStoreConfig `yaml:"vectorstore"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	Generation  GenerationConfig  `yaml:"generation"`
	Session     SessionConfig     `yaml:"session"`
	Server      ServerConfig      `yaml:"server"`
	LocalStore  LocalStoreConfig  `yaml:"local_store"`
	LogLevel    string            `yaml:"log_level"`
	LogPath     string            `yaml:"log_path,omitempty"`
}

// LoadConfig reads the configuration from a YAML file and applies defaults
// for fields awkward to express as zero values.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		pterm.Error.Printf("error reading config file: %v\n", err)
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		pterm.Error.Printf("error unmarshaling config: %v\n", err)
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)

	pterm.Success.Println("configuration loaded successfully")
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 8
	}
	if cfg.Database.MembersTbl == "" {
		cfg.Database.MembersTbl = "members"
	}
	if cfg.Database.WideTableDB == "" {
		cfg.Database.WideTableDB = "deductibles_oop"
	}
	if cfg.Database.AccumulatorsTbl == "" {
		cfg.Database.AccumulatorsTbl = "benefit_accumulators"
	}
	if cfg.VectorStore.Metric == "" {
		cfg.VectorStore.Metric = "cosine"
	}
	if cfg.ObjectStore.SSE.Mode == "" {
		cfg.ObjectStore.SSE.Mode = "none"
	}
	if cfg.Embedding.CharCap <= 0 {
		cfg.Embedding.CharCap = 8000
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Generation.Temperature <= 0 {
		cfg.Generation.Temperature = 0.3
	}
	if cfg.Generation.MaxTokens <= 0 {
		cfg.Generation.MaxTokens = 2000
	}
	if cfg.Session.MaxHistory <= 0 {
		cfg.Session.MaxHistory = 50
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LocalStore.Path == "" {
		cfg.LocalStore.Path = "./data/local_docs.db"
	}
	if cfg.LocalStore.DocsDir == "" {
		cfg.LocalStore.DocsDir = "./data/local_docs"
	}
	if cfg.LocalStore.Dimension <= 0 {
		cfg.LocalStore.Dimension = cfg.VectorStore.Dimension
	}
}
