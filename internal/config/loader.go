package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads configuration from a YAML file (defaulting to config.yaml, or
// the path named by the CONFIG_PATH env var), then overlays a handful of
// environment variables so secrets never need to live in the YAML file on
// disk. A .env file in the working directory, if present, is loaded first.
func Load() (*Config, error) {
	_ = godotenv.Overload()

	path := strings.TrimSpace(os.Getenv("CONFIG_PATH"))
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}

	overlayEnv(cfg)
	return cfg, nil
}

func overlayEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("MBA_DB_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_OBJECTSTORE_ACCESS_KEY")); v != "" {
		cfg.ObjectStore.AccessKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_OBJECTSTORE_SECRET_KEY")); v != "" {
		cfg.ObjectStore.SecretKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_VECTORSTORE_DSN")); v != "" {
		cfg.VectorStore.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_EMBEDDING_API_KEY")); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_RERANKER_API_KEY")); v != "" {
		cfg.Reranker.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		cfg.Generation.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("MBA_VECTORSTORE_DIMENSION")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VectorStore.Dimension = n
		}
	}
}
