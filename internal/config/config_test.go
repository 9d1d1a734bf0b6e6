package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
database:
  dsn: postgres://localhost/mba
vectorstore:
  dsn: localhost:6334
  collection: benefit_policies
  dimension: 1024
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int32(8), cfg.Database.MaxConns)
	assert.Equal(t, "members", cfg.Database.MembersTbl)
	assert.Equal(t, "deductibles_oop", cfg.Database.WideTableDB)
	assert.Equal(t, "cosine", cfg.VectorStore.Metric)
	assert.Equal(t, 8000, cfg.Embedding.CharCap)
	assert.Equal(t, "Authorization", cfg.Embedding.APIHeader)
	assert.InDelta(t, 0.3, cfg.Generation.Temperature, 1e-9)
	assert.EqualValues(t, 2000, cfg.Generation.MaxTokens)
	assert.Equal(t, 50, cfg.Session.MaxHistory)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1024, cfg.LocalStore.Dimension)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigPreservesExplicitValues(t *testing.T) {
	path := writeTempConfig(t, `
database:
  dsn: postgres://localhost/mba
  max_conns: 3
generation:
  temperature: 0.7
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int32(3), cfg.Database.MaxConns)
	assert.InDelta(t, 0.7, cfg.Generation.Temperature, 1e-9)
}
