package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 15*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 100, cfg.Cache.MaxEntries)
	assert.Equal(t, 1, cfg.Backend.MaxConcurrent)
	assert.Equal(t, 1000, cfg.Dataset.MaxRawRows)
	assert.Equal(t, 300, cfg.Dataset.MaxRecords)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 8, cfg.Retrieval.MaxQueryTokens)
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_OLLAMA_URL", "http://gpu-box:11434")

	content := `
listen: ":9090"
db_path: "test.db"
backend:
  url: ${TEST_OLLAMA_URL}
  model: phi3
  timeout: 30s
  max_concurrent: 2
cache:
  enabled: true
  ttl: 30m
  max_entries: 10
dataset:
  max_records: 50
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "http://gpu-box:11434", cfg.Backend.URL, "env var not expanded")
	assert.Equal(t, "phi3", cfg.Backend.Model)
	assert.Equal(t, 30*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, 2, cfg.Backend.MaxConcurrent)
	assert.Equal(t, 30*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 10, cfg.Cache.MaxEntries)
	assert.Equal(t, 50, cfg.Dataset.MaxRecords)

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Dataset.MaxRawRows)
	assert.Equal(t, DefaultSystemPrompt, cfg.Backend.SystemPrompt)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault(DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, cfg.Listen)

	_, err = LoadOrDefault("custom.yaml")
	assert.Error(t, err, "explicit config path must exist")
}
