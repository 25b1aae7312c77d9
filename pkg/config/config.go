package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/nutriempower/nutriempower/pkg/models"
)

// DefaultPath is the config file used when no --config flag is given.
const DefaultPath = "nutriempower.yaml"

// DefaultSystemPrompt is the fixed instruction sent ahead of every question.
const DefaultSystemPrompt = "You are NutriEmpower, a friendly nutrition assistant. " +
	"Answer concisely using the provided USDA food context when it is relevant. " +
	"If the context does not cover the question, give general, evidence-based guidance " +
	"and suggest consulting a registered dietitian for medical decisions."

// Config holds all NutriEmpower configuration.
type Config struct {
	Listen    string             `yaml:"listen"`
	DBPath    string             `yaml:"db_path"`
	Server    ServerConfig       `yaml:"server"`
	Dataset   DatasetConfig      `yaml:"dataset"`
	Retrieval RetrievalConfig    `yaml:"retrieval"`
	Backend   BackendConfig      `yaml:"backend"`
	Cache     CacheConfig        `yaml:"cache"`
	Audit     models.AuditConfig `yaml:"audit"`
	Log       LogConfig          `yaml:"log"`
}

// ServerConfig controls the HTTP front.
type ServerConfig struct {
	MaxBodyBytes int64    `yaml:"max_body_bytes"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// DatasetConfig locates the USDA CSV and its compact snapshot.
type DatasetConfig struct {
	CSVPath      string `yaml:"csv_path"`
	SnapshotPath string `yaml:"snapshot_path"`
	MaxRawRows   int    `yaml:"max_raw_rows"`
	MaxRecords   int    `yaml:"max_records"`
}

// RetrievalConfig bounds context retrieval per question.
type RetrievalConfig struct {
	TopK           int `yaml:"top_k"`
	MaxQueryTokens int `yaml:"max_query_tokens"`
}

// BackendConfig defines the local LLM runtime.
type BackendConfig struct {
	URL           string        `yaml:"url"`
	Model         string        `yaml:"model"`
	MaxTokens     int           `yaml:"max_tokens"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	SystemPrompt  string        `yaml:"system_prompt"`
}

// CacheConfig controls the response cache.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Listen: ":3000",
		DBPath: "data/nutriempower.db",
		Server: ServerConfig{
			MaxBodyBytes: 10 << 20,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5000"},
		},
		Dataset: DatasetConfig{
			CSVPath:      "data/usda-foods.csv",
			SnapshotPath: "data/usda-compact.json",
			MaxRawRows:   1000,
			MaxRecords:   300,
		},
		Retrieval: RetrievalConfig{
			TopK:           3,
			MaxQueryTokens: 8,
		},
		Backend: BackendConfig{
			URL:           "http://127.0.0.1:11434",
			Model:         "llama3.2:1b",
			MaxTokens:     256,
			Timeout:       60 * time.Second,
			MaxConcurrent: 1,
			SystemPrompt:  DefaultSystemPrompt,
		},
		Cache: CacheConfig{
			Enabled:    true,
			TTL:        15 * time.Minute,
			MaxEntries: 100,
		},
		Audit: models.AuditConfig{
			Enabled:       false,
			DBPath:        "data/nutriempower-audit.db",
			RetentionDays: 30,
			Include:       []string{"messages", "responses"},
			MaxBodySize:   8192,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a YAML config file and expands environment variables.
// Variables from a .env file in the working directory are loaded first.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the default config
// file is simply absent. An explicitly named file must exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if path == DefaultPath && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return nil, err
}
