// Package config provides YAML-based configuration for fsnbmatch.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so container deployments keep working
// without a config file at all.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. FSNB_CONFIG environment variable
//  3. ~/.fsnbmatch/config.yaml
//  4. ./fsnbmatch.yaml
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Database configures the SQLite item/feedback store.
	Database DatabaseConfig `yaml:"database"`

	// Catalog configures the FSNB XML catalog ingestion.
	Catalog CatalogConfig `yaml:"catalog"`

	// Qdrant configures the vector index connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Embedding configures the embedding service and the accelerator gate.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path"`
}

// CatalogConfig holds FSNB catalog ingestion settings.
type CatalogConfig struct {
	// Dir is the directory containing the FSNB *.xml files.
	Dir string `yaml:"dir"`
}

// QdrantConfig holds vector index settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// EmbeddingConfig holds embedding service settings.
type EmbeddingConfig struct {
	// Endpoint is the embedding server base URL.
	Endpoint string `yaml:"endpoint"`
	// Model is the embedding model name reported to the server.
	Model string `yaml:"model"`
	// Dimensions is the output vector size of the model.
	Dimensions int `yaml:"dimensions"`
	// GPUSlots is the number of concurrent encode calls the accelerator
	// can absorb. Typically 1.
	GPUSlots int `yaml:"gpu_slots"`
	// QueryBatch is the encode batch size for query-mode texts.
	QueryBatch int `yaml:"query_batch"`
	// IndexBatch is the encode batch size for document-mode texts.
	IndexBatch int `yaml:"index_batch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var FSNB_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimit is the sustained requests-per-second budget per client IP.
	RateLimit int `yaml:"rate_limit"`
	// RateBurst is the per-IP burst size on top of RateLimit.
	RateBurst int `yaml:"rate_burst"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"FSNB_DB_PATH", func(c *Config) string { return c.Database.Path }},
	{"FSNB_CATALOG_DIR", func(c *Config) string { return c.Catalog.Dir }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"GPU_SLOTS", func(c *Config) string { return intStr(c.Embedding.GPUSlots) }},
	{"EMBED_QUERY_BATCH", func(c *Config) string { return intStr(c.Embedding.QueryBatch) }},
	{"EMBED_INDEX_BATCH", func(c *Config) string { return intStr(c.Embedding.IndexBatch) }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"FSNB_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"SERVER_RATE_LIMIT", func(c *Config) string { return intStr(c.Server.RateLimit) }},
	{"SERVER_RATE_BURST", func(c *Config) string { return intStr(c.Server.RateBurst) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// FromEnv assembles a Config from the environment. Call after Load so YAML
// values have been applied; unset keys stay zero and components fall back to
// their own defaults.
func FromEnv() Config {
	return Config{
		Database: DatabaseConfig{
			Path: os.Getenv("FSNB_DB_PATH"),
		},
		Catalog: CatalogConfig{
			Dir: os.Getenv("FSNB_CATALOG_DIR"),
		},
		Qdrant: QdrantConfig{
			Host:       os.Getenv("QDRANT_HOST"),
			Port:       envInt("QDRANT_PORT"),
			Collection: os.Getenv("QDRANT_COLLECTION"),
			APIKey:     os.Getenv("QDRANT_API_KEY"),
			TLS:        os.Getenv("QDRANT_TLS") == "true",
		},
		Embedding: EmbeddingConfig{
			Endpoint:   os.Getenv("EMBEDDING_ENDPOINT"),
			Model:      os.Getenv("EMBEDDING_MODEL"),
			Dimensions: envInt("EMBEDDING_DIMENSIONS"),
			GPUSlots:   envInt("GPU_SLOTS"),
			QueryBatch: envInt("EMBED_QUERY_BATCH"),
			IndexBatch: envInt("EMBED_INDEX_BATCH"),
		},
		Server: ServerConfig{
			Host:      os.Getenv("SERVER_HOST"),
			Port:      envInt("SERVER_PORT"),
			APIKey:    os.Getenv("FSNB_API_KEY"),
			RateLimit: envInt("SERVER_RATE_LIMIT"),
			RateBurst: envInt("SERVER_RATE_BURST"),
		},
		Logging: LoggingConfig{
			Level:  os.Getenv("LOG_LEVEL"),
			Format: os.Getenv("LOG_FORMAT"),
		},
	}
}

// envInt parses an integer env var, returning 0 when unset or malformed.
func envInt(key string) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return 0
	}
	return v
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("FSNB_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".fsnbmatch", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("fsnbmatch.yaml"); err == nil {
		return "fsnbmatch.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
