// Copyright 2025 Ukweli Project
//
// Database Configuration Document
// Per-database settings persisted as config.yaml inside the database
// directory, parsed from YAML with ${VAR} environment substitution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// DBConfigFileName is the name of the configuration document inside a
// database directory.
const DBConfigFileName = "config.yaml"

// Storage backends
const (
	BackendFile = "file"
	BackendKVDB = "kvdb"
)

// DBConfig holds per-database configuration.
type DBConfig struct {
	DatabaseName string          `yaml:"database_name"`
	Storage      StorageSettings `yaml:"storage"`
	Mirror       MirrorSettings  `yaml:"mirror"`
}

// StorageSettings selects the persistence backend.
type StorageSettings struct {
	Backend string `yaml:"backend"` // "file" (default) or "kvdb"
}

// MirrorSettings configures the optional non-authoritative Postgres mirror.
type MirrorSettings struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"` // supports ${DATABASE_URL}
}

// DefaultDBConfig returns the configuration written by init.
func DefaultDBConfig(name string) *DBConfig {
	return &DBConfig{
		DatabaseName: name,
		Storage:      StorageSettings{Backend: BackendFile},
	}
}

// LoadDBConfig reads the config.yaml of a database directory.
func LoadDBConfig(dir string) (*DBConfig, error) {
	path := filepath.Join(dir, DBConfigFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := substituteEnvVars(string(data))

	var cfg DBConfig
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveDBConfig writes the config.yaml of a database directory.
func SaveDBConfig(dir string, cfg *DBConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, DBConfigFileName)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

func (c *DBConfig) applyDefaults() {
	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendFile
	}
}

func (c *DBConfig) validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendKVDB:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Mirror.Enabled && c.Mirror.URL == "" {
		return fmt.Errorf("mirror is enabled but mirror.url is empty")
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} placeholders.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}
