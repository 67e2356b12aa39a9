// Copyright 2025 Ukweli Project
//
// Configuration Tests

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.DataDir == "" {
		t.Error("data dir default missing")
	}
	if cfg.DatabaseMaxConns <= 0 {
		t.Error("pool size default missing")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("UKWELI_DIR", "/tmp/somewhere")
	t.Setenv("DATABASE_MAX_CONNS", "42")
	cfg := Load()
	if cfg.DataDir != "/tmp/somewhere" {
		t.Errorf("UKWELI_DIR not honored: got %q", cfg.DataDir)
	}
	if cfg.DatabaseMaxConns != 42 {
		t.Errorf("DATABASE_MAX_CONNS not honored: got %d", cfg.DatabaseMaxConns)
	}
}

func TestDBConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := SaveDBConfig(dir, DefaultDBConfig("landregistry")); err != nil {
		t.Fatalf("save: %v", err)
	}

	cfg, err := LoadDBConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseName != "landregistry" {
		t.Errorf("name: got %q, want landregistry", cfg.DatabaseName)
	}
	if cfg.Storage.Backend != BackendFile {
		t.Errorf("backend: got %q, want %q", cfg.Storage.Backend, BackendFile)
	}
}

func TestDBConfig_EnvSubstitution(t *testing.T) {
	t.Setenv("MIRROR_URL", "postgres://mirror:5432/ukweli")
	dir := t.TempDir()
	doc := `
database_name: testdb
mirror:
  enabled: true
  url: ${MIRROR_URL}
`
	if err := os.WriteFile(filepath.Join(dir, DBConfigFileName), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadDBConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mirror.URL != "postgres://mirror:5432/ukweli" {
		t.Errorf("mirror url: got %q", cfg.Mirror.URL)
	}
}

func TestDBConfig_Validation(t *testing.T) {
	dir := t.TempDir()
	doc := `
database_name: testdb
storage:
  backend: carrier_pigeon
`
	if err := os.WriteFile(filepath.Join(dir, DBConfigFileName), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDBConfig(dir); err == nil {
		t.Error("unknown backend accepted")
	}

	doc = `
database_name: testdb
mirror:
  enabled: true
`
	if err := os.WriteFile(filepath.Join(dir, DBConfigFileName), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadDBConfig(dir); err == nil {
		t.Error("enabled mirror without url accepted")
	}
}
