package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/marktoda/astrotask/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	_ = os.Chdir(dir)
	defer os.Chdir(old)

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURI != "sqlite://./astrotask.db" {
		t.Errorf("DatabaseURI = %q, want the documented default", cfg.DatabaseURI)
	}
	if cfg.Verbose {
		t.Error("Verbose should default to false")
	}
	if cfg.LockTimeout != 30*time.Second {
		t.Errorf("LockTimeout = %v, want 30s", cfg.LockTimeout)
	}
}

func TestLoadOverridesWinOverDefaults(t *testing.T) {
	dir := t.TempDir()
	old, _ := os.Getwd()
	_ = os.Chdir(dir)
	defer os.Chdir(old)

	cfg, err := config.Load(map[string]interface{}{"database_uri": ":memory:", "verbose": true})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURI != ":memory:" {
		t.Errorf("DatabaseURI = %q, want :memory:", cfg.DatabaseURI)
	}
	if !cfg.Verbose {
		t.Error("Verbose override should take effect")
	}
}

func TestLoadReadsProjectConfigFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".astrotask"), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	yaml := "database_uri: sqlite:///configured.db\nactor: alice\n"
	if err := os.WriteFile(filepath.Join(dir, ".astrotask", "config.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	old, _ := os.Getwd()
	_ = os.Chdir(dir)
	defer os.Chdir(old)

	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURI != "sqlite:///configured.db" {
		t.Errorf("DatabaseURI = %q, want the project config value", cfg.DatabaseURI)
	}
	if cfg.Actor != "alice" {
		t.Errorf("Actor = %q, want alice", cfg.Actor)
	}
}

func TestLoadEnvVarOverridesFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, ".astrotask"), 0o750); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".astrotask", "config.yaml"), []byte("actor: from-file\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	old, _ := os.Getwd()
	_ = os.Chdir(dir)
	defer os.Chdir(old)

	t.Setenv("ASTROTASK_ACTOR", "from-env")
	cfg, err := config.Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Actor != "from-env" {
		t.Errorf("Actor = %q, want from-env (env should beat the config file)", cfg.Actor)
	}
}
