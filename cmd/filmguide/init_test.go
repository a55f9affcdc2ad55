package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/filmguide-ai/filmguide/internal/config"
	"github.com/filmguide-ai/filmguide/internal/dataset"
)

// loadTestConfig materializes the embedded starter config in a temp
// directory and loads it, so the cmd tests exercise the same files
// init installs.
func loadTestConfig(t *testing.T) (*config.Config, string, error) {
	t.Helper()
	dir := t.TempDir()
	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	cfg, err := config.Load(path)
	return cfg, path, err
}

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	for _, p := range []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(dir, "data", "movies.csv"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("missing %s: %v", p, err)
		}
	}
}

func TestRunInit_StarterConfigIsValid(t *testing.T) {
	cfg, _, err := loadTestConfig(t)
	if err != nil {
		t.Fatalf("load starter config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("starter config invalid: %v", err)
	}
	if cfg.Fabric.Mode != "local" {
		t.Errorf("fabric mode = %q, want local out of the box", cfg.Fabric.Mode)
	}
	if cfg.Listen.Port != 8000 {
		t.Errorf("port = %d", cfg.Listen.Port)
	}
}

func TestRunInit_StarterDatasetLoads(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	catalog, err := dataset.Load(filepath.Join(dir, "data", "movies.csv"))
	if err != nil {
		t.Fatalf("load starter dataset: %v", err)
	}
	if catalog.Len() < 5 {
		t.Errorf("starter dataset has %d movies", catalog.Len())
	}
}

func TestRunInit_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("# mine\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	var out bytes.Buffer
	if err := runInit(&out, dir); err != nil {
		t.Fatalf("runInit: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(data) != "# mine\n" {
		t.Error("runInit overwrote an existing config")
	}
}
