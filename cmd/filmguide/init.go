package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/filmguide-ai/filmguide/internal/defaults"
)

// runInit initializes a FilmGuide working directory with default
// files: a starter config and a sample movie dataset. Existing files
// are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing FilmGuide workspace in %s\n", dir)

	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Join(dir, "data"), err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, defaults.ConfigYAML); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	datasetPath := filepath.Join(dir, "data", "movies.csv")
	if err := writeIfMissing(datasetPath, defaults.MoviesCSV); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", datasetPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and set your completion API keys, then run:")
	fmt.Fprintln(w, "  filmguide serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}
