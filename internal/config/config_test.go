package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "listen:\n  port: 9000\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Listen.Port != 9000 {
		t.Errorf("Listen.Port = %d, want 9000", cfg.Listen.Port)
	}
	if cfg.Backend.ReplyTimeoutSec != 30 {
		t.Errorf("Backend.ReplyTimeoutSec = %d, want default 30", cfg.Backend.ReplyTimeoutSec)
	}
	if cfg.Backend.HistoryDepth != 5 {
		t.Errorf("Backend.HistoryDepth = %d, want default 5", cfg.Backend.HistoryDepth)
	}
	if cfg.Agents.Movie.Address != "movie-recommender" {
		t.Errorf("Agents.Movie.Address = %q, want default", cfg.Agents.Movie.Address)
	}
	if cfg.MemoryFile != "conversation_memory.json" {
		t.Errorf("MemoryFile = %q, want default", cfg.MemoryFile)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("FILMGUIDE_TEST_KEY", "super-secret")
	path := writeConfig(t, "backend:\n  security_key: ${FILMGUIDE_TEST_KEY}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.SecurityKey != "super-secret" {
		t.Errorf("SecurityKey = %q, want expanded env value", cfg.Backend.SecurityKey)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, wantErr: false},
		{name: "mqtt without broker", mutate: func(c *Config) {
			c.Fabric.Mode = "mqtt"
		}, wantErr: true},
		{name: "mqtt with broker", mutate: func(c *Config) {
			c.Fabric.Mode = "mqtt"
			c.Fabric.Broker = "tcp://localhost:1883"
		}, wantErr: false},
		{name: "unknown fabric mode", mutate: func(c *Config) {
			c.Fabric.Mode = "carrier-pigeon"
		}, wantErr: true},
		{name: "missing backend address", mutate: func(c *Config) {
			c.Backend.Address = ""
		}, wantErr: true},
		{name: "unknown completion endpoint", mutate: func(c *Config) {
			c.Agents.Trailer.Completion = "bard"
		}, wantErr: true},
		{name: "unknown dataset mode", mutate: func(c *Config) {
			c.Agents.Movie.DatasetMode = "everything"
		}, wantErr: true},
		{name: "audit without path", mutate: func(c *Config) {
			c.Audit.Enabled = true
		}, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) {
			c.LogLevel = "loud"
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEndpoint(t *testing.T) {
	cfg := Default()

	ep, err := cfg.Endpoint("")
	if err != nil {
		t.Fatalf("Endpoint(\"\"): %v", err)
	}
	if ep.Model != "asi1-mini" {
		t.Errorf("default endpoint model = %q, want asi1-mini", ep.Model)
	}

	ep, err = cfg.Endpoint("openai")
	if err != nil {
		t.Fatalf("Endpoint(openai): %v", err)
	}
	if ep.Model != "gpt-4o-mini" {
		t.Errorf("openai endpoint model = %q, want gpt-4o-mini", ep.Model)
	}

	if _, err := cfg.Endpoint("mystery"); err == nil {
		t.Error("expected error for unknown endpoint selector")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "info", want: slog.LevelInfo},
		{in: "DEBUG", want: slog.LevelDebug},
		{in: " warn ", want: slog.LevelWarn},
		{in: "warning", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "verbose", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLogLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
