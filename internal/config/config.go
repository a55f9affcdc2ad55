// Package config handles FilmGuide configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/filmguide/config.yaml, /etc/filmguide/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "filmguide", "config.yaml"))
	}

	paths = append(paths, "/etc/filmguide/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all FilmGuide configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Fabric     FabricConfig     `yaml:"fabric"`
	Backend    BackendConfig    `yaml:"backend"`
	Router     RouterConfig     `yaml:"router"`
	Agents     AgentsConfig     `yaml:"agents"`
	Completion CompletionConfig `yaml:"completion"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	MemoryFile string           `yaml:"memory_file"`
	Audit      AuditConfig      `yaml:"audit"`
	LogLevel   string           `yaml:"log_level"`
	LogFormat  string           `yaml:"log_format"` // "text" (default) or "json"
}

// ListenConfig defines the backend HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// FabricConfig defines the agent message fabric.
//
// Mode "mqtt" connects every agent to a shared MQTT broker and gives
// each one an inbox topic derived from its address. Mode "local" wires
// all agents through an in-process bus — useful for single-binary
// deployments and development without a broker.
type FabricConfig struct {
	Mode        string `yaml:"mode"` // "mqtt" or "local"
	Broker      string `yaml:"broker"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// BackendConfig defines the correlation gateway settings.
type BackendConfig struct {
	// Address is the backend's own fabric address. Responder replies
	// are sent here.
	Address string `yaml:"address"`
	// SecurityKey is the shared secret embedded in every outbound
	// request message and checked by responder agents.
	SecurityKey string `yaml:"security_key"`
	// ReplyTimeoutSec bounds how long a /chat caller waits for a
	// responder reply (default 30).
	ReplyTimeoutSec int `yaml:"reply_timeout_sec"`
	// HistoryDepth is how many prior conversation entries are folded
	// into the prompt (default 5).
	HistoryDepth int `yaml:"history_depth"`
}

// RouterConfig defines keyword routing between responder agents.
type RouterConfig struct {
	// TrailerKeywords route a request to the trailer agent when any of
	// them appears in the user's text. Empty means the built-in set.
	TrailerKeywords []string `yaml:"trailer_keywords"`
}

// AgentsConfig holds the two responder agent profiles.
type AgentsConfig struct {
	Movie   AgentConfig `yaml:"movie"`
	Trailer AgentConfig `yaml:"trailer"`
}

// AgentConfig defines a single responder agent deployment.
type AgentConfig struct {
	// Address is the agent's fabric address (its inbox).
	Address string `yaml:"address"`
	// ListenAddress and ListenPort expose the out-of-band /search
	// endpoint. Port 0 disables the HTTP listener.
	ListenAddress string `yaml:"listen_address"`
	ListenPort    int    `yaml:"listen_port"`
	// Completion selects the completion endpoint: "asi1" or "openai".
	Completion string `yaml:"completion"`
	// DatasetMode controls how much of the dataset is folded into the
	// prompt: "full", "compact", or "head".
	DatasetMode string `yaml:"dataset_mode"`
	// MaxRows limits the dataset rows in "head" mode (default 9).
	MaxRows int `yaml:"max_rows"`
}

// CompletionConfig holds external completion API endpoints.
type CompletionConfig struct {
	ASIOne EndpointConfig `yaml:"asi1"`
	OpenAI EndpointConfig `yaml:"openai"`
}

// EndpointConfig defines one chat-completion API endpoint.
type EndpointConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// DatasetConfig points at the movie dataset file.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// AuditConfig defines the optional exchange audit store.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so secrets can live outside the file.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with every knob at its built-in value.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8000},
		Fabric: FabricConfig{
			Mode:        "local",
			TopicPrefix: "filmguide",
		},
		Backend: BackendConfig{
			Address:         "backend",
			ReplyTimeoutSec: 30,
			HistoryDepth:    5,
		},
		Agents: AgentsConfig{
			Movie: AgentConfig{
				Address:     "movie-recommender",
				ListenPort:  5050,
				Completion:  "asi1",
				DatasetMode: "full",
			},
			Trailer: AgentConfig{
				Address:     "trailer-finder",
				ListenPort:  5051,
				Completion:  "asi1",
				DatasetMode: "compact",
			},
		},
		Completion: CompletionConfig{
			ASIOne: EndpointConfig{
				BaseURL:     "https://api.asi1.ai",
				Model:       "asi1-mini",
				Temperature: 0.7,
				MaxTokens:   500,
			},
			OpenAI: EndpointConfig{
				BaseURL: "https://api.openai.com",
				Model:   "gpt-4o-mini",
			},
		},
		Dataset:    DatasetConfig{Path: "data/movies.csv"},
		MemoryFile: "conversation_memory.json",
	}
}

// Validate performs presence checks on the loaded configuration. It
// does not reach out to any external service.
func (c *Config) Validate() error {
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("unknown log format %q (expected text or json)", c.LogFormat)
	}

	switch c.Fabric.Mode {
	case "local":
	case "mqtt":
		if c.Fabric.Broker == "" {
			return fmt.Errorf("fabric.broker is required when fabric.mode is mqtt")
		}
	default:
		return fmt.Errorf("unknown fabric mode %q (expected mqtt or local)", c.Fabric.Mode)
	}

	if c.Backend.Address == "" {
		return fmt.Errorf("backend.address is required")
	}
	if c.Agents.Movie.Address == "" {
		return fmt.Errorf("agents.movie.address is required")
	}
	if c.Agents.Trailer.Address == "" {
		return fmt.Errorf("agents.trailer.address is required")
	}

	for _, a := range []struct {
		name string
		cfg  AgentConfig
	}{
		{"agents.movie", c.Agents.Movie},
		{"agents.trailer", c.Agents.Trailer},
	} {
		switch a.cfg.Completion {
		case "", "asi1", "openai":
		default:
			return fmt.Errorf("%s.completion: unknown endpoint %q (expected asi1 or openai)", a.name, a.cfg.Completion)
		}
		switch a.cfg.DatasetMode {
		case "", "full", "compact", "head":
		default:
			return fmt.Errorf("%s.dataset_mode: unknown mode %q (expected full, compact, or head)", a.name, a.cfg.DatasetMode)
		}
	}

	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required when audit is enabled")
	}

	return nil
}

// Endpoint returns the completion endpoint configuration for an agent's
// completion selector. An empty selector means ASI:One.
func (c *Config) Endpoint(selector string) (EndpointConfig, error) {
	switch selector {
	case "", "asi1":
		return c.Completion.ASIOne, nil
	case "openai":
		return c.Completion.OpenAI, nil
	default:
		return EndpointConfig{}, fmt.Errorf("unknown completion endpoint %q", selector)
	}
}
