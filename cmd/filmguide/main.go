// Filmguide is a movie chat service built from cooperating agents.
//
// A backend HTTP server accepts chat requests and relays them over a
// message fabric to responder agents — one recommends movies, one finds
// trailers — which answer via external completion APIs. The fabric is
// either in-process (single binary) or an MQTT broker (one process per
// agent). Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	filmguide serve                   Start the backend server
//	filmguide respond <movie|trailer> Start one responder agent
//	filmguide ask <question>          Send one question to a running backend
//	filmguide init [dir]              Initialize a working directory with defaults
//	filmguide version                 Print version and build information
//	filmguide -o json version         Output version information as JSON
package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/filmguide-ai/filmguide/internal/audit"
	"github.com/filmguide-ai/filmguide/internal/buildinfo"
	"github.com/filmguide-ai/filmguide/internal/config"
	"github.com/filmguide-ai/filmguide/internal/convo"
	"github.com/filmguide-ai/filmguide/internal/dataset"
	"github.com/filmguide-ai/filmguide/internal/fabric"
	"github.com/filmguide-ai/filmguide/internal/gateway"
	"github.com/filmguide-ai/filmguide/internal/llm"
	"github.com/filmguide-ai/filmguide/internal/responder"
	"github.com/filmguide-ai/filmguide/internal/router"
	"github.com/filmguide-ai/filmguide/internal/server"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the filmguide command. Arguments are
// parsed by hand: the flag package relies on package-level globals
// (flag.CommandLine), which makes it impossible to call run()
// concurrently from tests, and the argument surface here is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "respond":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: filmguide respond <movie|trailer>")
		}
		return runRespond(ctx, stdout, configPath, cmdArgs[0])
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: filmguide ask <question>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe handles the "filmguide serve" subcommand. It is the primary
// operating mode: loads config, opens the conversation and audit
// stores, connects the fabric, starts the gateway and the backend HTTP
// server, and blocks until a shutdown signal arrives. With the local
// fabric both responder agents run embedded in the same process.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting FilmGuide", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that the desired level and format are
	// known. Everything before this point logs at Info in text form.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			// Already validated by config.Validate().
			level, _ = config.ParseLogLevel(cfg.LogLevel)
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"fabric", cfg.Fabric.Mode,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Conversation store ---
	// Flat-file per-user history, folded into outbound prompts.
	convoStore := convo.NewStore(cfg.MemoryFile)
	logger.Info("conversation store ready", "path", cfg.MemoryFile)

	// --- Audit store ---
	// Optional SQLite log of completed exchanges, served on /v1/exchanges.
	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		db, err := sql.Open("sqlite3", cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("open audit database %s: %w", cfg.Audit.Path, err)
		}
		defer db.Close()

		auditStore, err = audit.NewStore(db)
		if err != nil {
			return fmt.Errorf("open audit store: %w", err)
		}
		logger.Info("audit store opened", "path", cfg.Audit.Path)
	}

	// --- Fabric ---
	bus, err := newBus(ctx, cfg, cfg.Backend.Address, logger)
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())

	// --- Embedded responders (local fabric only) ---
	// With an MQTT fabric the responders run as their own processes via
	// "filmguide respond".
	if cfg.Fabric.Mode == "local" {
		catalog, err := dataset.Load(cfg.Dataset.Path)
		if err != nil {
			return err
		}
		logger.Info("dataset loaded", "path", cfg.Dataset.Path, "movies", catalog.Len())

		for _, which := range []string{"movie", "trailer"} {
			agent, err := buildResponder(cfg, which, catalog, bus, logger)
			if err != nil {
				return err
			}
			if err := agent.Start(ctx); err != nil {
				return fmt.Errorf("start %s responder: %w", which, err)
			}
		}
	}

	// --- Gateway ---
	rtr := router.New(cfg.Agents.Movie.Address, cfg.Agents.Trailer.Address, cfg.Router.TrailerKeywords)
	gw := gateway.New(cfg.Backend, bus, rtr, convoStore, auditStore, logger)
	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	// --- HTTP server ---
	srv := server.New(gw, auditStore, cfg.Listen, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = srv.Shutdown(context.Background())
	}()

	if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("FilmGuide stopped")
	return nil
}

// runRespond handles the "filmguide respond <movie|trailer>"
// subcommand: one responder agent as its own process, connected to the
// MQTT fabric, with an optional out-of-band /search HTTP listener.
func runRespond(ctx context.Context, stdout io.Writer, configPath, which string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.LogLevel != "" {
		level, _ := config.ParseLogLevel(cfg.LogLevel)
		logger = newLogger(stdout, level, cfg.LogFormat)
	}
	logger.Info("config loaded", "path", cfgPath)

	if cfg.Fabric.Mode != "mqtt" {
		return fmt.Errorf("respond requires fabric.mode mqtt; the local fabric embeds responders in serve")
	}

	agentCfg, err := agentConfig(cfg, which)
	if err != nil {
		return err
	}

	catalog, err := dataset.Load(cfg.Dataset.Path)
	if err != nil {
		return err
	}
	logger.Info("dataset loaded", "path", cfg.Dataset.Path, "movies", catalog.Len())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus, err := newBus(ctx, cfg, agentCfg.Address, logger)
	if err != nil {
		return err
	}
	defer bus.Close(context.Background())

	agent, err := buildResponder(cfg, which, catalog, bus, logger)
	if err != nil {
		return err
	}
	if err := agent.Start(ctx); err != nil {
		return fmt.Errorf("start %s responder: %w", which, err)
	}

	// Out-of-band HTTP listener, port 0 disables it.
	var srv *responder.Server
	if agentCfg.ListenPort > 0 {
		srv = responder.NewServer(agent, agentCfg.ListenAddress, agentCfg.ListenPort, logger)
		go func() {
			if err := srv.Start(ctx); err != nil && err != http.ErrServerClosed {
				logger.Error("responder server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if srv != nil {
		_ = srv.Shutdown(context.Background())
	}
	return nil
}

// runAsk handles the "filmguide ask <question>" subcommand. It posts a
// single question to a running backend and prints the reply. Useful
// for smoke tests without opening a websocket.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	question := strings.Join(args, " ")

	host := cfg.Listen.Address
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/chat", host, cfg.Listen.Port)

	body, err := json.Marshal(map[string]string{
		"text":    question,
		"user_id": "cli",
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())

	// The backend holds the request open for up to its reply window.
	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ask %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ask %s: HTTP %d: %s", url, resp.StatusCode, strings.TrimSpace(string(buf)))
	}

	var result gateway.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}

	fmt.Fprintln(stdout, result.Reply)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "FilmGuide - Multi-Agent Movie Chat Service")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: filmguide [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                   Start the backend server")
	fmt.Fprintln(w, "  respond <movie|trailer> Start one responder agent (MQTT fabric)")
	fmt.Fprintln(w, "  ask <question>          Send one question to a running backend")
	fmt.Fprintln(w, "  init [dir]              Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  version                 Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/filmguide/config.yaml, /etc/filmguide/config.yaml")
	return nil
}

// newBus constructs the configured fabric implementation. The MQTT bus
// is connected before returning; the local bus needs no setup.
func newBus(ctx context.Context, cfg *config.Config, clientID string, logger *slog.Logger) (fabric.Bus, error) {
	if cfg.Fabric.Mode == "local" {
		return fabric.NewLocalBus(logger), nil
	}

	bus := fabric.NewMQTTBus(cfg.Fabric, clientID, logger)
	if err := bus.Start(ctx); err != nil {
		return nil, err
	}
	return bus, nil
}

// agentConfig resolves "movie" or "trailer" to its configuration block.
func agentConfig(cfg *config.Config, which string) (config.AgentConfig, error) {
	switch which {
	case "movie":
		return cfg.Agents.Movie, nil
	case "trailer":
		return cfg.Agents.Trailer, nil
	default:
		return config.AgentConfig{}, fmt.Errorf("unknown responder %q (expected movie or trailer)", which)
	}
}

// buildResponder assembles one responder agent: profile, completion
// client, catalog, fabric.
func buildResponder(cfg *config.Config, which string, catalog *dataset.Catalog, bus fabric.Bus, logger *slog.Logger) (*responder.Agent, error) {
	agentCfg, err := agentConfig(cfg, which)
	if err != nil {
		return nil, err
	}

	endpoint, err := cfg.Endpoint(agentCfg.Completion)
	if err != nil {
		return nil, fmt.Errorf("agents.%s: %w", which, err)
	}

	var client llm.Client
	if agentCfg.Completion == "openai" {
		client = llm.NewOpenAIClient(endpoint, logger)
	} else {
		client = llm.NewASIOneClient(endpoint, logger)
	}

	var profile responder.Profile
	if which == "trailer" {
		profile = responder.TrailerProfile(agentCfg, cfg.Backend.SecurityKey)
	} else {
		profile = responder.RecommendProfile(agentCfg, cfg.Backend.SecurityKey)
	}

	return responder.New(profile, catalog, client, bus, logger), nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates, parses, and validates the YAML configuration
// file. If explicit is non-empty, that exact path is used (and must
// exist). Returns the parsed config and the path that was loaded.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, cfgPath, fmt.Errorf("config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
