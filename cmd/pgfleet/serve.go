package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pgfleet "github.com/fleetdb/pgfleet"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const (
	defaultServerConfigPath = ".pgfleet/config.json"
	defaultRegistryPath     = ".pgfleet/databases.json"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig (optional; defaults apply when absent)
	serverConfig, err := loadServerConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serverConfig.Server.Port <= 0 {
		serverConfig.Server.Port = 8080
	}

	// 2. Setup logger
	logger := setupLogger(serverConfig.Logging)

	// 3. Load the registry document, prompting for credentials when the
	// environment fallback is in play without a password on a terminal.
	store := pgfleet.NewStore(registryPath(), logger)
	doc := store.Load()
	promptFallbackCredentials(doc)

	// 4. Connect every configured database; failures exclude the id but do
	// not abort startup.
	registry := pgfleet.NewRegistry(store, logger)
	registry.ConnectAll(ctx, doc)
	defer registry.DisconnectAll()

	if len(registry.ListIDs()) == 0 {
		logger.Warn().Msg("no databases are live; calls will fail until add_database succeeds")
	}

	router, err := pgfleet.NewRouter(registry, serverConfig.Query, logger)
	if err != nil {
		return fmt.Errorf("failed to create query router: %w", err)
	}

	// 5. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("pgfleet", "1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
		server.WithPromptCapabilities(true),
		server.WithHooks(hooks),
	)

	pgfleet.RegisterMCPTools(mcpServer, registry, router, logger)

	// 6. Start HTTP server with optional health check
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			return errors.New("health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	// 7. Serve until interrupted, then drain.
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", serverConfig.Server.Port).Msg("starting pgfleet server")
		errCh <- streamableServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func loadServerConfig() (*pgfleet.ServerConfig, error) {
	configPath := os.Getenv("PGFLEET_CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = defaultServerConfigPath
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &pgfleet.ServerConfig{}, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config pgfleet.ServerConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	return &config, nil
}

func registryPath() string {
	if path := os.Getenv("PGFLEET_REGISTRY_PATH"); path != "" {
		return path
	}
	return defaultRegistryPath
}

// promptFallbackCredentials asks for a password on the terminal when the
// registry came from the environment fallback without one.
func promptFallbackCredentials(doc *pgfleet.RegistryDocument) {
	if len(doc.Databases) != 1 {
		return
	}
	spec, ok := doc.Databases["default"]
	if !ok || spec.Password != "" || !term.IsTerminal(int(os.Stdin.Fd())) {
		return
	}
	if user := promptInput(fmt.Sprintf("Username [%s]: ", spec.User)); user != "" {
		spec.User = user
	}
	spec.Password = promptPassword("Password: ")
	doc.Databases["default"] = spec
}

func setupLogger(config pgfleet.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptInput(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	var input string
	fmt.Scanln(&input)
	return input
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
