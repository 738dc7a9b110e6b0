package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	pgmcp "github.com/rickchristie/pgguard-mcp"
)

const mcpEndpoint = "/mcp"

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, resolveConfigPath(*configPath))
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	serverConfig, err := loadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := validateServerSettings(serverConfig.Server); err != nil {
		return err
	}

	logger, err := setupLogger(serverConfig.Logging)
	if err != nil {
		return err
	}

	connString := os.Getenv(envPrefix + "_PG_CONNSTRING")
	if connString == "" {
		username := promptInput("Username: ")
		password := promptPassword("Password: ")
		connString = buildConnString(serverConfig.Connection, username, password)
	}

	if isTTY(os.Stderr.Fd()) {
		printBanner(os.Stderr, true)
	}

	var opts []pgmcp.Option
	if serverConfig.Connection.CloudSQLInstance != "" {
		opts = append(opts, pgmcp.WithCloudSQL(serverConfig.Connection.CloudSQLInstance, serverConfig.Connection.CloudSQLPrivateIP))
	}
	pgMcp, err := pgmcp.New(ctx, connString, serverConfig.Config, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to create PostgresMcp: %w", err)
	}
	defer pgMcp.Close(context.Background())

	logger.Info().Msg("testing database connection")
	if err := pgMcp.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().
		Bool("safe_mode", pgMcp.SafeMode()).
		Strs("features", enabledFeatures(pgMcp)).
		Msg("database connection test successful")

	mcpServer := newMCPServer(pgMcp, logger)

	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	httpSrv := &http.Server{Addr: addr}
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(mcpEndpoint),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)
	// Start() does not mount the handler when a custom *http.Server is supplied.
	httpSrv.Handler = newRouter(serverConfig.Server, streamableServer)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Int("port", serverConfig.Server.Port).Msg("starting pgguardmcp server")
		errCh <- streamableServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return streamableServer.Shutdown(shutdownCtx)
	}
}

func validateServerSettings(s pgmcp.ServerSettings) error {
	if s.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if s.HealthCheckEnabled && s.HealthCheckPath == "" {
		return fmt.Errorf("server.health_check_path must be set when health_check_enabled is true")
	}
	return nil
}

// newMCPServer builds the MCP server with initialize lifecycle logging.
func newMCPServer(pgMcp *pgmcp.PostgresMcp, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("pgguardmcp", version,
		server.WithToolCapabilities(true),
		server.WithHooks(hooks),
	)
	pgmcp.RegisterMCPTools(mcpServer, pgMcp)
	return mcpServer
}

// newRouter mounts the MCP handler and the optional health check. The health
// check reports process liveness only, not database connectivity.
func newRouter(settings pgmcp.ServerSettings, mcpHandler http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	if settings.HealthCheckEnabled && settings.HealthCheckPath != "" {
		r.Get(settings.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}
	r.Handle(mcpEndpoint, mcpHandler)
	return r
}

func enabledFeatures(p *pgmcp.PostgresMcp) []string {
	var out []string
	for _, f := range pgmcp.AllFeatures {
		if p.FeatureEnabled(f) {
			out = append(out, f)
		}
	}
	return out
}

// buildConnString builds a keyword/value connection string. With a Cloud SQL
// instance the dialer picks the address, so host and port are left out.
func buildConnString(conn pgmcp.ConnectionConfig, username, password string) string {
	parts := []string{}
	if conn.CloudSQLInstance == "" {
		if conn.Host != "" {
			parts = append(parts, fmt.Sprintf("host=%s", conn.Host))
		}
		if conn.Port > 0 {
			parts = append(parts, fmt.Sprintf("port=%d", conn.Port))
		}
	}
	if conn.DBName != "" {
		parts = append(parts, fmt.Sprintf("dbname=%s", conn.DBName))
	}
	if username != "" {
		parts = append(parts, fmt.Sprintf("user=%s", username))
	}
	if password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", quoteConnValue(password)))
	}
	if conn.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", conn.SSLMode))
	}
	return strings.Join(parts, " ")
}

// quoteConnValue single-quotes a keyword/value entry when it contains
// spaces, quotes or backslashes.
func quoteConnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// setupLogger builds the process logger. An output path that cannot be
// opened is an error rather than a silent fallback to stderr.
func setupLogger(config pgmcp.LoggingConfig) (zerolog.Logger, error) {
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
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("failed to open logging.output %s: %w", config.Output, err)
		}
		output = f
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), nil
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
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return ""
	}
	return string(password)
}
