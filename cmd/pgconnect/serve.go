package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	pgconnect "github.com/rickchristie/postgres-connect"
	"github.com/rickchristie/postgres-connect/internal/store"
)

const (
	transportStdio = "stdio"
	transportHTTP  = "http"

	configEnv = "PGCONNECT_CONFIG"
)

type serveOptions struct {
	configPath string
	transport  string
	port       int
	portSet    bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server. The default stdio transport reads one JSON-RPC
message per line from stdin and writes responses to stdout; logs go to
stderr. The http transport serves streamable HTTP at /mcp.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.portSet = cmd.Flags().Changed("port")
			if isTTY(os.Stderr.Fd()) {
				printBanner(os.Stderr, true)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, store.NewPostgres(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to a TOML config file (default $"+configEnv+")")
	cmd.Flags().StringVarP(&opts.transport, "transport", "t", transportStdio, "transport to serve: stdio or http")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "HTTP port, overrides http.port")
	return cmd
}

func runServe(ctx context.Context, opts serveOptions, client store.Client, stdin io.Reader, stdout, stderr io.Writer) error {
	if opts.transport != transportStdio && opts.transport != transportHTTP {
		return fmt.Errorf("unknown transport %q: use %s or %s", opts.transport, transportStdio, transportHTTP)
	}

	config, err := loadServerConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.portSet {
		config.HTTP.Port = opts.port
	}

	logger, closeLog, err := setupLogger(config.Logging, stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := pgconnect.New(*config, client, logger)
	if err != nil {
		return err
	}
	registry := pgconnect.NewRegistry(p, logger)

	if opts.transport == transportHTTP {
		return serveHTTP(ctx, config, registry, logger)
	}
	err = pgconnect.ServeStdio(ctx, config.Server, registry, stdin, stdout, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveHTTP(ctx context.Context, config *pgconnect.Config, registry *pgconnect.Registry, logger zerolog.Logger) error {
	mcpServer := pgconnect.NewMCPServer(config.Server, registry, logger)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", config.HTTP.Port),
		Handler:           pgconnect.NewHTTPHandler(mcpServer, config.HTTP),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.ListenAndServe()
	}()
	logger.Info().
		Int("port", config.HTTP.Port).
		Str("path", pgconnect.MCPEndpointPath).
		Bool("health_check", config.HTTP.HealthCheckEnabled).
		Msg("starting streamable HTTP server")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}

// loadServerConfig loads path, falling back to $PGCONNECT_CONFIG, and then
// to the built-in defaults. An unset server version takes the binary's.
func loadServerConfig(path string) (*pgconnect.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	config, err := pgconnect.Load(path)
	if err != nil {
		return nil, err
	}
	if config.Server.Version == "" || config.Server.Version == pgconnect.DefaultConfig().Server.Version {
		config.Server.Version = Version
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// setupLogger builds the process logger. The returned func closes a log
// file when one was opened.
func setupLogger(config pgconnect.LoggingConfig, stderr io.Writer) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if config.Level != "" {
		parsed, err := zerolog.ParseLevel(config.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid logging.level: %w", err)
		}
		level = parsed
	}

	output := stderr
	closeFn := func() error { return nil }
	switch config.Output {
	case "", "stderr":
	case "stdout", "/dev/stdout":
		return zerolog.Nop(), nil, fmt.Errorf("logging.output cannot be stdout")
	default:
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		output = f
		closeFn = f.Close
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger(), closeFn, nil
}
