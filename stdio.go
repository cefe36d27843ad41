package pgconnect

import (
	"context"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/rickchristie/postgres-connect/internal/session"
)

func sessionConfig(config ServerConfig) session.Config {
	return session.Config{
		ServerInfo: mcp.Implementation{
			Name:    config.Name,
			Version: config.Version,
		},
		Instructions:                config.Instructions,
		ProtocolVersions:            config.ProtocolVersions,
		AllowCallsBeforeInitialized: config.AllowCallsBeforeInitialized,
	}
}

// ServeStdio runs one line-delimited session over in and out. It returns nil
// when in is closed and ctx.Err() when ctx is cancelled first. Nothing else
// may write to out while it runs.
func ServeStdio(ctx context.Context, config ServerConfig, registry *Registry, in io.Reader, out io.Writer, logger zerolog.Logger) error {
	s := session.New(sessionConfig(config), registry, logger)
	logger.Info().
		Str("server", config.Name).
		Strs("protocol_versions", config.ProtocolVersions).
		Msg("serving stdio session")
	err := s.Serve(ctx, session.NewTransport(in, out))
	logger.Info().Str("state", s.State().String()).Msg("stdio session ended")
	return err
}
