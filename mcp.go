package pgconnect

import (
	"context"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

// MCPEndpointPath is where the streamable HTTP transport is mounted.
const MCPEndpointPath = "/mcp"

// RegisterMCPTools adds every registry tool to an mcp-go server, for
// transports where mcp-go owns the session (streamable HTTP).
func RegisterMCPTools(mcpServer *server.MCPServer, registry *Registry) {
	for _, kind := range registry.Kinds() {
		tool, handler := registry.Handler(kind)
		mcpServer.AddTool(tool, handler)
	}
}

// NewMCPServer builds an mcp-go server named after config with every
// registry tool registered. Client connections are logged on initialize.
func NewMCPServer(config ServerConfig, registry *Registry, logger zerolog.Logger) *server.MCPServer {
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Str("protocol_version", result.ProtocolVersion).
			Msg("client connected")
	})

	opts := []server.ServerOption{
		server.WithToolCapabilities(false),
		server.WithHooks(hooks),
	}
	if config.Instructions != "" {
		opts = append(opts, server.WithInstructions(config.Instructions))
	}
	mcpServer := server.NewMCPServer(config.Name, config.Version, opts...)
	RegisterMCPTools(mcpServer, registry)
	return mcpServer
}

// NewHTTPHandler serves mcpServer over stateless streamable HTTP at
// MCPEndpointPath, plus the health check when enabled. The health check
// reports process liveness only, not database connectivity.
func NewHTTPHandler(mcpServer *server.MCPServer, config HTTPConfig) http.Handler {
	mux := http.NewServeMux()
	if config.HealthCheckEnabled {
		mux.HandleFunc(config.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	streamable := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath(MCPEndpointPath),
		server.WithStateLess(true),
	)
	mux.Handle(MCPEndpointPath, streamable)
	return mux
}
