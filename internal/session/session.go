// Package session implements the server side of a line-delimited MCP
// JSON-RPC session: the initialize handshake, request/response correlation,
// and dispatch of tools/list and tools/call.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"slices"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

// State is the handshake state of a session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Method names handled by the session.
const (
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodCancelled   = "notifications/cancelled"
	MethodPing        = "ping"
	MethodToolsList   = "tools/list"
	MethodToolsCall   = "tools/call"
)

// ErrToolNotFound is returned by Tools.Call for an unregistered name.
var ErrToolNotFound = errors.New("tool not found")

// Tools lists and invokes the tools exposed by the session.
type Tools interface {
	List() []mcp.Tool
	Call(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Config configures a Session.
type Config struct {
	ServerInfo   mcp.Implementation
	Instructions string
	// ProtocolVersions lists accepted versions, most preferred first.
	ProtocolVersions []string
	// AllowCallsBeforeInitialized serves tools/list and tools/call before
	// the client has sent notifications/initialized.
	AllowCallsBeforeInitialized bool
}

// Session is one client conversation. Messages are processed one at a time.
type Session struct {
	config Config
	tools  Tools
	logger zerolog.Logger

	mu              sync.Mutex
	state           State
	protocolVersion string
	client          mcp.Implementation
}

// New creates a Session in the Uninitialized state. Panics on invalid config.
func New(config Config, tools Tools, logger zerolog.Logger) *Session {
	if tools == nil {
		panic("session: tools must be non-nil")
	}
	if len(config.ProtocolVersions) == 0 {
		panic("session: at least one protocol version is required")
	}
	if config.ServerInfo.Name == "" {
		panic("session: server name must be non-empty")
	}
	return &Session{
		config: config,
		tools:  tools,
		logger: logger,
		state:  Uninitialized,
	}
}

// State returns the current handshake state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProtocolVersion returns the negotiated version, or "" before initialize.
func (s *Session) ProtocolVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolVersion
}

// Client returns the client implementation reported during initialize.
func (s *Session) Client() mcp.Implementation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Serve reads messages from t until input ends or ctx is cancelled. It
// returns nil on end of input.
//
// After cancellation the reader goroutine stays blocked in ReadLine until
// the input is closed. Stdio input lives as long as the process, so this
// does not leak across sessions.
func (s *Session) Serve(ctx context.Context, t *Transport) error {
	type readResult struct {
		line []byte
		err  error
	}
	next := make(chan readResult)
	go func() {
		defer close(next)
		for {
			line, err := t.ReadLine()
			select {
			case next <- readResult{line: line, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-next:
			if !ok {
				return ctx.Err()
			}
			if r.err != nil {
				if errors.Is(r.err, io.EOF) {
					s.logger.Info().Msg("input closed, ending session")
					return nil
				}
				return r.err
			}
			if resp := s.Handle(ctx, r.line); resp != nil {
				if err := t.Write(resp); err != nil {
					return err
				}
			}
		}
	}
}

// envelope is the union of every JSON-RPC message shape.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// parseRequestID accepts a string or an integer id. Integers keep their
// exact digits so ids beyond 2^53 are echoed unchanged.
func parseRequestID(raw json.RawMessage) (mcp.RequestId, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return mcp.RequestId{}, err
	}
	switch v := v.(type) {
	case string:
		return mcp.NewRequestId(v), nil
	case json.Number:
		if strings.ContainsAny(v.String(), ".eE") {
			return mcp.RequestId{}, fmt.Errorf("id %s is not an integer", v)
		}
		return mcp.NewRequestId(v), nil
	default:
		return mcp.RequestId{}, fmt.Errorf("id has type %T", v)
	}
}

// Handle processes one line and returns the message to send back, or nil
// when the line needs no reply (notifications, client responses, blanks).
func (s *Session) Handle(ctx context.Context, line []byte) any {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	nullID := mcp.NewRequestId(nil)

	if line[0] == '[' {
		s.logger.Warn().Msg("rejected batch message")
		return mcp.NewJSONRPCError(nullID, mcp.INVALID_REQUEST, "Invalid Request: batch messages are not supported", nil)
	}

	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		if json.Valid(line) {
			s.logger.Warn().Err(err).Msg("message is not a JSON object")
			return mcp.NewJSONRPCError(nullID, mcp.INVALID_REQUEST, "Invalid Request: message must be a JSON object", nil)
		}
		s.logger.Warn().Err(err).Int("bytes", len(line)).Msg("malformed message")
		return mcp.NewJSONRPCError(nullID, mcp.PARSE_ERROR, "Parse error", nil)
	}

	hasID := len(env.ID) > 0
	id := nullID
	if hasID {
		parsed, err := parseRequestID(env.ID)
		if err != nil {
			s.logger.Warn().RawJSON("id", env.ID).Err(err).Msg("invalid request id")
			return mcp.NewJSONRPCError(nullID, mcp.INVALID_REQUEST, "Invalid Request: id must be a string or integer", nil)
		}
		id = parsed
	}

	if env.JSONRPC != mcp.JSONRPC_VERSION {
		s.logger.Warn().Str("jsonrpc", env.JSONRPC).Msg("unsupported jsonrpc version")
		if !hasID && env.Method != "" {
			return nil
		}
		return mcp.NewJSONRPCError(id, mcp.INVALID_REQUEST, `Invalid Request: jsonrpc must be "2.0"`, nil)
	}

	if env.Method == "" {
		if env.Result != nil || env.Error != nil {
			s.logger.Debug().Str("id", id.String()).Msg("ignoring response from client")
			return nil
		}
		return mcp.NewJSONRPCError(id, mcp.INVALID_REQUEST, "Invalid Request: missing method", nil)
	}

	if !hasID {
		s.handleNotification(env.Method)
		return nil
	}
	return s.handleRequest(ctx, id, env.Method, env.Params)
}

func (s *Session) handleNotification(method string) {
	switch method {
	case MethodInitialized:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.state != Initializing {
			s.logger.Warn().
				Str("state", s.state.String()).
				Msg("initialized notification ignored")
			return
		}
		s.state = Ready
		s.logger.Info().
			Str("protocol_version", s.protocolVersion).
			Str("client_name", s.client.Name).
			Msg("session ready")
	case MethodCancelled:
		// requests run to completion before the next line is read
		s.logger.Debug().Msg("cancellation notification ignored")
	default:
		s.logger.Debug().Str("method", method).Msg("ignoring unknown notification")
	}
}

func (s *Session) handleRequest(ctx context.Context, id mcp.RequestId, method string, params json.RawMessage) any {
	switch method {
	case MethodInitialize:
		return s.initialize(id, params)
	case MethodPing:
		return mcp.NewJSONRPCResultResponse(id, mcp.EmptyResult{})
	case MethodToolsList:
		if resp := s.requireReady(id, method); resp != nil {
			return resp
		}
		return mcp.NewJSONRPCResultResponse(id, mcp.NewListToolsResult(s.tools.List(), ""))
	case MethodToolsCall:
		if resp := s.requireReady(id, method); resp != nil {
			return resp
		}
		return s.callTool(ctx, id, params)
	default:
		s.logger.Warn().Str("method", method).Msg("method not found")
		return mcp.NewJSONRPCError(id, mcp.METHOD_NOT_FOUND, fmt.Sprintf("Method not found: %s", method), nil)
	}
}

type unsupportedVersionData struct {
	Supported []string `json:"supported"`
	Requested string   `json:"requested"`
}

func (s *Session) initialize(id mcp.RequestId, params json.RawMessage) any {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Uninitialized {
		s.logger.Warn().Str("state", s.state.String()).Msg("repeated initialize rejected")
		return mcp.NewJSONRPCError(id, mcp.INVALID_REQUEST, "Invalid Request: session already initialized", nil)
	}

	var p mcp.InitializeParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil || p.ProtocolVersion == "" {
		return mcp.NewJSONRPCError(id, mcp.INVALID_PARAMS, "Invalid params: initialize requires protocolVersion", nil)
	}

	if !slices.Contains(s.config.ProtocolVersions, p.ProtocolVersion) {
		s.logger.Warn().
			Str("requested", p.ProtocolVersion).
			Strs("supported", s.config.ProtocolVersions).
			Msg("unsupported protocol version")
		return mcp.NewJSONRPCError(id, mcp.INVALID_PARAMS, "Unsupported protocol version", unsupportedVersionData{
			Supported: s.config.ProtocolVersions,
			Requested: p.ProtocolVersion,
		})
	}

	s.protocolVersion = p.ProtocolVersion
	s.client = p.ClientInfo
	s.state = Initializing
	s.logger.Info().
		Str("client_name", p.ClientInfo.Name).
		Str("client_version", p.ClientInfo.Version).
		Str("protocol_version", p.ProtocolVersion).
		Msg("client connected (MCP initialize)")

	result := mcp.InitializeResult{
		ProtocolVersion: p.ProtocolVersion,
		ServerInfo:      s.config.ServerInfo,
		Instructions:    s.config.Instructions,
	}
	result.Capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{}
	return mcp.NewJSONRPCResultResponse(id, result)
}

func (s *Session) requireReady(id mcp.RequestId, method string) any {
	state := s.State()
	if state == Ready || s.config.AllowCallsBeforeInitialized {
		return nil
	}
	s.logger.Warn().
		Str("method", method).
		Str("state", state.String()).
		Msg("request before initialization rejected")
	return mcp.NewJSONRPCError(id, mcp.INVALID_REQUEST, "Invalid Request: session not initialized", nil)
}

func (s *Session) callTool(ctx context.Context, id mcp.RequestId, params json.RawMessage) any {
	var p mcp.CallToolParams
	if len(params) == 0 || json.Unmarshal(params, &p) != nil || p.Name == "" {
		return mcp.NewJSONRPCError(id, mcp.INVALID_PARAMS, "Invalid params: tools/call requires a tool name", nil)
	}

	req := mcp.CallToolRequest{Params: p}
	req.Method = MethodToolsCall

	result, err := s.invoke(ctx, req)
	switch {
	case errors.Is(err, ErrToolNotFound):
		s.logger.Warn().Str("tool", p.Name).Msg("unknown tool")
		return mcp.NewJSONRPCError(id, mcp.INVALID_PARAMS, fmt.Sprintf("Unknown tool: %s", p.Name), nil)
	case err != nil:
		s.logger.Error().Err(err).Str("tool", p.Name).Msg("tool call failed")
		return mcp.NewJSONRPCError(id, mcp.INTERNAL_ERROR, "Internal error", err.Error())
	}
	return mcp.NewJSONRPCResultResponse(id, result)
}

// invoke runs the tool, turning a panic into an error so one bad call
// cannot end the session.
func (s *Session) invoke(ctx context.Context, req mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("tool", req.Params.Name).
				Bytes("stack", debug.Stack()).
				Msgf("panic recovered: %v", r)
			result = nil
			err = fmt.Errorf("panic in tool %s: %v", req.Params.Name, r)
		}
	}()
	result, err = s.tools.Call(ctx, req)
	if err == nil && result == nil {
		err = fmt.Errorf("tool %s returned no result", req.Params.Name)
	}
	return result, err
}
