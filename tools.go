package pgconnect

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/rickchristie/postgres-connect/internal/session"
)

// ToolKind enumerates the tools this server exposes.
type ToolKind int

const (
	ToolReadQuery ToolKind = iota
	ToolTableSchema
	ToolTableIndexes
	ToolTableFunctions
)

// String returns the wire name of the tool.
func (k ToolKind) String() string {
	switch k {
	case ToolReadQuery:
		return "query_data_read"
	case ToolTableSchema:
		return "get_table_schema"
	case ToolTableIndexes:
		return "get_table_indexes"
	case ToolTableFunctions:
		return "get_table_functions"
	default:
		return fmt.Sprintf("ToolKind(%d)", int(k))
	}
}

type toolFunc func(ctx context.Context, args map[string]any) (any, *ToolError)

type toolEntry struct {
	kind    ToolKind
	tool    mcp.Tool
	handler toolFunc
}

// Registry maps tool names to handlers. It is built once and never mutated,
// so it is safe for concurrent use.
type Registry struct {
	entries []toolEntry
	byName  map[string]int
	logger  zerolog.Logger
}

var _ session.Tools = (*Registry)(nil)

// NewRegistry registers the four tools backed by p.
func NewRegistry(p *PostgresConnect, logger zerolog.Logger) *Registry {
	if p == nil {
		panic("pgconnect: NewRegistry requires a non-nil PostgresConnect")
	}
	return newRegistry(logger,
		toolEntry{
			kind: ToolReadQuery,
			tool: mcp.NewTool(ToolReadQuery.String(),
				mcp.WithDescription("Run one read-only SELECT or WITH query and return the rows as JSON. Statements containing ';' or write keywords are rejected."),
				mcp.WithString("sql_query",
					mcp.Required(),
					mcp.Description("A single SELECT or WITH statement, without a trailing semicolon"),
				),
				readOnlyAnnotations(false),
			),
			handler: func(ctx context.Context, args map[string]any) (any, *ToolError) {
				sql, _ := args["sql_query"].(string)
				rows, te := p.ReadQuery(ctx, sql)
				if te != nil {
					return nil, te
				}
				return rows, nil
			},
		},
		toolEntry{
			kind: ToolTableSchema,
			tool: mcp.NewTool(ToolTableSchema.String(),
				mcp.WithDescription("Describe a table's columns and its primary key, foreign key and unique constraints."),
				tableNameArg(),
				schemaNameArg(),
				readOnlyAnnotations(true),
			),
			handler: func(ctx context.Context, args map[string]any) (any, *ToolError) {
				table, schema := tableArgs(args)
				desc, te := p.TableSchema(ctx, table, schema)
				if te != nil {
					return nil, te
				}
				return desc, nil
			},
		},
		toolEntry{
			kind: ToolTableIndexes,
			tool: mcp.NewTool(ToolTableIndexes.String(),
				mcp.WithDescription("List a table's indexes with their definitions."),
				tableNameArg(),
				schemaNameArg(),
				readOnlyAnnotations(true),
			),
			handler: func(ctx context.Context, args map[string]any) (any, *ToolError) {
				table, schema := tableArgs(args)
				rows, te := p.TableIndexes(ctx, table, schema)
				if te != nil {
					return nil, te
				}
				return rows, nil
			},
		},
		toolEntry{
			kind: ToolTableFunctions,
			tool: mcp.NewTool(ToolTableFunctions.String(),
				mcp.WithDescription("List the trigger functions attached to a table, with each trigger's definition."),
				tableNameArg(),
				schemaNameArg(),
				readOnlyAnnotations(true),
			),
			handler: func(ctx context.Context, args map[string]any) (any, *ToolError) {
				table, schema := tableArgs(args)
				rows, te := p.TableFunctions(ctx, table, schema)
				if te != nil {
					return nil, te
				}
				return rows, nil
			},
		},
	)
}

// newRegistry panics when two entries share a name.
func newRegistry(logger zerolog.Logger, entries ...toolEntry) *Registry {
	r := &Registry{
		entries: entries,
		byName:  make(map[string]int, len(entries)),
		logger:  logger,
	}
	for i, e := range entries {
		if e.tool.Name == "" {
			panic(fmt.Sprintf("pgconnect: tool %s has an empty name", e.kind))
		}
		if _, dup := r.byName[e.tool.Name]; dup {
			panic(fmt.Sprintf("pgconnect: duplicate tool name %q", e.tool.Name))
		}
		if e.handler == nil {
			panic(fmt.Sprintf("pgconnect: tool %q has no handler", e.tool.Name))
		}
		r.byName[e.tool.Name] = i
	}
	return r
}

func tableNameArg() mcp.ToolOption {
	return mcp.WithString("table_name",
		mcp.Required(),
		mcp.Description("The table name"),
	)
}

func schemaNameArg() mcp.ToolOption {
	return mcp.WithString("schema_name",
		mcp.Description("The schema name (defaults to the connection's current schema)"),
	)
}

func readOnlyAnnotations(idempotent bool) mcp.ToolOption {
	return func(t *mcp.Tool) {
		mcp.WithReadOnlyHintAnnotation(true)(t)
		mcp.WithDestructiveHintAnnotation(false)(t)
		mcp.WithIdempotentHintAnnotation(idempotent)(t)
		mcp.WithOpenWorldHintAnnotation(false)(t)
	}
}

// tableArgs reads already validated arguments.
func tableArgs(args map[string]any) (string, *string) {
	table, _ := args["table_name"].(string)
	var schema *string
	if s, ok := args["schema_name"].(string); ok {
		schema = &s
	}
	return table, schema
}

// List returns tool definitions in registration order.
func (r *Registry) List() []mcp.Tool {
	tools := make([]mcp.Tool, len(r.entries))
	for i, e := range r.entries {
		tools[i] = e.tool
	}
	return tools
}

// Kinds returns the registered kinds in registration order.
func (r *Registry) Kinds() []ToolKind {
	kinds := make([]ToolKind, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.kind
	}
	return kinds
}

// Call looks the tool up by name and runs it. An unknown name returns
// session.ErrToolNotFound; every other failure is a ToolError payload.
func (r *Registry) Call(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	i, ok := r.byName[req.Params.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrToolNotFound, req.Params.Name)
	}
	return r.loggedToolHandler(r.entries[i])(ctx, req)
}

// Handler returns the mcp-go handler for kind, for the HTTP transport.
func (r *Registry) Handler(kind ToolKind) (mcp.Tool, server.ToolHandlerFunc) {
	for _, e := range r.entries {
		if e.kind == kind {
			return e.tool, r.loggedToolHandler(e)
		}
	}
	panic(fmt.Sprintf("pgconnect: tool %s is not registered", kind))
}

// loggedToolHandler wraps a tool handler to log request and response lengths.
func (r *Registry) loggedToolHandler(e toolEntry) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		reqLen := requestLength(req)
		result := r.invoke(ctx, e, req)
		r.logger.Info().
			Str("tool", e.tool.Name).
			Int("request_bytes", reqLen).
			Int("response_bytes", resultLength(result)).
			Dur("duration", time.Since(start)).
			Bool("is_error", result.IsError).
			Msg("tool call")
		return result, nil
	}
}

func (r *Registry) invoke(ctx context.Context, e toolEntry, req mcp.CallToolRequest) (result *mcp.CallToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().
				Str("tool", e.tool.Name).
				Bytes("stack", debug.Stack()).
				Msgf("panic recovered: %v", rec)
			result = errorResult(&ToolError{
				Message:  msgInternal,
				Detail:   fmt.Sprint(rec),
				category: CategoryInternal,
			})
		}
	}()

	args, te := validateArguments(e.tool, req.Params.Arguments)
	if te != nil {
		r.logger.Info().Str("tool", e.tool.Name).Str("detail", te.Detail).Msg("invalid arguments")
		return errorResult(te)
	}

	payload, te := e.handler(ctx, args)
	if te != nil {
		return errorResult(te)
	}
	text, err := marshalPayload(payload)
	if err != nil {
		r.logger.Error().Err(err).Str("tool", e.tool.Name).Msg("failed to marshal result")
		return errorResult(&ToolError{Message: msgInternal, Detail: err.Error(), category: CategoryInternal})
	}
	return mcp.NewToolResultText(text)
}

// validateArguments checks args against the tool's declared input schema:
// an object, required properties present, declared types respected, and no
// undeclared properties. A null optional property counts as absent.
func validateArguments(tool mcp.Tool, raw any) (map[string]any, *ToolError) {
	var args map[string]any
	switch v := raw.(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = v
	default:
		return nil, validationError(msgInvalidArguments, "arguments must be a JSON object")
	}

	var problems []string
	for _, name := range tool.InputSchema.Required {
		if v, ok := args[name]; !ok || v == nil {
			problems = append(problems, fmt.Sprintf("missing required argument %q", name))
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	clean := make(map[string]any, len(args))
	for _, name := range names {
		v := args[name]
		prop, declared := tool.InputSchema.Properties[name].(map[string]any)
		if !declared {
			problems = append(problems, fmt.Sprintf("unknown argument %q", name))
			continue
		}
		if v == nil {
			continue
		}
		want, _ := prop["type"].(string)
		if !hasJSONType(v, want) {
			problems = append(problems, fmt.Sprintf("argument %q must be a %s", name, want))
			continue
		}
		clean[name] = v
	}

	if len(problems) > 0 {
		return nil, validationError(msgInvalidArguments, strings.Join(problems, "; "))
	}
	return clean, nil
}

func hasJSONType(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "number":
		switch v.(type) {
		case float64, json.Number:
			return true
		}
		return false
	case "":
		return true
	default:
		return false
	}
}

// marshalPayload renders results with two-space indentation.
func marshalPayload(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func errorResult(te *ToolError) *mcp.CallToolResult {
	text, err := marshalPayload(te)
	if err != nil {
		text = fmt.Sprintf(`{"error": %q}`, te.Message)
	}
	return mcp.NewToolResultError(text)
}

// requestLength returns the JSON-encoded byte length of the request arguments.
func requestLength(req mcp.CallToolRequest) int {
	if req.Params.Arguments == nil {
		return 0
	}
	b, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return 0
	}
	return len(b)
}

// resultLength returns the total byte length of text content in a CallToolResult.
func resultLength(result *mcp.CallToolResult) int {
	if result == nil {
		return 0
	}
	total := 0
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			total += len(tc.Text)
		}
	}
	return total
}
