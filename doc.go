// Package pgconnect gives an AI agent read-only access to a PostgreSQL
// database through the Model Context Protocol (MCP).
//
// It exposes four tools: query_data_read, get_table_schema,
// get_table_indexes and get_table_functions. Caller SQL passes a lexical
// read-only gate before it reaches the database, then runs in a READ ONLY
// transaction on a connection opened for that call alone. Introspection
// queries are fixed text with bound parameters.
//
// Connection settings are read from the libpq environment variables
// (PGHOST, PGPORT, PGDATABASE, PGUSER, PGPASSWORD, PGSSLMODE,
// PGCONNECT_TIMEOUT) on every call.
//
// # Library Usage
//
//	cfg := pgconnect.DefaultConfig()
//	p, err := pgconnect.NewPostgresConnect(*cfg, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Use directly
//	rows, toolErr := p.ReadQuery(ctx, "SELECT * FROM users LIMIT 10")
//
//	// Or register as MCP tools
//	pgconnect.RegisterMCPTools(mcpServer, pgconnect.NewRegistry(p, logger))
//
// The pgconnect command serves the same registry over stdio with its own
// session handling, or over streamable HTTP.
//
// A failed call never returns a Go error to the client. It returns a
// ToolError payload: {"error": ..., "detail": ..., "hint": ...}.
package pgconnect
