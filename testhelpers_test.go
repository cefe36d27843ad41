package pgconnect_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rickchristie/govner/pgflock/client"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	pgconnect "github.com/rickchristie/postgres-connect"
	"github.com/rickchristie/postgres-connect/internal/store"
)

const (
	pgflockLockerPort = 9776
	pgflockPassword   = "pgflock"
)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func defaultConfig() pgconnect.Config {
	return *pgconnect.DefaultConfig()
}

func staticResolver(params store.Params) pgconnect.ConnectionResolver {
	return func() (store.Params, error) { return params, nil }
}

func newTestInstance(t *testing.T, config pgconnect.Config, client store.Client, opts ...pgconnect.Option) *pgconnect.PostgresConnect {
	t.Helper()
	opts = append([]pgconnect.Option{pgconnect.WithConnectionResolver(staticResolver(store.Params{Host: "test"}))}, opts...)
	p, err := pgconnect.New(config, client, testLogger(), opts...)
	if err != nil {
		t.Fatalf("failed to create PostgresConnect: %v", err)
	}
	return p
}

// sqliteClient runs queries on a fresh in-memory SQLite database per
// connection, so read-path tests exercise a real SQL engine without a server.
type sqliteClient struct {
	// setup runs on every new connection before the query.
	setup []string
}

func (c *sqliteClient) Connect(ctx context.Context, params store.Params) (store.Conn, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, &store.ConnectionError{Err: err}
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range c.setup {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, &store.ConnectionError{Err: err}
		}
	}
	return &sqliteConn{db: db}, nil
}

type sqliteConn struct {
	db *sql.DB
}

func (c *sqliteConn) Query(ctx context.Context, query string, args ...any) (store.Rows, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &store.ExecutionError{Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &store.ExecutionError{Err: err}
	}
	var result store.Rows
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &store.ExecutionError{Err: err}
		}
		row := store.NewRow(len(cols))
		for i, col := range cols {
			row.Set(col, store.FromDriver(values[i]))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.ExecutionError{Err: err}
	}
	return result, nil
}

func (c *sqliteConn) Close(ctx context.Context) error {
	return c.db.Close()
}

// scriptedClient records calls and returns canned results.
type scriptedClient struct {
	mu       sync.Mutex
	down     atomic.Bool
	queryErr map[string]error
	rows     map[string]store.Rows
	block    bool
	calls    []scriptedCall
	opened   int
	closed   int
}

type scriptedCall struct {
	params store.Params
	sql    string
	args   []any
}

func newScriptedClient() *scriptedClient {
	return &scriptedClient{
		queryErr: map[string]error{},
		rows:     map[string]store.Rows{},
	}
}

func (c *scriptedClient) Connect(ctx context.Context, params store.Params) (store.Conn, error) {
	if c.down.Load() {
		return nil, errors.New(`failed to connect to host=unreachable user=postgres database=postgres: dial error (dial tcp: lookup unreachable: no such host)`)
	}
	c.mu.Lock()
	c.opened++
	c.mu.Unlock()
	return &scriptedConn{client: c, params: params}, nil
}

func (c *scriptedClient) snapshot() (calls []scriptedCall, opened, closed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]scriptedCall(nil), c.calls...), c.opened, c.closed
}

type scriptedConn struct {
	client *scriptedClient
	params store.Params
}

func (c *scriptedConn) Query(ctx context.Context, query string, args ...any) (store.Rows, error) {
	c.client.mu.Lock()
	c.client.calls = append(c.client.calls, scriptedCall{params: c.params, sql: query, args: args})
	err := c.client.queryErr[query]
	rows := c.client.rows[query]
	block := c.client.block
	c.client.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, &store.ConnectionError{Err: ctx.Err()}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *scriptedConn) Close(ctx context.Context) error {
	c.client.mu.Lock()
	c.client.closed++
	c.client.mu.Unlock()
	return nil
}

func rowOf(pairs ...any) *store.Row {
	row := store.NewRow(len(pairs) / 2)
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Set(pairs[i].(string), pairs[i+1].(store.Value))
	}
	return row
}

// acquireTestDB locks a PostgreSQL database from pgflock. Tests skip when
// no locker is running.
func acquireTestDB(t *testing.T) string {
	t.Helper()
	connStr, err := client.Lock(pgflockLockerPort, t.Name(), pgflockPassword)
	if err != nil {
		t.Skipf("pgflock locker not available: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Unlock(pgflockLockerPort, pgflockPassword, connStr)
	})
	return connStr
}

// paramsFromConnString converts a pgflock connection string into the
// parameters the engine resolves per call.
func paramsFromConnString(t *testing.T, connStr string) store.Params {
	t.Helper()
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	sslMode := "disable"
	if cfg.TLSConfig != nil {
		sslMode = "prefer"
	}
	return store.Params{
		Host:           cfg.Host,
		Port:           int(cfg.Port),
		Database:       cfg.Database,
		User:           cfg.User,
		Password:       cfg.Password,
		SSLMode:        sslMode,
		ConnectTimeout: 5 * time.Second,
	}
}

// setupDB runs DDL/DML with a plain pgx connection, since the engine
// itself never writes.
func setupDB(t *testing.T, connStr string, statements ...string) {
	t.Helper()
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		t.Fatalf("setup connect failed: %v", err)
	}
	defer conn.Close(ctx)
	for _, stmt := range statements {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			t.Fatalf("setup failed for %q: %v", stmt, err)
		}
	}
}

// newPostgresInstance returns an engine wired to a pgflock database through
// the real pgx store client.
func newPostgresInstance(t *testing.T, config pgconnect.Config, setup ...string) (*pgconnect.PostgresConnect, string) {
	t.Helper()
	connStr := acquireTestDB(t)
	if len(setup) > 0 {
		setupDB(t, connStr, setup...)
	}
	p, err := pgconnect.New(config, store.NewPostgres(), testLogger(),
		pgconnect.WithConnectionResolver(staticResolver(paramsFromConnString(t, connStr))))
	if err != nil {
		t.Fatalf("failed to create PostgresConnect: %v", err)
	}
	return p, connStr
}
