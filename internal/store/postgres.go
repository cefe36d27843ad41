package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres is a Client backed by single pgx connections.
type Postgres struct{}

// NewPostgres returns a Postgres client.
func NewPostgres() *Postgres {
	return &Postgres{}
}

// Connect opens a new connection. Statements use the extended protocol with
// an unnamed statement, so multi-statement text is refused by the server.
func (p *Postgres) Connect(ctx context.Context, params Params) (Conn, error) {
	config, err := pgx.ParseConfig(params.ConnString())
	if err != nil {
		return nil, &ConnectionError{Err: fmt.Errorf("invalid connection parameters: %w", err)}
	}
	config.DefaultQueryExecMode = pgx.QueryExecModeExec
	if params.ConnectTimeout > 0 {
		config.ConnectTimeout = params.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, config)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	return &pgConn{conn: conn}, nil
}

type pgConn struct {
	conn *pgx.Conn
}

func (c *pgConn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	tx, err := c.conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, c.wrap(err)
	}
	// rollback with a detached context so a cancelled call still releases the tx
	defer tx.Rollback(context.WithoutCancel(ctx))

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, c.wrap(err)
	}
	result, err := collectRows(rows)
	if err != nil {
		return nil, c.wrap(err)
	}
	return result, nil
}

func (c *pgConn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// wrap tags err as a connection failure when the link is gone, otherwise as
// an execution failure.
func (c *pgConn) wrap(err error) error {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || c.conn.IsClosed() {
		return &ConnectionError{Err: err}
	}
	return &ExecutionError{Err: err}
}

// collectRows reads every row and converts driver values.
func collectRows(rows pgx.Rows) (Rows, error) {
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	result := make(Rows, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := NewRow(len(fieldDescs))
		for i, fd := range fieldDescs {
			row.Set(fd.Name, FromColumn(fd.DataTypeOID, values[i]))
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
