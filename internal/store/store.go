// Package store opens short-lived database connections and returns query
// results as ordered rows of tagged values.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Params are the connection parameters for a single call.
type Params struct {
	Host           string
	Port           int
	Database       string
	User           string
	Password       string
	SSLMode        string
	ConnectTimeout time.Duration
}

// ConnString renders p as a keyword/value connection string with every value
// quoted, so passwords containing spaces or quotes survive.
func (p Params) ConnString() string {
	parts := []string{}
	add := func(key, value string) {
		if value == "" {
			return
		}
		escaped := strings.ReplaceAll(value, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `'`, `\'`)
		parts = append(parts, fmt.Sprintf("%s='%s'", key, escaped))
	}
	add("host", p.Host)
	if p.Port > 0 {
		add("port", strconv.Itoa(p.Port))
	}
	add("dbname", p.Database)
	add("user", p.User)
	add("password", p.Password)
	add("sslmode", p.SSLMode)
	if p.ConnectTimeout > 0 {
		secs := int(p.ConnectTimeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		add("connect_timeout", strconv.Itoa(secs))
	}
	return strings.Join(parts, " ")
}

// Redacted renders p for logs without the password.
func (p Params) Redacted() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s", p.Host, p.Port, p.Database, p.User)
}

// Client opens connections. Implementations must not pool: every Connect
// returns a fresh connection that the caller closes.
type Client interface {
	Connect(ctx context.Context, params Params) (Conn, error)
}

// Conn is one open connection.
type Conn interface {
	// Query runs sql with positional args and returns every row. The
	// statement runs in a read-only transaction that is always rolled back.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	Close(ctx context.Context) error
}

// ConnectionError reports that the store could not be reached or dropped
// the connection mid-call.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return e.Err.Error() }
func (e *ConnectionError) Unwrap() error { return e.Err }

// ExecutionError reports that the store rejected a statement.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string { return e.Err.Error() }
func (e *ExecutionError) Unwrap() error { return e.Err }

// IsConnectionError reports whether err is, or wraps, a ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// Run connects, runs one query, and closes the connection on every path.
func Run(ctx context.Context, client Client, params Params, sql string, args ...any) (Rows, error) {
	conn, err := client.Connect(ctx, params)
	if err != nil {
		if !IsConnectionError(err) {
			err = &ConnectionError{Err: err}
		}
		return nil, err
	}
	defer conn.Close(context.WithoutCancel(ctx))

	rows, err := conn.Query(ctx, sql, args...)
	if err != nil {
		var ce *ConnectionError
		var ee *ExecutionError
		if !errors.As(err, &ce) && !errors.As(err, &ee) {
			err = &ExecutionError{Err: err}
		}
		return nil, err
	}
	return rows, nil
}
