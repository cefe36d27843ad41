package pgconnect_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	pgconnect "github.com/rickchristie/postgres-connect"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pgconnect.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := pgconnect.DefaultConfig()
	if cfg.Server.Name != "postgres-connect" {
		t.Fatalf("unexpected server name %q", cfg.Server.Name)
	}
	if cfg.Server.ProtocolVersions[0] != mcp.LATEST_PROTOCOL_VERSION {
		t.Fatalf("expected latest protocol version first, got %v", cfg.Server.ProtocolVersions)
	}
	if cfg.Query.MaxSQLLength != 100000 {
		t.Fatalf("unexpected max_sql_length %d", cfg.Query.MaxSQLLength)
	}
	if cfg.Query.StrictParse || cfg.RedactErrorDetail || cfg.Server.AllowCallsBeforeInitialized {
		t.Fatal("expected opt-in features to default off")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}

	// Mutating one default must not leak into the next.
	cfg.Server.ProtocolVersions[0] = "changed"
	if pgconnect.DefaultConfig().Server.ProtocolVersions[0] == "changed" {
		t.Fatal("DefaultConfig shares slices between calls")
	}
}

func TestLoadMissingAndEmptyPath(t *testing.T) {
	t.Parallel()
	for _, path := range []string{"", filepath.Join(t.TempDir(), "absent.toml")} {
		cfg, err := pgconnect.Load(path)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if cfg.Server.Name != "postgres-connect" {
			t.Fatalf("expected defaults for %q", path)
		}
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
redact_error_detail = true

[server]
name = "warehouse"
instructions = "Read-only access to the warehouse."
protocol_versions = ["2025-03-26"]
allow_calls_before_initialized = true

[query]
strict_parse = true
default_timeout_seconds = 30

[[query.timeout_rules]]
pattern = "(?i)pg_stat"
timeout_seconds = 5

[[error_prompts]]
pattern = "(?i)permission denied"
message = "Ask for a grant."

[[sanitization]]
pattern = "\\d{16}"
replacement = "[card]"
description = "card numbers"

[logging]
level = "debug"
format = "text"
`)
	cfg, err := pgconnect.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.RedactErrorDetail || cfg.Server.Name != "warehouse" || !cfg.Server.AllowCallsBeforeInitialized {
		t.Fatalf("unexpected top-level values %+v", cfg)
	}
	if len(cfg.Server.ProtocolVersions) != 1 || cfg.Server.ProtocolVersions[0] != "2025-03-26" {
		t.Fatalf("unexpected protocol versions %v", cfg.Server.ProtocolVersions)
	}
	if !cfg.Query.StrictParse || cfg.Query.DefaultTimeoutSeconds != 30 {
		t.Fatalf("unexpected query config %+v", cfg.Query)
	}
	if cfg.Query.MaxSQLLength != 100000 {
		t.Fatalf("expected default max_sql_length to survive, got %d", cfg.Query.MaxSQLLength)
	}
	if len(cfg.Query.TimeoutRules) != 1 || cfg.Query.TimeoutRules[0].TimeoutSeconds != 5 {
		t.Fatalf("unexpected timeout rules %+v", cfg.Query.TimeoutRules)
	}
	if len(cfg.ErrorPrompts) != 1 || cfg.Sanitization[0].Pattern != `\d{16}` {
		t.Fatalf("unexpected rules %+v %+v", cfg.ErrorPrompts, cfg.Sanitization)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" || cfg.Logging.Output != "stderr" {
		t.Fatalf("unexpected logging %+v", cfg.Logging)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadParseError(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "[server\nname = ")
	_, err := pgconnect.Load(path)
	if err == nil || !strings.Contains(err.Error(), "parsing config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidateAggregatesProblems(t *testing.T) {
	t.Parallel()
	cfg := pgconnect.DefaultConfig()
	cfg.Server.Name = " "
	cfg.Server.ProtocolVersions = nil
	cfg.Query.MaxSQLLength = -1
	cfg.Query.TimeoutRules = []pgconnect.TimeoutRule{{Pattern: "", TimeoutSeconds: -1}}
	cfg.Logging.Level = "loud"
	cfg.Logging.Format = "xml"
	cfg.Logging.Output = "stdout"
	cfg.HTTP.Port = 70000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"server.name",
		"server.protocol_versions",
		"query.max_sql_length",
		"query.timeout_rules[0].pattern",
		"query.timeout_rules[0].timeout_seconds",
		"logging.level",
		"logging.format",
		"logging.output cannot be stdout",
		"http.port",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

// Environment tests mutate process env and cannot run in parallel.

func TestLoadConnectionConfigDefaults(t *testing.T) {
	for _, key := range []string{"PGDATABASE", "PGUSER", "PGPASSWORD", "PGHOST", "PGPORT", "PGSSLMODE", "PGCONNECT_TIMEOUT"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	c, err := pgconnect.LoadConnectionConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := pgconnect.ConnectionConfig{
		Database:              "postgres",
		User:                  "postgres",
		Password:              "password",
		Host:                  "localhost",
		Port:                  5432,
		ConnectTimeoutSeconds: 10,
	}
	if c != want {
		t.Fatalf("expected %+v, got %+v", want, c)
	}
	params := c.Params()
	if params.ConnectTimeout != 10*time.Second || params.Port != 5432 || params.SSLMode != "" {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestLoadConnectionConfigFromEnv(t *testing.T) {
	t.Setenv("PGDATABASE", "analytics")
	t.Setenv("PGUSER", "reader")
	t.Setenv("PGPASSWORD", "s3cret")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PGPORT", "6432")
	t.Setenv("PGSSLMODE", "require")
	t.Setenv("PGCONNECT_TIMEOUT", "3")

	params, err := pgconnect.EnvResolver()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Database != "analytics" || params.User != "reader" || params.Password != "s3cret" ||
		params.Host != "db.internal" || params.Port != 6432 || params.SSLMode != "require" ||
		params.ConnectTimeout != 3*time.Second {
		t.Fatalf("unexpected params %+v", params)
	}

	// Resolved on every call: a changed env is seen without restarting.
	t.Setenv("PGHOST", "replica.internal")
	params, err = pgconnect.EnvResolver()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Host != "replica.internal" {
		t.Fatalf("expected new host, got %q", params.Host)
	}
}

func TestLoadConnectionConfigInvalidPort(t *testing.T) {
	t.Setenv("PGPORT", "not-a-port")
	if _, err := pgconnect.LoadConnectionConfig(); err == nil {
		t.Fatal("expected error for non-numeric PGPORT")
	}
	t.Setenv("PGPORT", "0")
	_, err := pgconnect.LoadConnectionConfig()
	if err == nil || !strings.Contains(err.Error(), "PGPORT") {
		t.Fatalf("expected PGPORT range error, got %v", err)
	}
}
