package pgconnect_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	pgconnect "github.com/rickchristie/postgres-connect"
	"github.com/rickchristie/postgres-connect/internal/store"
)

func TestTableSchemaBindsArguments(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	p := newTestInstance(t, defaultConfig(), client)

	desc, te := p.TableSchema(context.Background(), "users", nil)
	if te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	calls, opened, closed := client.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected columns and constraints queries, got %d calls", len(calls))
	}
	for _, c := range calls {
		if len(c.args) != 2 || c.args[0] != "users" || c.args[1] != nil {
			t.Fatalf("expected args [users <nil>], got %v", c.args)
		}
		if !strings.Contains(c.sql, "COALESCE($2::text, current_schema())") {
			t.Fatalf("expected current_schema fallback in %s", c.sql)
		}
	}
	if !strings.Contains(calls[0].sql, "information_schema.columns") || !strings.Contains(calls[1].sql, "information_schema.table_constraints") {
		t.Fatal("expected columns query before constraints query")
	}
	if opened != 2 || closed != 2 {
		t.Fatalf("expected a connection per query, got %d/%d", opened, closed)
	}

	want := `{"table_name":"users","schema_name":null,"columns":[],"constraints":[]}`
	if got := mustJSON(t, desc); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestTableSchemaEchoesSchema(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	p := newTestInstance(t, defaultConfig(), client)

	schema := "billing"
	desc, te := p.TableSchema(context.Background(), "invoices", &schema)
	if te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	if desc.SchemaName == nil || *desc.SchemaName != "billing" {
		t.Fatalf("expected schema echo, got %v", desc.SchemaName)
	}
	calls, _, _ := client.snapshot()
	if calls[0].args[1] != "billing" {
		t.Fatalf("expected schema bound, got %v", calls[0].args)
	}
}

func TestTableSchemaFailsAsAWhole(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	p := newTestInstance(t, defaultConfig(), client)

	// Find the constraints query text by running once.
	if _, te := p.TableSchema(context.Background(), "t", nil); te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	calls, _, _ := client.snapshot()
	client.mu.Lock()
	client.rows[calls[0].sql] = store.Rows{rowOf("column_name", store.Text("id"))}
	client.queryErr[calls[1].sql] = &store.ExecutionError{Err: errors.New("permission denied for view table_constraints")}
	client.mu.Unlock()

	desc, te := p.TableSchema(context.Background(), "t", nil)
	if desc != nil {
		t.Fatalf("expected no partial descriptor, got %+v", desc)
	}
	if te == nil || te.Message != "permission denied for view table_constraints" {
		t.Fatalf("expected constraints error, got %v", te)
	}
}

func TestTableIndexesAndFunctions(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	p := newTestInstance(t, defaultConfig(), client)

	if _, te := p.TableIndexes(context.Background(), "users", nil); te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	schema := "public"
	if _, te := p.TableFunctions(context.Background(), "users", &schema); te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	calls, _, _ := client.snapshot()
	if !strings.Contains(calls[0].sql, "FROM pg_indexes") || !strings.Contains(calls[0].sql, "ORDER BY indexname") {
		t.Fatalf("unexpected indexes query %s", calls[0].sql)
	}
	if !strings.Contains(calls[1].sql, "NOT t.tgisinternal") || !strings.Contains(calls[1].sql, "ORDER BY t.tgname, p.proname") {
		t.Fatalf("unexpected functions query %s", calls[1].sql)
	}
	if calls[1].args[1] != "public" {
		t.Fatalf("expected schema bound, got %v", calls[1].args)
	}
}

func TestIntrospectionSkipsClassifier(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	p := newTestInstance(t, defaultConfig(), client)

	// A table literally named "delete; drop" would fail the classifier; bound
	// parameters make it harmless.
	if _, te := p.TableIndexes(context.Background(), "delete; drop", nil); te != nil {
		t.Fatalf("unexpected error: %v", te)
	}
	calls, _, _ := client.snapshot()
	if calls[0].args[0] != "delete; drop" {
		t.Fatalf("expected table bound as parameter, got %v", calls[0].args)
	}
}

func TestIntrospectionConnectionError(t *testing.T) {
	t.Parallel()
	client := newScriptedClient()
	client.down.Store(true)
	p := newTestInstance(t, defaultConfig(), client)

	_, te := p.TableFunctions(context.Background(), "users", nil)
	if te == nil || te.Category() != pgconnect.CategoryConnection || te.Message != "Database connection failed" {
		t.Fatalf("expected connection error, got %v", te)
	}
}
