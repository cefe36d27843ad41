package pgconnect

import (
	"context"
	"time"

	"github.com/rickchristie/postgres-connect/internal/store"
)

// information_schema columns are domains (sql_identifier, cardinal_number,
// yes_or_no); the casts pin them to plain text and integer values.
const columnsSQL = `
SELECT
    ordinal_position::int AS ordinal_position,
    column_name::text AS column_name,
    data_type::text AS data_type,
    udt_name::text AS udt_name,
    is_nullable::text AS is_nullable,
    column_default::text AS column_default,
    character_maximum_length::int AS character_maximum_length,
    numeric_precision::int AS numeric_precision,
    numeric_scale::int AS numeric_scale
FROM information_schema.columns
WHERE table_name = $1::text
  AND table_schema = COALESCE($2::text, current_schema())
ORDER BY ordinal_position`

const constraintsSQL = `
SELECT
    tc.constraint_type::text AS constraint_type,
    tc.constraint_name::text AS constraint_name,
    kcu.column_name::text AS column_name,
    ccu.table_schema::text AS foreign_table_schema,
    ccu.table_name::text AS foreign_table_name,
    ccu.column_name::text AS foreign_column_name
FROM information_schema.table_constraints tc
LEFT JOIN information_schema.key_column_usage kcu
    ON tc.constraint_name = kcu.constraint_name
    AND tc.table_schema = kcu.table_schema
LEFT JOIN information_schema.constraint_column_usage ccu
    ON ccu.constraint_name = tc.constraint_name
    AND ccu.table_schema = tc.table_schema
WHERE tc.table_name = $1::text
  AND tc.table_schema = COALESCE($2::text, current_schema())
  AND tc.constraint_type IN ('PRIMARY KEY', 'FOREIGN KEY', 'UNIQUE')
ORDER BY tc.constraint_type, kcu.ordinal_position`

const indexesSQL = `
SELECT
    schemaname::text AS schemaname,
    tablename::text AS tablename,
    indexname::text AS indexname,
    indexdef
FROM pg_indexes
WHERE tablename = $1::text
  AND schemaname = COALESCE($2::text, current_schema())
ORDER BY indexname`

const triggerFunctionsSQL = `
SELECT
    n.nspname::text AS function_schema,
    p.proname::text AS function_name,
    pg_get_function_identity_arguments(p.oid) AS function_arguments,
    pg_get_function_result(p.oid) AS function_return_type,
    t.tgname::text AS trigger_name,
    pg_get_triggerdef(t.oid) AS trigger_definition
FROM pg_trigger t
JOIN pg_proc p ON p.oid = t.tgfoid
JOIN pg_namespace n ON n.oid = p.pronamespace
JOIN pg_class c ON c.oid = t.tgrelid
JOIN pg_namespace tn ON tn.oid = c.relnamespace
WHERE NOT t.tgisinternal
  AND c.relname = $1::text
  AND tn.nspname = COALESCE($2::text, current_schema())
ORDER BY t.tgname, p.proname`

// TableSchema returns the columns and key constraints of a table. A missing
// table yields empty lists. If either query fails the whole call fails.
func (p *PostgresConnect) TableSchema(ctx context.Context, table string, schema *string) (*SchemaDescriptor, *ToolError) {
	startTime := time.Now()
	p.logIntrospect("get_table_schema", table, schema)

	columns, te := p.run(ctx, "get_table_schema", columnsSQL, table, schemaArg(schema))
	if te != nil {
		return nil, te
	}
	constraints, te := p.run(ctx, "get_table_schema", constraintsSQL, table, schemaArg(schema))
	if te != nil {
		return nil, te
	}

	p.logger.Debug().
		Str("table", table).
		Int("columns", len(columns)).
		Int("constraints", len(constraints)).
		Dur("duration", time.Since(startTime)).
		Msg("table schema fetched")

	return &SchemaDescriptor{
		TableName:   table,
		SchemaName:  schema,
		Columns:     columns,
		Constraints: constraints,
	}, nil
}

// TableIndexes lists pg_indexes entries for a table, ordered by index name.
func (p *PostgresConnect) TableIndexes(ctx context.Context, table string, schema *string) (store.Rows, *ToolError) {
	p.logIntrospect("get_table_indexes", table, schema)
	return p.run(ctx, "get_table_indexes", indexesSQL, table, schemaArg(schema))
}

// TableFunctions lists the functions behind a table's user-defined triggers.
func (p *PostgresConnect) TableFunctions(ctx context.Context, table string, schema *string) (store.Rows, *ToolError) {
	p.logIntrospect("get_table_functions", table, schema)
	return p.run(ctx, "get_table_functions", triggerFunctionsSQL, table, schemaArg(schema))
}

func (p *PostgresConnect) logIntrospect(op, table string, schema *string) {
	ev := p.logger.Info().Str("op", op).Str("table", table)
	if schema != nil {
		ev = ev.Str("schema", *schema)
	}
	ev.Msg("introspecting table")
}

// schemaArg binds an absent schema as SQL NULL so COALESCE picks
// current_schema().
func schemaArg(schema *string) any {
	if schema == nil {
		return nil
	}
	return *schema
}
