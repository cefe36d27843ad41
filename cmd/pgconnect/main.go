// Command pgconnect serves read-only PostgreSQL query and introspection tools
// to MCP clients over stdio or streamable HTTP.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pgconnect",
		Short: "Read-only PostgreSQL tools for MCP clients",
		Long: `pgconnect exposes four read-only tools to MCP clients: query_data_read,
get_table_schema, get_table_indexes and get_table_functions.

Connection settings come from the libpq environment variables (PGHOST,
PGPORT, PGDATABASE, PGUSER, PGPASSWORD, PGSSLMODE, PGCONNECT_TIMEOUT) and are
read again on every tool call.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newConfigureCmd(), newDoctorCmd(), newVersionCmd())
	return root
}
