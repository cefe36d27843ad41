package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	pgconnect "github.com/rickchristie/postgres-connect"
	"github.com/rickchristie/postgres-connect/internal/store"
)

var errDoctorFailed = errors.New("doctor found problems")

func newDoctorCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and database connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			return doctor(ctx, cmd.ErrOrStderr(), isTTY(os.Stderr.Fd()), configPath, store.NewPostgres())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file (default $"+configEnv+")")
	return cmd
}

func doctor(ctx context.Context, w io.Writer, useColor bool, configPath string, client store.Client) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "pgconnect %s\n\n", Version)

	config, ok := doctorValidateConfig(w, useColor, configPath)
	if ok {
		ok = doctorCheckDatabase(ctx, w, useColor, config, client)
	}
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'pgconnect doctor' again.")
		return errDoctorFailed
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return nil
}

// doctorValidateConfig loads and validates the config file, printing check
// results. Returns the config and true if every check passed.
func doctorValidateConfig(w io.Writer, useColor bool, configPath string) (*pgconnect.Config, bool) {
	if configPath == "" {
		configPath = os.Getenv(configEnv)
	}
	if configPath == "" {
		printCheck(w, useColor, true, "No config file given, using defaults")
	} else if _, err := os.Stat(configPath); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file readable (%s): %v", configPath, err))
		return nil, false
	}

	config, err := pgconnect.Load(configPath)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Config file is valid TOML: %v", err))
		return nil, false
	}
	if configPath != "" {
		printCheck(w, useColor, true, fmt.Sprintf("Config file is valid TOML (%s)", configPath))
	}

	if err := config.Validate(); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				printCheck(w, useColor, false, e.Error())
			}
		} else {
			printCheck(w, useColor, false, err.Error())
		}
		return nil, false
	}
	printCheck(w, useColor, true, "Config is valid")
	return config, true
}

// doctorCheckDatabase resolves the connection environment and runs a probe
// query through the same path as query_data_read.
func doctorCheckDatabase(ctx context.Context, w io.Writer, useColor bool, config *pgconnect.Config, client store.Client) bool {
	conn, err := pgconnect.LoadConnectionConfig()
	if err != nil {
		printCheck(w, useColor, false, err.Error())
		return false
	}
	params := conn.Params()
	printCheck(w, useColor, true, fmt.Sprintf("Connection environment (%s)", params.Redacted()))

	p, err := pgconnect.New(*config, client, zerolog.Nop())
	if err != nil {
		printCheck(w, useColor, false, err.Error())
		return false
	}
	start := time.Now()
	if _, te := p.ReadQuery(ctx, "select 1 as ok"); te != nil {
		msg := te.Message
		if te.Detail != "" {
			msg += ": " + te.Detail
		}
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %s", msg))
		return false
	}
	printCheck(w, useColor, true, fmt.Sprintf("Database reachable (%s)", time.Since(start).Round(time.Millisecond)))
	return true
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, style := "✓", pterm.NewStyle(pterm.FgGreen)
	if !pass {
		mark, style = "✗", pterm.NewStyle(pterm.FgRed)
	}
	if useColor {
		mark = style.Sprint(mark)
	}
	fmt.Fprintf(w, "  %s %s\n", mark, msg)
}

// printAgentSnippets prints MCP client config snippets for both transports.
func printAgentSnippets(w io.Writer, useColor bool, config *pgconnect.Config) {
	url := fmt.Sprintf("http://localhost:%d%s", config.HTTP.Port, pgconnect.MCPEndpointPath)

	heading := func(title string) {
		if useColor {
			title = pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint(title)
		}
		fmt.Fprintln(w, title)
	}
	subheading := func(title string) {
		if useColor {
			title = pterm.NewStyle(pterm.Bold).Sprint(title)
		}
		fmt.Fprintf(w, "  %s\n", title)
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	subheading("Claude Code (stdio)")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add postgres -- pgconnect serve\n\n")
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprint(w, `  {
    "mcpServers": {
      "postgres": {
        "command": "pgconnect",
        "args": ["serve"],
        "env": {
          "PGHOST": "localhost",
          "PGDATABASE": "postgres"
        }
      }
    }
  }
`)
	fmt.Fprintln(w)

	subheading("Streamable HTTP (pgconnect serve --transport http)")
	fmt.Fprintf(w, "    claude mcp add --transport http postgres %s\n\n", url)
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "postgres": {
        "type": "http",
        "url": "%s"
      }
    }
  }
`, url)
}
