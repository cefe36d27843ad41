package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rickchristie/postgres-connect/internal/configure"
)

const defaultConfigPath = ".pgconnect/config.toml"

func newConfigureCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Interactively create or edit a TOML config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner(cmd.ErrOrStderr(), isTTY(os.Stderr.Fd()))
			return configure.Run(configPath, cmd.InOrStdin(), cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to the config file to write")
	return cmd
}
