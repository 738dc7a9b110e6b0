package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const defaultConfigPath = ".pgguardmcp/config.json"

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "pgguardmcp",
		Short:         "Guarded PostgreSQL MCP server",
		Long:          "pgguardmcp exposes introspect-schema, execute-sql and table-document as MCP tools over streamable HTTP.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to configuration file (default $PGGUARDMCP_CONFIG_PATH or "+defaultConfigPath+")")

	rootCmd.AddCommand(
		newServeCmd(&configPath),
		newConfigureCmd(&configPath),
		newDoctorCmd(&configPath),
	)
	return rootCmd
}
