package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rickchristie/pgguard-mcp/internal/configure"
)

func newConfigureCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Create or edit the configuration file interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner(os.Stderr, isTTY(os.Stderr.Fd()))
			return configure.Run(resolveConfigPath(*configPath))
		},
	}
}
