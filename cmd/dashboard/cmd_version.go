package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcpregistry/dashboard/internal/api"
)

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			info := api.BuildInfo()
			fmt.Fprintf(cmd.OutOrStdout(), "mcp-dashboard %s (commit %s, built %s)\n",
				info.Version, info.GitCommit, info.BuildTime)
		},
	}
}
