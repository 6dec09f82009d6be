package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpregistry/dashboard/internal/api"
)

func newRootCmd() *cobra.Command {
	serve := newCmdServe()

	cmd := &cobra.Command{
		Use:     "mcp-dashboard",
		Short:   "Web dashboard for the MCP workspace manager",
		Long:    "Serves CRUD views over the manager's servers.json and workspaces.json, a log viewer over its log directory, and delegates lifecycle actions to the manager CLI.",
		Version: api.Version,
		// Serving is the default action
		RunE:          serve.RunE,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(serve)
	cmd.AddCommand(newCmdLogs())
	cmd.AddCommand(newCmdVersion())
	return cmd
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		slog.Error("application failed", "error", err)
		os.Exit(1)
	}
}
