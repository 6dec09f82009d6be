package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpregistry/dashboard/internal/config"
	"github.com/mcpregistry/dashboard/internal/domain"
	"github.com/mcpregistry/dashboard/internal/logs"
)

type logsOptions struct {
	dir       string
	file      string
	workspace string
	level     string
	server    string
	query     string
	since     string
	limit     int
	jsonOut   bool
}

func newCmdLogs() *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print manager log entries",
		Long:  "Reads the manager's log directory and prints entries matching the filters, oldest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogs(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.dir, "dir", "", "Log directory (default LOG_DIR)")
	f.StringVar(&opts.file, "file", "", "Only read this file, relative to the log directory")
	f.StringVarP(&opts.workspace, "workspace", "w", "", "Workspace filter")
	f.StringVarP(&opts.level, "level", "l", "", "Level filter (debug|info|warn|error)")
	f.StringVarP(&opts.server, "server", "s", "", "Server filter")
	f.StringVarP(&opts.query, "query", "q", "", "Case-insensitive message substring")
	f.StringVar(&opts.since, "since", "", "RFC3339 time or duration such as 15m")
	f.IntVarP(&opts.limit, "limit", "n", 200, "Maximum number of entries, newest kept (0 for all)")
	f.BoolVar(&opts.jsonOut, "json", false, "Print one JSON object per line")

	return cmd
}

func runLogs(cmd *cobra.Command, opts *logsOptions) error {
	dir := opts.dir
	if dir == "" {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		dir = cfg.LogDir
	}

	since, err := logs.ParseSince(opts.since, time.Now())
	if err != nil {
		return err
	}

	logger, err := newLogger("warn")
	if err != nil {
		return err
	}

	reader, err := logs.NewReader(logs.Config{Dir: dir, Logger: logger})
	if err != nil {
		return err
	}

	entries, err := reader.Query(cmd.Context(), opts.file, logs.Filter{
		Workspace: opts.workspace,
		Level:     opts.level,
		Server:    opts.server,
		Query:     opts.query,
		Since:     since,
		Limit:     opts.limit,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.jsonOut {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range entries {
		printEntry(out, e)
	}
	return nil
}

func printEntry(w io.Writer, e domain.LogEntry) {
	scope := e.Workspace
	if e.Server != "" {
		scope += "/" + e.Server
	}
	fmt.Fprintf(w, "%s %-5s [%s] %s\n",
		e.Timestamp.Format(time.RFC3339), logs.NormalizeLevel(e.Level), scope, e.Message)
}
