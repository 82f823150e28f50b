// File: cmd/nephelios/history.go
// Brief: CLI command wiring and implementation for 'history'.

package main

import (
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/example/nephelios/internal/config"
	"github.com/example/nephelios/internal/history"
	"github.com/example/nephelios/internal/ui"
)

type historyRow struct {
	RecordedAt string `json:"recorded_at" yaml:"recorded_at"`
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	Status     string `json:"status" yaml:"status"`
	Domain     string `json:"domain" yaml:"domain"`
	Duration   string `json:"duration" yaml:"duration"`
}

func newHistoryCommand(opts *config.Options) *cobra.Command {
	var limit int
	var outputFormat string
	cmd := &cobra.Command{
		Use:           "history",
		Short:         "List deployments recorded by this machine",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseFormat(outputFormat)
			if err != nil {
				return err
			}
			path, err := homedir.Expand(strings.TrimSpace(opts.HistoryPath))
			if err != nil {
				return err
			}
			store, err := history.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()
			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			rows := historyRows(entries)
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return encodeJSON(out, rows)
			case "yaml":
				return encodeYAML(out, rows)
			}
			if len(rows) == 0 {
				_, err := out.Write([]byte("No deployments recorded yet.\n"))
				return err
			}
			cells := make([][]string, 0, len(rows))
			for _, row := range rows {
				cells = append(cells, []string{row.RecordedAt, row.Name, row.Type, row.Status, row.Domain, row.Duration})
			}
			return ui.WriteTable(out, []string{"RECORDED", "NAME", "TYPE", "STATUS", "DOMAIN", "DURATION"}, cells, nil)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of deployments to show")
	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json, or yaml")
	cmd.Flags().StringVar(&opts.HistoryPath, "history", opts.HistoryPath, "SQLite file recording finished deployments")
	return cmd
}

func historyRows(entries []history.Entry) []historyRow {
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			RecordedAt: e.RecordedAt.Local().Format(time.DateTime),
			Name:       e.App.AppName,
			Type:       dashIfEmpty(e.App.AppType),
			Status:     dashIfEmpty(e.App.Status),
			Domain:     dashIfEmpty(e.App.Domain),
			Duration:   e.Duration.String(),
		})
	}
	return rows
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
