// File: cmd/nephelios/apps.go
// Brief: CLI command wiring and implementation for 'apps list' and 'apps get'.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/example/nephelios/internal/config"
	"github.com/example/nephelios/internal/logging"
	"github.com/example/nephelios/internal/progress"
	"github.com/example/nephelios/internal/ui"
)

func newAppsCommand(opts *config.Options, logLevel *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apps",
		Aliases: []string{"app"},
		Short:   "Inspect applications deployed on the backend",
		Args:    cobra.NoArgs,
	}
	cmd.AddCommand(newAppsListCommand(opts, logLevel), newAppsGetCommand(opts, logLevel))
	return cmd
}

func newAppsListCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List deployed applications",
		Args:    cobra.NoArgs,
		Example: `  # Table view with colored status
  nephelios apps list

  # Emit structured output
  nephelios apps list --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := parseFormat(outputFormat)
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			logger, err := logging.NewTo(cmd.ErrOrStderr(), *logLevel)
			if err != nil {
				return err
			}
			client, err := newBackendClient(opts, logger)
			if err != nil {
				return err
			}
			apps, err := client.ListApps(cmd.Context())
			if err != nil {
				return err
			}
			if apps == nil {
				apps = []progress.DeployedApplication{}
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return encodeJSON(out, apps)
			case "yaml":
				return encodeYAML(out, apps)
			default:
				return ui.WriteAppsTable(out, apps, colorEnabled(out))
			}
		},
	}
	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json, or yaml")
	return cmd
}

func newAppsGetCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:           "get NAME",
		Short:         "Show the details of one deployed application",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseFormat(outputFormat)
			if err != nil {
				return err
			}
			if err := opts.Validate(); err != nil {
				return err
			}
			logger, err := logging.NewTo(cmd.ErrOrStderr(), *logLevel)
			if err != nil {
				return err
			}
			client, err := newBackendClient(opts, logger)
			if err != nil {
				return err
			}
			app, err := client.FindApp(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return encodeJSON(out, app)
			case "yaml":
				return encodeYAML(out, app)
			default:
				return ui.WriteAppDetails(out, app, colorEnabled(out))
			}
		},
	}
	cmd.Flags().StringVar(&outputFormat, "format", "table", "Output format: table, json, or yaml")
	return cmd
}

func parseFormat(raw string) (string, error) {
	selected := strings.ToLower(strings.TrimSpace(raw))
	if selected == "" {
		selected = "table"
	}
	switch selected {
	case "table", "json", "yaml":
		return selected, nil
	default:
		return "", fmt.Errorf("unsupported format %q (expected table, json, or yaml)", raw)
	}
}

func encodeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func encodeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
