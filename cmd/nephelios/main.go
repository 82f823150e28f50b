// main.go bootstraps nephelios: it builds the root Cobra command, binds env and config-file values, and executes with signal-aware contexts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/example/nephelios/internal/backend"
	"github.com/example/nephelios/internal/config"
	"github.com/example/nephelios/internal/deploy"
	"github.com/example/nephelios/internal/ui"
	"github.com/example/nephelios/internal/version"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	err := rootCmd.ExecuteContext(ctx)
	handleError(err)
	if err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := config.NewOptions()
	logLevel := "info"
	cmd := &cobra.Command{
		Use:           "nephelios",
		Short:         "Deploy applications to a Nephelios backend and follow their progress",
		Long:          "nephelios submits GitHub repositories to a Nephelios backend, tracks each pipeline step live, and lists what is running.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for nephelios diagnostics (debug, info, warn, error)")
	opts.BindFlags(cmd.PersistentFlags())

	deployCmd := newDeployCommand(opts, &logLevel)
	appsCmd := newAppsCommand(opts, &logLevel)
	historyCmd := newHistoryCommand(opts)
	cmd.AddCommand(
		deployCmd,
		appsCmd,
		historyCmd,
		newVersionCommand(),
	)
	cmd.Example = `  # Deploy a Node.js application and watch each step
  nephelios deploy landy --type nodejs --repo https://github.com/acme/landy

  # Mirror the progress view in a browser
  nephelios deploy landy --type nodejs --repo https://github.com/acme/landy --ui=:8080

  # List deployed applications as YAML
  nephelios apps list --format yaml`
	applyConfig := bindViper(cmd, deployCmd, historyCmd)
	cmd.PersistentPreRunE = func(*cobra.Command, []string) error {
		return applyConfig()
	}
	return cmd
}

// bindViper returns a hook that back-fills unset flags of commands from
// NEPHELIOS_* environment variables and the config file.
func bindViper(commands ...*cobra.Command) func() error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.SetEnvPrefix("NEPHELIOS")
	v.AutomaticEnv()
	configFile := os.Getenv("NEPHELIOS_CONFIG")
	configureConfigFile(v, configFile)

	return func() error {
		for _, cmd := range commands {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
				return err
			}
		}
		if err := readConfigFile(v, configFile != ""); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		for _, cmd := range commands {
			flagSets := []*pflag.FlagSet{cmd.Flags(), cmd.PersistentFlags()}
			for _, fs := range flagSets {
				fs.VisitAll(func(f *pflag.Flag) {
					if f.Changed {
						return
					}
					if !v.IsSet(f.Name) {
						return
					}
					val := flagValueString(v.Get(f.Name))
					if val != "" {
						_ = f.Value.Set(val)
					}
				})
			}
		}
		return nil
	}
}

// flagValueString flattens config-file lists so slice flags receive a comma list.
func flagValueString(raw any) string {
	switch val := raw.(type) {
	case []string:
		return strings.Join(val, ",")
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", val)
	}
}

func handleError(err error) {
	writeError(os.Stderr, err)
}

func writeError(w io.Writer, err error) {
	if err == nil || errors.Is(err, pflag.ErrHelp) {
		return
	}
	message := err.Error()
	switch {
	case errors.Is(err, backend.ErrServerUnreachable):
		message = fmt.Sprintf("%s\nHint: make sure the Nephelios backend is running, or point --backend-url/--backend-port (NEPHELIOS_BACKEND_URL, NEPHELIOS_BACKEND_PORT) at it.", err)
	case errors.Is(err, context.DeadlineExceeded):
		message = fmt.Sprintf("%s\nHint: increase --timeout or check the backend logs for a stuck pipeline step.", err)
	case errors.Is(err, deploy.ErrStreamEnded):
		message = fmt.Sprintf("%s\nHint: the backend closed the progress stream; run 'nephelios apps list' to see whether the application came up.", err)
	case errors.Is(err, backend.ErrInvalidRequest):
		message = fmt.Sprintf("%s\nHint: names may only contain lowercase letters, digits, '.', '_' and '-'; types are %s.", err, strings.Join(backend.AppTypes, ", "))
	case errors.Is(err, backend.ErrAppNotFound):
		message = fmt.Sprintf("%s\nHint: run 'nephelios apps list' to see deployed applications.", err)
	}
	fmt.Fprintf(w, "Error: %s\n", message)
}

func configureConfigFile(v *viper.Viper, explicitPath string) {
	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
		return
	}
	v.SetConfigName("config")
	for _, dir := range configSearchDirs() {
		v.AddConfigPath(dir)
	}
}

func readConfigFile(v *viper.Viper, strict bool) error {
	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if errors.As(err, &cfgErr) && !strict {
			return nil
		}
		return err
	}
	return nil
}

func configSearchDirs() []string {
	added := make(map[string]struct{})
	var dirs []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, ok := added[path]; ok {
			return
		}
		added[path] = struct{}{}
		dirs = append(dirs, path)
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		add(filepath.Join(xdg, "nephelios"))
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		add(filepath.Join(home, ".config", "nephelios"))
		add(filepath.Join(home, ".nephelios"))
	}
	return dirs
}

func newBackendClient(opts *config.Options, logger logr.Logger) (*backend.Client, error) {
	return backend.NewClient(opts.BackendURL, opts.BackendPort,
		backend.WithLogger(logger.WithName("backend")),
		backend.WithUserAgent(version.Get().UserAgent()),
	)
}

func colorEnabled(w io.Writer) bool {
	return ui.IsTerminal(w) && !color.NoColor
}
