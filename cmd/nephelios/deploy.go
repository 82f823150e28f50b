// File: cmd/nephelios/deploy.go
// Brief: CLI command wiring and implementation for 'deploy'.

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/nephelios/internal/backend"
	"github.com/example/nephelios/internal/caststream"
	"github.com/example/nephelios/internal/config"
	"github.com/example/nephelios/internal/deploy"
	"github.com/example/nephelios/internal/history"
	"github.com/example/nephelios/internal/logging"
	"github.com/example/nephelios/internal/progress"
	"github.com/example/nephelios/internal/telemetry"
	"github.com/example/nephelios/internal/ui"
)

func newDeployCommand(opts *config.Options, logLevel *string) *cobra.Command {
	var appType string
	var repo string
	cmd := &cobra.Command{
		Use:   "deploy NAME",
		Short: "Deploy an application from a GitHub repository and follow its progress",
		Args:  cobra.ExactArgs(1),
		Example: `  # Deploy a Go service
  nephelios deploy api --type go --repo https://github.com/acme/api

  # Give up after five minutes and keep the final view for two seconds
  nephelios deploy api --type go --repo https://github.com/acme/api --timeout 5m --settle 2s`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := backend.DeploymentRequest{
				AppName:   args[0],
				AppType:   appType,
				GitHubURL: repo,
			}
			return runDeploy(cmd, req, opts, *logLevel)
		},
	}
	cmd.Flags().StringVarP(&appType, "type", "t", "", fmt.Sprintf("Application type (%s)", strings.Join(backend.AppTypes, ", ")))
	cmd.Flags().StringVarP(&repo, "repo", "r", "", "GitHub repository URL to deploy")
	opts.BindDeployFlags(cmd.Flags())
	return cmd
}

func runDeploy(cmd *cobra.Command, req backend.DeploymentRequest, opts *config.Options, logLevel string) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}
	logger, err := logging.NewTo(cmd.ErrOrStderr(), logLevel)
	if err != nil {
		return err
	}
	client, err := newBackendClient(opts, logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Subscribe before submitting so no early frame is missed.
	stream, err := backend.DialStream(ctx, client.StreamURL(req.AppName), logger.WithName("stream"))
	if err != nil {
		return err
	}
	defer stream.Close()

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	// The live console and spinner redraw in place, so they need a terminal.
	interactive := !opts.NoConsole && ui.IsTerminal(errOut)
	var spinnerOut io.Writer
	if interactive {
		spinnerOut = errOut
	}
	stop := ui.StartSpinner(spinnerOut, fmt.Sprintf("Submitting %s to %s", req.AppName, client.BaseURL()))
	resp, err := client.Create(ctx, req)
	stop(err == nil)
	if err != nil {
		return err
	}
	logger.V(1).Info("deployment accepted", "app", req.AppName, "message", resp.Message)

	session, err := deploy.NewSession(stream, deploy.SessionOptions{
		Steps:  opts.Steps,
		Settle: opts.Settle,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	timer := telemetry.NewStepTimer()
	session.AddObserver(timer)
	var console *ui.DeployConsole
	if !interactive {
		session.AddObserver(newStepPrinter(out))
	} else {
		width, _ := ui.TerminalWidth(errOut)
		console = ui.NewDeployConsole(errOut, ui.DeployMetadata{
			AppName:   req.AppName,
			AppType:   req.AppType,
			GitHubURL: req.GitHubURL,
			Backend:   client.BaseURL(),
		}, ui.DeployConsoleOptions{Enabled: true, Width: width})
		session.AddObserver(console)
	}

	g, gctx := errgroup.WithContext(ctx)
	mirrorCtx, stopMirror := context.WithCancel(gctx)
	defer stopMirror()
	if opts.UIListen != "" {
		mirror := caststream.New(opts.UIListen, fmt.Sprintf("%s from %s", req.AppName, req.GitHubURL), logger.WithName("caststream"),
			caststream.WithTitle(fmt.Sprintf("Deploying %s", req.AppName)))
		session.AddObserver(mirror)
		g.Go(func() error {
			return mirror.Run(mirrorCtx)
		})
		g.Go(func() error {
			addr, err := mirror.Addr(mirrorCtx)
			if err != nil {
				return nil
			}
			fmt.Fprintf(errOut, "Live view: http://%s\n", addr)
			return nil
		})
	}

	var result progress.DeployedApplication
	g.Go(func() error {
		defer stopMirror()
		var runErr error
		result, runErr = session.Run(gctx)
		return runErr
	})
	err = g.Wait()
	console.Done()
	if err != nil {
		return err
	}

	if !opts.NoHistory {
		recordHistory(cmd.Context(), logger, opts.HistoryPath, result, session.Elapsed())
	}
	fmt.Fprintf(out, "Deployed %s in %s\n", result.AppName, session.Elapsed())
	if err := ui.WriteAppDetails(out, result, colorEnabled(out)); err != nil {
		return err
	}
	if !result.Running() {
		fmt.Fprintf(errOut, "Warning: %s reported status %q\n", result.AppName, result.Status)
	}
	if line := timer.Summary().Line(); line != "" {
		fmt.Fprintln(errOut, line)
	}
	return nil
}

// newStepPrinter emits one line per step transition for non-interactive output.
func newStepPrinter(out io.Writer) deploy.Observer {
	seen := make(map[string]progress.StepState)
	return deploy.ObserverFunc(func(snap progress.Snapshot) {
		for _, step := range snap.Steps {
			if seen[step.Name] == step.State {
				continue
			}
			seen[step.Name] = step.State
			switch step.State {
			case progress.StateInProgress:
				fmt.Fprintf(out, "[%d/%d] %s...\n", len(snap.Completed), snap.Total, step.Name)
			case progress.StateCompleted:
				fmt.Fprintf(out, "[%d/%d] %s done\n", len(snap.Completed), snap.Total, step.Name)
			}
		}
	})
}

func recordHistory(ctx context.Context, logger logr.Logger, path string, app progress.DeployedApplication, took time.Duration) {
	store, err := history.Open(path)
	if err != nil {
		logger.Error(err, "deployment history unavailable", "path", path)
		return
	}
	defer store.Close()
	if err := store.Record(ctx, app, took); err != nil {
		logger.Error(err, "failed to record deployment", "app", app.AppName)
	}
}
