// File: internal/config/config.go
// Brief: Internal config package implementation for 'config'.

// Package config defines the flag plumbing and runtime options shared by the
// nephelios commands, translating Cobra/Viper flag values into a strongly typed
// struct that the backend client and deploy session consume.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"

	"github.com/example/nephelios/internal/history"
	"github.com/example/nephelios/internal/progress"
)

const (
	DefaultBackendURL  = "http://localhost"
	DefaultBackendPort = 3030
	DefaultTimeout     = 10 * time.Minute
)

// Options holds all CLI configuration used by the backend client and deploy flow.
type Options struct {
	BackendURL  string
	BackendPort int

	Steps       []string
	Timeout     time.Duration
	Settle      time.Duration
	UIListen    string
	NoConsole   bool
	HistoryPath string
	NoHistory   bool
}

// NewOptions returns Options with defaults applied.
func NewOptions() *Options {
	return &Options{
		BackendURL:  DefaultBackendURL,
		BackendPort: DefaultBackendPort,
		Steps:       progress.DefaultSteps(),
		Timeout:     DefaultTimeout,
		HistoryPath: history.DefaultPath(),
	}
}

// BindFlags attaches the backend connection flags to an arbitrary FlagSet and returns the flag names.
func (o *Options) BindFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringVar(&o.BackendURL, "backend-url", o.BackendURL, "Base URL of the Nephelios backend (scheme and host)")
	names = append(names, "backend-url")
	fs.IntVar(&o.BackendPort, "backend-port", o.BackendPort, "Port of the Nephelios backend; 0 keeps the port from --backend-url")
	names = append(names, "backend-port")
	return names
}

// BindDeployFlags attaches the flags that only matter while tracking a deployment.
func (o *Options) BindDeployFlags(fs *pflag.FlagSet) []string {
	var names []string
	fs.StringSliceVar(&o.Steps, "steps", o.Steps, "Ordered pipeline step names announced by the backend")
	names = append(names, "steps")
	fs.DurationVar(&o.Timeout, "timeout", o.Timeout, "Give up on the deployment after this long (0 disables)")
	names = append(names, "timeout")
	fs.DurationVar(&o.Settle, "settle", o.Settle, "Keep the final progress view on screen this long before printing the result")
	names = append(names, "settle")
	fs.StringVar(&o.UIListen, "ui", o.UIListen, "Serve a live deployment viewer at this address (e.g. :8080)")
	names = append(names, "ui")
	if flag := fs.Lookup("ui"); flag != nil {
		flag.NoOptDefVal = ":8080"
	}
	fs.BoolVar(&o.NoConsole, "no-console", o.NoConsole, "Disable the in-place progress console")
	names = append(names, "no-console")
	fs.StringVar(&o.HistoryPath, "history", o.HistoryPath, "SQLite file recording finished deployments")
	names = append(names, "history")
	fs.BoolVar(&o.NoHistory, "no-history", o.NoHistory, "Do not record the deployment in the local history")
	names = append(names, "no-history")
	return names
}

// Validate normalizes the options and reports the first incoherent value.
func (o *Options) Validate() error {
	o.BackendURL = strings.TrimRight(strings.TrimSpace(o.BackendURL), "/")
	if o.BackendURL == "" {
		o.BackendURL = DefaultBackendURL
	}
	u, err := url.Parse(o.BackendURL)
	if err != nil {
		return fmt.Errorf("invalid --backend-url %q: %w", o.BackendURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid --backend-url %q (scheme must be http or https)", o.BackendURL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid --backend-url %q (missing host)", o.BackendURL)
	}
	if o.BackendPort < 0 || o.BackendPort > 65535 {
		return fmt.Errorf("--backend-port must be between 0 and 65535, got %d", o.BackendPort)
	}
	if err := o.compileSteps(); err != nil {
		return err
	}
	if o.Timeout < 0 {
		return fmt.Errorf("--timeout cannot be negative")
	}
	if o.Settle < 0 {
		return fmt.Errorf("--settle cannot be negative")
	}
	o.UIListen = strings.TrimSpace(o.UIListen)
	o.HistoryPath = strings.TrimSpace(o.HistoryPath)
	if o.HistoryPath == "" {
		o.NoHistory = true
		return nil
	}
	expanded, err := homedir.Expand(o.HistoryPath)
	if err != nil {
		return fmt.Errorf("invalid --history path %q: %w", o.HistoryPath, err)
	}
	o.HistoryPath = expanded
	return nil
}

func (o *Options) compileSteps() error {
	if len(o.Steps) == 0 {
		o.Steps = progress.DefaultSteps()
		return nil
	}
	clean := make([]string, 0, len(o.Steps))
	seen := make(map[string]struct{}, len(o.Steps))
	for _, entry := range o.Steps {
		trimmed := strings.TrimSpace(entry)
		if trimmed == "" {
			return fmt.Errorf("--steps cannot contain blank names")
		}
		if _, ok := seen[trimmed]; ok {
			return fmt.Errorf("--steps lists %q more than once", trimmed)
		}
		seen[trimmed] = struct{}{}
		clean = append(clean, trimmed)
	}
	o.Steps = clean
	return nil
}
