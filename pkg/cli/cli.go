// Package cli is the command line an application gets after registering its
// jobs: project setup, workflow generation, local testing and serving.
//
//	reg := cronjob.NewRegistry()
//	reg.MustRegister("cleanup", cronjob.Definition{...})
//	os.Exit(cli.Main(ctx, reg, cli.Options{}))
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"cronhook/internal/config"
	"cronhook/pkg/cronjob"
	"cronhook/pkg/logx"
)

// Options customizes the command tree.
type Options struct {
	// Use is the binary name shown in help. Defaults to "cronhook".
	Use     string
	Version string

	// Args defaults to os.Args[1:].
	Args   []string
	Stdout io.Writer
	Stderr io.Writer

	// Observers are added to the engine after the built-in ones.
	Observers []cronjob.Observer
	Tracer    trace.Tracer
}

// ExitError carries a process exit code without printing anything more.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string { return fmt.Sprintf("exit status %d", e.Code) }

type runner struct {
	reg  *cronjob.Registry
	opts Options

	cfgPath  string
	logLevel string

	mgr  *config.Manager
	cfg  *config.Config
	logs *logx.Service
	log  logx.Logger
}

// NewCommand builds the root command for reg.
func NewCommand(reg *cronjob.Registry, opts Options) *cobra.Command {
	if reg == nil {
		reg = cronjob.NewRegistry()
	}
	if strings.TrimSpace(opts.Use) == "" {
		opts.Use = "cronhook"
	}
	r := &runner{reg: reg, opts: opts, log: logx.Nop()}

	root := &cobra.Command{
		Use:   opts.Use,
		Short: "Cron jobs triggered over HTTP by GitHub Actions",
		Long: `Registered jobs are served behind a secret-protected HTTP endpoint.
A generated GitHub Actions workflow calls that endpoint on each job's schedule.`,
		Version:       opts.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&r.cfgPath, "config", "c", config.DefaultFile, "project file (yaml or json)")
	root.PersistentFlags().StringVar(&r.logLevel, "log-level", "", "override logging.level")

	root.AddCommand(
		r.initCommand(),
		r.generateCommand(),
		r.listCommand(),
		r.testCommand(),
		r.serveCommand(),
		r.devCommand(),
	)
	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}
	return root
}

// Execute runs the command tree and prints any error to stderr.
func Execute(ctx context.Context, reg *cronjob.Registry, opts Options) error {
	root := NewCommand(reg, opts)
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	var exit *ExitError
	if err != nil && !errors.As(err, &exit) {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
	}
	return err
}

// Main is Execute mapped to a process exit code.
func Main(ctx context.Context, reg *cronjob.Registry, opts Options) int {
	err := Execute(ctx, reg, opts)
	if err == nil {
		return 0
	}
	var exit *ExitError
	if errors.As(err, &exit) {
		return exit.Code
	}
	return 1
}

// setup loads .env and the project file, then builds the logger. A missing
// project file falls back to defaults.
func (r *runner) setup() error {
	envPath, n, envErr := config.LoadEnvFile()

	r.mgr = config.NewManager(r.cfgPath)
	cfg, err := r.mgr.Load()
	missing := errors.Is(err, os.ErrNotExist)
	if err != nil && !missing {
		return err
	}
	r.cfg = cfg

	r.logs, r.log = logx.NewService(r.loggingFor(cfg))
	r.mgr.SetLogger(r.log.With(logx.String("comp", "config")))

	if envErr != nil {
		r.log.Warn("env file not loaded", logx.String("path", envPath), logx.Err(envErr))
	} else if n > 0 {
		r.log.Debug("env file loaded", logx.String("path", envPath), logx.Int("vars", n))
	}
	if missing {
		r.log.Debug("no project file; using defaults", logx.String("path", r.cfgPath))
	}
	return nil
}

func (r *runner) close() {
	if r.logs != nil {
		_ = r.logs.Close()
	}
}

// loggingFor keeps --log-level in force across config reloads.
func (r *runner) loggingFor(cfg *config.Config) logx.Config {
	lc := cfg.Logging.Log()
	if r.logLevel != "" {
		lc.Level = r.logLevel
	}
	return lc
}
