package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/compiler"
	"github.com/tessera-dev/tessera/internal/engine"
	"github.com/tessera-dev/tessera/internal/executor"
	"github.com/tessera-dev/tessera/internal/matrix"
	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/selector"
	"github.com/tessera-dev/tessera/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database    string
	Workers     int
	Pipeline    string
	Only        []string
	StepTimeout time.Duration
	LogLimit    int64
	WorkDir     string
	CacheRoot   string
	NoNotify    bool
	DryRun      bool

	SMTPAddr string
	SMTPFrom string
	SMTPUser string
	SMTPPass string
	IRCNick  string

	// IDGenerator overrides run-ID generation (for tests). Nil means
	// UUIDv7.
	IDGenerator engine.RunIDGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <config.yml>",
		Short: "Execute a pipeline's build matrix",
		Long: `Compile a pipeline descriptor, expand its build matrix, and execute
every cell's command sequence locally. The run is recorded in the
history database and configured notification channels fire on
completion.

Email needs a relay via --smtp-addr; without one, email rules are
recorded as undelivered. IRC and webhook targets need no flags.

Exit codes:
  0 - run succeeded
  1 - run failed (a blocking cell failed or the run was interrupted)
  2 - command error (bad config, bad flags, unusable database)

Examples:
  tessera run ci.yml
  tessera run ci.yml --db ./history.db --workers 4
  tessera run ci.yml --only os=linux --only rust=stable,os=osx
  tessera run ci.yml --dry-run
  tessera run ci.yml --smtp-addr mail.example.com:587 --smtp-from ci@example.com`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "tessera.db", "path to the SQLite history database (created if missing)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "cells to execute in parallel (0 = one per CPU)")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline name override (default: config file basename)")
	cmd.Flags().StringArrayVar(&opts.Only, "only", nil, "run only cells matching key=value[,key=value] (repeatable, any match keeps the cell)")
	cmd.Flags().DurationVar(&opts.StepTimeout, "step-timeout", 0, "per-step wall clock limit (0 = none)")
	cmd.Flags().Int64Var(&opts.LogLimit, "log-limit", 0, "captured output cap per step in bytes (0 = default 4 MiB)")
	cmd.Flags().StringVar(&opts.WorkDir, "workdir", "", "working directory for step commands (default: current directory)")
	cmd.Flags().StringVar(&opts.CacheRoot, "cache-root", "", "root for descriptor cache directories (default: user cache dir)")
	cmd.Flags().BoolVar(&opts.NoNotify, "no-notify", false, "skip notification dispatch")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "expand the matrix and print the plan without executing")

	cmd.Flags().StringVar(&opts.SMTPAddr, "smtp-addr", "", "SMTP relay for email notifications (host or host:port)")
	cmd.Flags().StringVar(&opts.SMTPFrom, "smtp-from", "tessera@localhost", "sender address for email notifications")
	cmd.Flags().StringVar(&opts.SMTPUser, "smtp-user", "", "SMTP username (enables authentication)")
	cmd.Flags().StringVar(&opts.SMTPPass, "smtp-pass", "", "SMTP password")
	cmd.Flags().StringVar(&opts.IRCNick, "irc-nick", "tessera", "nick used for IRC announcements")

	return cmd
}

func runPipeline(opts *RunOptions, configPath string, cmd *cobra.Command) error {
	logger := newLogger(cmd, opts.RootOptions)

	p, err := compileConfig(configPath, opts.Pipeline)
	if err != nil {
		return err
	}

	cells, err := matrix.Expand(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "matrix expansion failed", err)
	}
	cells, err = filterCells(cells, opts.Only)
	if err != nil {
		return err
	}

	if opts.DryRun {
		return printPlan(opts.RootOptions, cmd, p, cells)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("closing database", "error", closeErr)
		}
	}()

	engOpts := []engine.Option{
		engine.WithWorkers(opts.Workers),
		engine.WithStepTimeout(opts.StepTimeout),
		engine.WithOutputLimit(opts.LogLimit),
		engine.WithWorkDir(opts.WorkDir),
		engine.WithCacheRoot(resolveCacheRoot(opts, p, logger)),
		engine.WithStepOutput(cmd.ErrOrStderr()),
		engine.WithLogger(logger),
	}
	if !opts.NoNotify {
		engOpts = append(engOpts, engine.WithNotifier(newDispatcher(opts, logger)))
	}
	if opts.IDGenerator != nil {
		engOpts = append(engOpts, engine.WithRunIDGenerator(opts.IDGenerator))
	}
	eng := engine.New(st, executor.NewShell(), engOpts...)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := eng.RunCells(ctx, p, cells)
	if err != nil {
		if engine.IsConfigError(err) {
			return WrapExitError(ExitCommandError, "cannot run pipeline", err)
		}
		return WrapExitError(ExitFailure, "run failed", err)
	}

	if err := printRunReport(opts.RootOptions, cmd, result); err != nil {
		return err
	}
	if result.Outcome == pipeline.OutcomeFailed {
		return NewExitError(ExitFailure, fmt.Sprintf("run %s failed", result.RunID))
	}
	return nil
}

// compileConfig reads and compiles a descriptor, with an optional
// pipeline name override.
func compileConfig(configPath, nameOverride string) (*pipeline.Pipeline, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read config", err)
	}
	name := nameOverride
	if name == "" {
		name = compiler.PipelineName(configPath)
	}
	p, err := compiler.Compile(name, data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return p, nil
}

// filterCells applies --only selectors. A cell survives when any
// selector matches it; no selectors keeps everything.
func filterCells(cells []pipeline.Cell, only []string) ([]pipeline.Cell, error) {
	if len(only) == 0 {
		return cells, nil
	}
	sels, err := selector.ParseList(only)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --only filter", err)
	}
	kept := make([]pipeline.Cell, 0, len(cells))
	for _, cell := range cells {
		if selector.MatchAny(sels, cell) {
			kept = append(kept, cell)
		}
	}
	if len(kept) == 0 {
		return nil, NewExitError(ExitCommandError, "no cells match the --only filter")
	}
	return kept, nil
}

// resolveCacheRoot picks where cache components land. Descriptors
// without cache components get none; --cache-root wins otherwise, then
// the per-user cache dir.
func resolveCacheRoot(opts *RunOptions, p *pipeline.Pipeline, logger *slog.Logger) string {
	if len(p.Cache) == 0 {
		return ""
	}
	if opts.CacheRoot != "" {
		return opts.CacheRoot
	}
	base, err := os.UserCacheDir()
	if err != nil {
		logger.Warn("caching disabled: no user cache dir", "err", err)
		return ""
	}
	return filepath.Join(base, "tessera")
}

// newDispatcher assembles the notification transports from flags. IRC
// and webhooks are always available; email needs --smtp-addr.
func newDispatcher(opts *RunOptions, logger *slog.Logger) *notify.Dispatcher {
	dispatchOpts := []notify.Option{
		notify.WithMessenger(notify.NewIRCMessenger(opts.IRCNick)),
		notify.WithPoster(notify.NewHTTPPoster()),
		notify.WithLogger(logger),
	}
	if opts.SMTPAddr != "" {
		mailer := notify.NewSMTPMailer(opts.SMTPAddr, opts.SMTPFrom)
		mailer.Username = opts.SMTPUser
		mailer.Password = opts.SMTPPass
		dispatchOpts = append(dispatchOpts, notify.WithMailer(mailer))
	}
	return notify.NewDispatcher(dispatchOpts...)
}

// newLogger builds the command logger: text to stderr, debug level
// under --verbose.
func newLogger(cmd *cobra.Command, opts *RootOptions) *slog.Logger {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}
