// Package executor runs individual matrix cell commands as shell
// processes. It owns process-group lifecycle (spawn, capture, kill on
// cancellation) and reports exit codes; deciding what a non-zero exit
// means is the engine's job.
package executor

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Options configures a single command execution.
type Options struct {
	// Dir is the working directory. Empty means the runner's cwd.
	Dir string

	// Env holds extra KEY=VALUE entries appended after the inherited
	// process environment, so cell attributes override inherited vars.
	Env []string

	// Timeout bounds the command's wall clock time. Zero means no
	// limit beyond the caller's context.
	Timeout time.Duration

	// OutputLimit caps captured combined output in bytes. Zero applies
	// DefaultOutputLimit; negative disables the cap.
	OutputLimit int64

	// Mirror, when set, receives the combined output as it is produced,
	// in addition to the captured buffer. Mirror errors are swallowed; a
	// broken log sink must not fail the step.
	Mirror io.Writer
}

// Result reports one finished command.
type Result struct {
	// ExitCode is the command's exit status. Commands killed by a
	// signal or failing to spawn report -1.
	ExitCode int

	// Output is the captured combined stdout and stderr, possibly
	// truncated at the configured limit.
	Output []byte

	// Truncated is set when Output was cut at the limit.
	Truncated bool

	Duration time.Duration
}

// Executor runs one shell command to completion.
//
// Run returns an error only when the command could not be executed at
// all (spawn failure, canceled context). A command that starts and
// exits non-zero is a successful execution with a non-zero ExitCode.
type Executor interface {
	Run(ctx context.Context, command string, opts Options) (Result, error)
}

// killGracePeriod is how long a canceled command gets between SIGTERM
// and SIGKILL of its process group.
const killGracePeriod = 5 * time.Second

// Shell executes commands through "sh -c" in their own process group,
// mirroring how hosted CI workers run descriptor steps.
type Shell struct {
	// Grace overrides killGracePeriod when positive. Tests use a short
	// grace to keep cancellation fast.
	Grace time.Duration
}

// NewShell returns a Shell with the default grace period.
func NewShell() *Shell {
	return &Shell{}
}

// Run executes command under "sh -c".
//
// The child is placed in its own process group so cancellation kills
// the whole pipeline a step may have spawned, not just the shell.
// Cancellation sends SIGTERM to the group, then SIGKILL after the
// grace period.
func (s *Shell) Run(ctx context.Context, command string, opts Options) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{ExitCode: -1}, err
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = opts.Dir
	cmd.Env = append(os.Environ(), opts.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	grace := s.Grace
	if grace <= 0 {
		grace = killGracePeriod
	}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		pgid := -cmd.Process.Pid
		if err := syscall.Kill(pgid, syscall.SIGTERM); err != nil {
			return syscall.Kill(pgid, syscall.SIGKILL)
		}
		time.AfterFunc(grace, func() {
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		})
		return nil
	}

	sink := newQuotaWriter(opts.OutputLimit)
	var out io.Writer = sink
	if opts.Mirror != nil {
		out = &teeWriter{sink: sink, mirror: opts.Mirror}
	}
	cmd.Stdout = out
	cmd.Stderr = out

	start := time.Now()
	err := cmd.Run()
	result := Result{
		ExitCode:  0,
		Output:    sink.Bytes(),
		Truncated: sink.Truncated(),
		Duration:  time.Since(start),
	}

	if err == nil {
		return result, nil
	}

	// Canceled or timed out: report the context error so the engine
	// records the step as canceled rather than failed.
	if runCtx.Err() != nil {
		result.ExitCode = -1
		return result, runCtx.Err()
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	// Spawn failure (sh missing, bad working directory).
	result.ExitCode = -1
	return result, err
}
