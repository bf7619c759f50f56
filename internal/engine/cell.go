package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tessera-dev/tessera/internal/executor"
	"github.com/tessera-dev/tessera/internal/pipeline"
)

// runCell executes one cell's command sequence and returns its result.
// Progress is emitted onto the run's queue; nothing here touches the
// store directly.
func (e *Engine) runCell(ctx context.Context, run *runState, cell pipeline.Cell) pipeline.CellResult {
	logger := e.logger.With("run_id", run.id, "cell", cell.Key())
	start := e.now()

	run.queue.Enqueue(cellStartedEvent(cell))
	logger.Info("cell started", "index", cell.Index, "allow_failure", cell.AllowFailure)

	env := cellEnv(run, cell, e.cacheDir(run, cell))

	var mirror io.Writer
	if e.stepOutput != nil {
		pw := newPrefixWriter(e.stepOutput, &e.outputMu, cell.Key()+" | ")
		defer pw.Flush()
		mirror = pw
	}

	var failed, canceled bool
	for _, phase := range pipeline.BlockingPhases() {
		for i, command := range run.p.Commands.ForPhase(phase) {
			switch {
			case failed:
				// A blocking failure halts the cell; what never ran is
				// still recorded so the timeline shows the gap.
				run.queue.Enqueue(stepFinishedEvent(&StepFinished{
					Cell:       cell,
					Phase:      phase,
					PhaseIndex: i,
					Command:    command,
					Status:     pipeline.StepSkipped,
					ExitCode:   -1,
				}))
			case canceled || ctx.Err() != nil:
				canceled = true
				run.queue.Enqueue(stepFinishedEvent(&StepFinished{
					Cell:       cell,
					Phase:      phase,
					PhaseIndex: i,
					Command:    command,
					Status:     pipeline.StepCanceled,
					ExitCode:   -1,
				}))
			default:
				step := e.runStep(ctx, cell, phase, i, command, env, mirror)
				run.queue.Enqueue(stepFinishedEvent(step))
				switch step.Status {
				case pipeline.StepFailed:
					failed = true
					logger.Warn("step failed",
						"phase", phase,
						"step", i,
						"exit", step.ExitCode,
					)
				case pipeline.StepCanceled:
					canceled = true
				default:
					logger.Debug("step ok",
						"phase", phase,
						"step", i,
						"duration", step.Duration.Round(time.Millisecond),
					)
				}
			}
		}
	}

	status := pipeline.CellPassed
	switch {
	case failed:
		// Failure decided the cell's fate even if cancellation arrived
		// afterwards.
		status = pipeline.CellFailed
	case canceled:
		status = pipeline.CellCanceled
	}

	e.runHooks(ctx, run, cell, status, env, mirror)

	duration := e.now().Sub(start)
	run.queue.Enqueue(cellFinishedEvent(cell, status, duration))
	logger.Info("cell finished",
		"status", status,
		"duration", duration.Round(time.Millisecond),
	)

	return pipeline.CellResult{
		Cell:       cell,
		Status:     status,
		DurationMS: duration.Milliseconds(),
	}
}

// runHooks executes the outcome hooks for a decided cell. Hook
// failures are recorded but never change the cell's status, and a
// later hook command still runs after an earlier one fails. Canceled
// cells spawn no hooks at all.
func (e *Engine) runHooks(ctx context.Context, run *runState, cell pipeline.Cell, status pipeline.CellStatus, env []string, mirror io.Writer) {
	for _, phase := range hookPhases(status) {
		for i, command := range run.p.Commands.ForPhase(phase) {
			if ctx.Err() != nil {
				return
			}
			step := e.runStep(ctx, cell, phase, i, command, env, mirror)
			run.queue.Enqueue(stepFinishedEvent(step))
			if step.Status == pipeline.StepFailed {
				e.logger.Debug("hook step failed",
					"run_id", run.id,
					"cell", cell.Key(),
					"phase", phase,
					"step", i,
					"exit", step.ExitCode,
				)
			}
		}
	}
}

// hookPhases returns which after hooks a cell with the given status
// runs, in order.
func hookPhases(status pipeline.CellStatus) []pipeline.Phase {
	switch status {
	case pipeline.CellPassed:
		return []pipeline.Phase{pipeline.PhaseAfterSuccess, pipeline.PhaseAfterScript}
	case pipeline.CellFailed:
		return []pipeline.Phase{pipeline.PhaseAfterFailure, pipeline.PhaseAfterScript}
	}
	return nil
}

// runStep executes one command and classifies the result. The executor
// reports how the process ended; this is where exit codes become step
// statuses.
func (e *Engine) runStep(ctx context.Context, cell pipeline.Cell, phase pipeline.Phase, index int, command string, env []string, mirror io.Writer) *StepFinished {
	res, err := e.executor.Run(ctx, command, executor.Options{
		Dir:         e.workDir,
		Env:         env,
		Timeout:     e.stepTimeout,
		OutputLimit: e.outputLimit,
		Mirror:      mirror,
	})

	step := &StepFinished{
		Cell:       cell,
		Phase:      phase,
		PhaseIndex: index,
		Command:    command,
		ExitCode:   res.ExitCode,
		Output:     string(res.Output),
		Truncated:  res.Truncated,
		Duration:   res.Duration,
	}

	switch {
	case err != nil && ctx.Err() != nil:
		step.Status = pipeline.StepCanceled
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		// The step's own timeout, not the run dying: a failure.
		step.Status = pipeline.StepFailed
		step.Output = appendNote(step.Output, fmt.Sprintf("step timed out after %s", e.stepTimeout))
	case err != nil:
		// Spawn failure. No process ran, but the command still failed.
		step.Status = pipeline.StepFailed
		step.Output = appendNote(step.Output, err.Error())
	case res.ExitCode == 0:
		step.Status = pipeline.StepOK
	default:
		step.Status = pipeline.StepFailed
	}

	return step
}

// cacheDir materializes the cell's cache directory. Returns "" when
// the descriptor declares no cache components, no root is configured,
// or the directory cannot be created; steps then run without
// TESSERA_CACHE_DIR.
func (e *Engine) cacheDir(run *runState, cell pipeline.Cell) string {
	if e.cacheRoot == "" || len(run.p.Cache) == 0 {
		return ""
	}
	dir := filepath.Join(e.cacheRoot, run.p.Name, cell.OS+"-"+cell.Toolchain)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		e.logger.Warn("cache dir unavailable",
			"run_id", run.id,
			"cell", cell.Key(),
			"dir", dir,
			"err", err,
		)
		return ""
	}
	return dir
}

// cellEnv builds the extra environment for a cell's steps: runner
// identity variables first, then the descriptor's env entries so a
// descriptor can override the runner's values.
func cellEnv(run *runState, cell pipeline.Cell, cacheDir string) []string {
	env := []string{
		"CI=true",
		"TESSERA=true",
		"TESSERA_PIPELINE=" + run.p.Name,
		"TESSERA_RUN_ID=" + run.id,
		fmt.Sprintf("TESSERA_RUN_NUMBER=%d", run.number),
		"TESSERA_OS_NAME=" + cell.OS,
		"TESSERA_RUST_VERSION=" + cell.Toolchain,
		fmt.Sprintf("TESSERA_ALLOW_FAILURE=%t", cell.AllowFailure),
	}
	if run.p.Language != "" {
		env = append(env, "TESSERA_LANGUAGE="+run.p.Language)
	}
	if cell.Dist != "" {
		env = append(env, "TESSERA_DIST="+cell.Dist)
	}
	if cacheDir != "" {
		env = append(env, "TESSERA_CACHE_DIR="+cacheDir)
	}
	return append(env, cell.Env...)
}

func appendNote(output, note string) string {
	if output == "" {
		return note
	}
	return output + "\n" + note
}
