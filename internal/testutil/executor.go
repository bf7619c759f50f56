// Package testutil holds deterministic substitutes for the engine's
// moving parts: a scripted executor that never spawns a process and a
// manual wall clock. Tests and the conformance harness share them.
package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/tessera-dev/tessera/internal/executor"
)

// StepScript is one scripted rule: commands containing Match report
// the given exit code and output. Rules are checked in declaration
// order and the first match wins.
//
// Cell optionally restricts the rule to one matrix cell, named
// "os/toolchain". Every cell runs the identical command sequence, so
// without the restriction a rule cannot make just one cell fail.
type StepScript struct {
	Match    string `yaml:"match"`
	Cell     string `yaml:"cell,omitempty"`
	ExitCode int    `yaml:"exit_code"`
	Output   string `yaml:"output"`
}

// Call records one command the scripted executor received. Cell is
// recovered from the runner's injected environment.
type Call struct {
	Command string
	Cell    string
	Env     []string
}

// ScriptedExecutor implements executor.Executor without spawning
// processes. Commands matching no rule succeed with exit 0, so a
// scenario only scripts the steps it cares about. All reported
// durations are zero, keeping traces deterministic.
//
// Thread-safety: safe for concurrent use; parallel cell workers share
// one instance.
type ScriptedExecutor struct {
	mu    sync.Mutex
	rules []StepScript
	calls []Call
}

// NewScriptedExecutor creates an executor with the given rules.
func NewScriptedExecutor(rules ...StepScript) *ScriptedExecutor {
	return &ScriptedExecutor{rules: rules}
}

// Run records the call and returns the first matching rule's result.
// A canceled context is honored before matching, mirroring the real
// executor.
func (s *ScriptedExecutor) Run(ctx context.Context, command string, opts executor.Options) (executor.Result, error) {
	if err := ctx.Err(); err != nil {
		return executor.Result{ExitCode: -1}, err
	}

	cell := cellFromEnv(opts.Env)

	s.mu.Lock()
	s.calls = append(s.calls, Call{Command: command, Cell: cell, Env: opts.Env})
	rules := s.rules
	s.mu.Unlock()

	for _, r := range rules {
		if r.Cell != "" && r.Cell != cell {
			continue
		}
		if strings.Contains(command, r.Match) {
			return executor.Result{
				ExitCode: r.ExitCode,
				Output:   []byte(r.Output),
			}, nil
		}
	}
	return executor.Result{Output: []byte{}}, nil
}

// cellFromEnv rebuilds the "os/toolchain" cell key from the env the
// engine injects into every step.
func cellFromEnv(env []string) string {
	var os, toolchain string
	for _, entry := range env {
		if v, ok := strings.CutPrefix(entry, "TESSERA_OS_NAME="); ok {
			os = v
		}
		if v, ok := strings.CutPrefix(entry, "TESSERA_RUST_VERSION="); ok {
			toolchain = v
		}
	}
	if os == "" && toolchain == "" {
		return ""
	}
	return os + "/" + toolchain
}

// Calls returns a copy of every recorded call in execution order.
func (s *ScriptedExecutor) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Commands returns just the command strings, in execution order.
func (s *ScriptedExecutor) Commands() []string {
	calls := s.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.Command
	}
	return out
}

// ExecutorFunc adapts a function to executor.Executor, for tests that
// need one-off behavior like blocking until cancellation.
type ExecutorFunc func(ctx context.Context, command string, opts executor.Options) (executor.Result, error)

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, command string, opts executor.Options) (executor.Result, error) {
	return f(ctx, command, opts)
}
