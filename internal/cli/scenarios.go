package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/harness"
)

// NewScenariosCommand creates the scenarios command.
func NewScenariosCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scenarios <dir>",
		Short: "Run conformance scenario files",
		Long: `Run every conformance scenario file in a directory.

Each scenario compiles its inline descriptor and executes it through
the real engine against an in-memory store, with scripted step
results and a recording notifier, then checks the expected cells,
per-cell statuses, run outcome, and notification decisions.

Exit codes:
  0 - all scenarios passed
  1 - one or more scenarios failed
  2 - command error (missing or empty directory)

Examples:
  tessera scenarios ./scenarios
  tessera scenarios ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runScenarios(opts *RootOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenario directory not found: %s", dir))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	suite, err := harness.RunDir(ctx, dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	if opts.Format == "json" {
		return outputScenariosJSON(cmd, suite)
	}
	return outputScenariosText(cmd, suite)
}

func outputScenariosText(cmd *cobra.Command, suite *harness.SuiteResult) error {
	w := cmd.OutOrStdout()

	for _, failure := range suite.Failures {
		fmt.Fprintf(w, "✗ %s\n", failure.Scenario)
		for _, e := range failure.Errors {
			fmt.Fprintf(w, "    %s\n", e)
		}
	}
	if len(suite.Failures) > 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Scenarios: %d passed, %d failed, %d total\n", suite.Passed, suite.Failed, suite.Total)
	if !suite.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

func outputScenariosJSON(cmd *cobra.Command, suite *harness.SuiteResult) error {
	response := CLIResponse{Status: "ok", Data: suite}
	if !suite.Pass() {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_SCENARIOS_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", suite.Failed),
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}
	if !suite.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", suite.Failed))
	}
	return nil
}
