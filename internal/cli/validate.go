package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/compiler"
	"github.com/tessera-dev/tessera/internal/matrix"
)

// ValidationResult holds the outcome of validating one descriptor.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config.yml>",
		Short: "Validate a pipeline descriptor",
		Long: `Validate a pipeline descriptor without executing anything.

Runs the full compile path: YAML syntax, schema conformance with
source positions, and semantic checks including matrix expansion,
so duplicate include cells surface here too. Findings carry E1xx
codes and are collected rather than reported one at a time.

Exit codes:
  0 - descriptor valid
  1 - validation findings
  2 - command error (file unreadable)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		_ = formatter.Error(compiler.ErrCodeRead, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read config", err)
	}

	name := compiler.PipelineName(configPath)
	formatter.VerboseLog("validating %s as pipeline %q", configPath, name)

	p, err := compiler.Compile(name, data)
	if err != nil {
		return outputValidationFailure(formatter, configPath, toFindings(err))
	}

	if opts.Verbose {
		// Compile already ran the expansion checks, so this cannot
		// fail; the cell count is still worth surfacing.
		cells, _ := matrix.Expand(p)
		formatter.VerboseLog("matrix expands to %d cells", len(cells))
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true})
	}
	fmt.Fprintf(formatter.Writer, "✓ %s: configuration valid\n", configPath)
	return nil
}

// toFindings flattens a compile failure into validation findings.
// Structural errors (unreadable YAML, multiple documents) become a
// single coded finding.
func toFindings(err error) []compiler.ValidationError {
	var dErr *compiler.DescriptorError
	if errors.As(err, &dErr) {
		return dErr.Errors
	}
	var cErr *compiler.Error
	if errors.As(err, &cErr) {
		return []compiler.ValidationError{{
			Field:   "document",
			Message: cErr.Message,
			Code:    cErr.Code,
		}}
	}
	return []compiler.ValidationError{{
		Field:   "document",
		Message: err.Error(),
		Code:    compiler.ErrCodeYAML,
	}}
}

func outputValidationFailure(formatter *OutputFormatter, configPath string, findings []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: findings},
			Error: &CLIError{
				Code:    findings[0].Code,
				Message: findings[0].Message,
			},
		}
		enc := json.NewEncoder(formatter.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d finding(s)", len(findings)))
	}

	fmt.Fprintf(formatter.Writer, "✗ %s: validation failed\n\n", configPath)
	for _, finding := range findings {
		fmt.Fprintf(formatter.Writer, "  %s\n", finding.Error())
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d finding(s)", len(findings)))
}
