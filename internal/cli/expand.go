package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/matrix"
	"github.com/tessera-dev/tessera/internal/pipeline"
)

// CellView is the JSON shape of one expanded cell.
type CellView struct {
	Index        int      `json:"index"`
	Cell         string   `json:"cell"`
	OS           string   `json:"os"`
	Rust         string   `json:"rust"`
	Dist         string   `json:"dist,omitempty"`
	AllowFailure bool     `json:"allow_failure,omitempty"`
	Env          []string `json:"env,omitempty"`
}

// MatrixView is the JSON shape of an expanded matrix.
type MatrixView struct {
	Pipeline          string     `json:"pipeline"`
	Language          string     `json:"language,omitempty"`
	Cells             []CellView `json:"cells"`
	AllowFailureCells int        `json:"allow_failure_cells"`
}

// StepPlanView is one planned command of a cell's sequence.
type StepPlanView struct {
	Phase   string `json:"phase"`
	Command string `json:"command"`
	Hook    bool   `json:"hook,omitempty"`
}

// NewExpandCommand creates the expand command.
func NewExpandCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand <config.yml>",
		Short: "Print the expanded build matrix",
		Long: `Compile a pipeline descriptor and print its expanded build matrix
without executing anything.

Cells appear in execution order: the os/toolchain cross product first
(os outer, toolchain inner, declaration order preserved), explicit
matrix.include cells appended. Exclusions are already applied;
allow-failure cells are marked.

Examples:
  tessera expand ci.yml
  tessera expand ci.yml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExpand(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runExpand(opts *RootOptions, configPath string, cmd *cobra.Command) error {
	p, err := compileConfig(configPath, "")
	if err != nil {
		return err
	}
	cells, err := matrix.Expand(p)
	if err != nil {
		return WrapExitError(ExitCommandError, "matrix expansion failed", err)
	}

	view := buildMatrixView(p, cells)
	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(view)
	}

	w := cmd.OutOrStdout()
	if p.Language != "" {
		fmt.Fprintf(w, "Pipeline %s (language %s)\n\n", p.Name, p.Language)
	} else {
		fmt.Fprintf(w, "Pipeline %s\n\n", p.Name)
	}
	writeCellTable(w, view.Cells)
	fmt.Fprintf(w, "\n%d cells, %d allow-failure\n", len(view.Cells), view.AllowFailureCells)
	return nil
}

func buildMatrixView(p *pipeline.Pipeline, cells []pipeline.Cell) MatrixView {
	view := MatrixView{
		Pipeline: p.Name,
		Language: p.Language,
		Cells:    make([]CellView, 0, len(cells)),
	}
	for _, cell := range cells {
		if cell.AllowFailure {
			view.AllowFailureCells++
		}
		view.Cells = append(view.Cells, CellView{
			Index:        cell.Index,
			Cell:         cell.Key(),
			OS:           cell.OS,
			Rust:         cell.Toolchain,
			Dist:         cell.Dist,
			AllowFailure: cell.AllowFailure,
			Env:          cell.Env,
		})
	}
	return view
}

// buildStepPlan lists the commands a single cell will run, in phase
// order. Hook phases run conditionally after the cell's fate is
// decided.
func buildStepPlan(p *pipeline.Pipeline) []StepPlanView {
	var plan []StepPlanView
	for _, phase := range pipeline.Phases() {
		for _, command := range p.Commands.ForPhase(phase) {
			plan = append(plan, StepPlanView{
				Phase:   string(phase),
				Command: command,
				Hook:    !phase.Blocking(),
			})
		}
	}
	return plan
}

func writeCellTable(w io.Writer, cells []CellView) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CELL\tOS\tRUST\tDIST\tALLOW FAILURE")
	for _, c := range cells {
		allow := ""
		if c.AllowFailure {
			allow = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Cell, c.OS, c.Rust, c.Dist, allow)
	}
	tw.Flush()
}
