package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/engine"
	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
)

// PlanView is the JSON shape of run --dry-run: the expanded matrix
// plus the command sequence every cell would execute.
type PlanView struct {
	MatrixView
	Steps []StepPlanView `json:"steps"`
}

// RunReportView is the JSON shape of a finished run.
type RunReportView struct {
	RunID         string           `json:"run_id"`
	Number        int64            `json:"run_number"`
	Pipeline      string           `json:"pipeline"`
	Outcome       string           `json:"outcome"`
	Canceled      bool             `json:"canceled,omitempty"`
	DurationMS    int64            `json:"duration_ms"`
	Cells         []CellReportView `json:"cells"`
	Notifications []DeliveryView   `json:"notifications,omitempty"`
}

// CellReportView is one cell's result in a run report.
type CellReportView struct {
	Cell         string `json:"cell"`
	Status       string `json:"status"`
	AllowFailure bool   `json:"allow_failure,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

// DeliveryView is one notification decision in a run report.
type DeliveryView struct {
	Channel    string `json:"channel"`
	Target     string `json:"target"`
	Dispatched bool   `json:"dispatched"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

// printPlan renders the dry-run plan: matrix table plus the per-cell
// command sequence.
func printPlan(opts *RootOptions, cmd *cobra.Command, p *pipeline.Pipeline, cells []pipeline.Cell) error {
	view := PlanView{
		MatrixView: buildMatrixView(p, cells),
		Steps:      buildStepPlan(p),
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(view)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Pipeline %s: %d cells, %d allow-failure (dry run)\n\n",
		p.Name, len(view.Cells), view.AllowFailureCells)
	writeCellTable(w, view.Cells)

	fmt.Fprintln(w, "\nPlan per cell:")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, step := range view.Steps {
		phase := step.Phase
		if step.Hook {
			phase += " (hook)"
		}
		fmt.Fprintf(tw, "  %s\t%s\n", phase, step.Command)
	}
	tw.Flush()
	return nil
}

// printRunReport renders the outcome of a finished run.
func printRunReport(opts *RootOptions, cmd *cobra.Command, result *engine.RunResult) error {
	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(buildRunReport(result))
	}

	w := cmd.OutOrStdout()
	suffix := ""
	if result.Canceled {
		suffix = " (interrupted)"
	}
	fmt.Fprintf(w, "Run %s #%d (%s): %s in %s%s\n\n",
		result.RunID, result.Number, result.Pipeline,
		result.Outcome, formatDuration(result.Duration.Milliseconds()), suffix)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, cell := range result.Cells {
		glyph := "✗"
		if cell.Status == pipeline.CellPassed {
			glyph = "✓"
		}
		note := ""
		if cell.Cell.AllowFailure && cell.Status == pipeline.CellFailed {
			note = "(allowed)"
		}
		fmt.Fprintf(tw, "  %s %s\t%s\t%s\t%s\n",
			glyph, cell.Cell.Key(), cell.Status, formatDuration(cell.DurationMS), note)
	}
	tw.Flush()

	if len(result.Notifications) > 0 {
		fmt.Fprintln(w, "\nNotifications:")
		for _, d := range result.Notifications {
			fmt.Fprintf(w, "  %s %s: %s\n", d.Channel, d.Target, deliveryVerdict(d))
		}
	}
	return nil
}

func buildRunReport(result *engine.RunResult) RunReportView {
	report := RunReportView{
		RunID:      result.RunID,
		Number:     result.Number,
		Pipeline:   result.Pipeline,
		Outcome:    string(result.Outcome),
		Canceled:   result.Canceled,
		DurationMS: result.Duration.Milliseconds(),
		Cells:      make([]CellReportView, 0, len(result.Cells)),
	}
	for _, cell := range result.Cells {
		report.Cells = append(report.Cells, CellReportView{
			Cell:         cell.Cell.Key(),
			Status:       string(cell.Status),
			AllowFailure: cell.Cell.AllowFailure,
			DurationMS:   cell.DurationMS,
		})
	}
	for _, d := range result.Notifications {
		view := DeliveryView{
			Channel:    d.Channel,
			Target:     d.Target,
			Dispatched: d.Dispatched,
			Reason:     d.Reason,
		}
		if d.Err != nil {
			view.Error = d.Err.Error()
		}
		report.Notifications = append(report.Notifications, view)
	}
	return report
}

func deliveryVerdict(d notify.Delivery) string {
	switch {
	case d.Dispatched:
		return fmt.Sprintf("sent (%s)", d.Reason)
	case d.Fired:
		return fmt.Sprintf("failed: %v", d.Err)
	default:
		return fmt.Sprintf("suppressed (%s)", d.Reason)
	}
}

// formatDuration renders a millisecond count the way slog renders
// time.Duration, "1m23s" style.
func formatDuration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}
