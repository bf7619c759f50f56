package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
	RunID    string
}

// RunDetailView is the JSON shape of one stored run with its full
// timeline.
type RunDetailView struct {
	Run           RunHeaderView      `json:"run"`
	Cells         []CellDetailView   `json:"cells"`
	Notifications []NotificationView `json:"notifications,omitempty"`
}

// RunHeaderView is the run row itself.
type RunHeaderView struct {
	RunID         string     `json:"run_id"`
	Pipeline      string     `json:"pipeline"`
	Number        int64      `json:"run_number"`
	Outcome       string     `json:"outcome,omitempty"`
	ConfigDigest  string     `json:"config_digest"`
	Language      string     `json:"language,omitempty"`
	EngineVersion string     `json:"engine_version"`
	SchemaVersion string     `json:"schema_version"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	DurationMS    *int64     `json:"duration_ms,omitempty"`
}

// CellDetailView is one cell with its executed steps in seq order.
type CellDetailView struct {
	Cell         string     `json:"cell"`
	OS           string     `json:"os"`
	Rust         string     `json:"rust"`
	Dist         string     `json:"dist,omitempty"`
	AllowFailure bool       `json:"allow_failure,omitempty"`
	Status       string     `json:"status,omitempty"`
	StartedSeq   int64      `json:"started_seq"`
	FinishedSeq  *int64     `json:"finished_seq,omitempty"`
	DurationMS   *int64     `json:"duration_ms,omitempty"`
	Steps        []StepView `json:"steps"`
}

// StepView is one executed command.
type StepView struct {
	Seq        int64  `json:"seq"`
	Phase      string `json:"phase"`
	PhaseIndex int64  `json:"phase_index"`
	Command    string `json:"command"`
	Status     string `json:"status"`
	ExitCode   int64  `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Output     string `json:"output,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
}

// NotificationView is one recorded dispatch decision.
type NotificationView struct {
	Channel    string    `json:"channel"`
	Target     string    `json:"target"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason"`
	Dispatched bool      `json:"dispatched"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Replay a stored run timeline",
		Long: `Print one recorded run in full: the run row, every cell with its
step timeline in logical-clock order, and every notification decision
with its gating reason.

JSON output includes captured step output; text output elides it.

Examples:
  tessera show --db ./history.db --run 01890a5d-ac96-774b-bcce-b302099a8057
  tessera show --db ./history.db --run 01890a5d-ac96-774b-bcce-b302099a8057 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "tessera.db", "path to the SQLite history database")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show (required)")
	_ = cmd.MarkFlagRequired("run")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command) error {
	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	detail, err := loadRunDetail(ctx, st, opts.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", opts.RunID))
		}
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if opts.Format == "json" {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		return formatter.Success(detail)
	}
	printRunDetail(cmd, detail)
	return nil
}

// loadRunDetail assembles the stored run, cells, steps, and
// notifications into one view, with steps grouped under their cells.
func loadRunDetail(ctx context.Context, st *store.Store, runID string) (*RunDetailView, error) {
	run, err := st.ReadRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	cells, err := st.ReadCells(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read cells: %w", err)
	}
	steps, err := st.ReadSteps(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	notifications, err := st.ReadNotifications(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}

	stepsByCell := make(map[string][]StepView, len(cells))
	for _, s := range steps {
		stepsByCell[s.CellKey] = append(stepsByCell[s.CellKey], StepView{
			Seq:        s.Seq,
			Phase:      string(s.Phase),
			PhaseIndex: s.PhaseIndex,
			Command:    s.Command,
			Status:     string(s.Status),
			ExitCode:   s.ExitCode,
			DurationMS: s.DurationMS,
			Output:     s.Output,
			Truncated:  s.Truncated,
		})
	}

	detail := &RunDetailView{
		Run: RunHeaderView{
			RunID:         run.ID,
			Pipeline:      run.Pipeline,
			Number:        run.Number,
			ConfigDigest:  run.ConfigDigest,
			Language:      run.Language,
			EngineVersion: run.EngineVersion,
			SchemaVersion: run.SchemaVersion,
			StartedAt:     run.StartedAt,
			FinishedAt:    run.FinishedAt,
			DurationMS:    run.DurationMS,
		},
		Cells: make([]CellDetailView, 0, len(cells)),
	}
	if run.Outcome != nil {
		detail.Run.Outcome = string(*run.Outcome)
	}

	for _, c := range cells {
		view := CellDetailView{
			Cell:         c.Key,
			OS:           c.OS,
			Rust:         c.Toolchain,
			Dist:         c.Dist,
			AllowFailure: c.AllowFailure,
			StartedSeq:   c.StartedSeq,
			FinishedSeq:  c.FinishedSeq,
			DurationMS:   c.DurationMS,
			Steps:        stepsByCell[c.Key],
		}
		if view.Steps == nil {
			view.Steps = []StepView{}
		}
		if c.Status != nil {
			view.Status = string(*c.Status)
		}
		detail.Cells = append(detail.Cells, view)
	}

	for _, n := range notifications {
		detail.Notifications = append(detail.Notifications, NotificationView{
			Channel:    n.Channel,
			Target:     n.Target,
			Outcome:    string(n.Outcome),
			Reason:     n.Reason,
			Dispatched: n.Dispatched,
			Error:      n.Error,
			CreatedAt:  n.CreatedAt,
		})
	}
	return detail, nil
}

func printRunDetail(cmd *cobra.Command, detail *RunDetailView) {
	w := cmd.OutOrStdout()
	run := detail.Run

	outcome := run.Outcome
	if outcome == "" {
		outcome = "unfinished"
	}
	fmt.Fprintf(w, "Run %s (%s #%d): %s\n", run.RunID, run.Pipeline, run.Number, outcome)
	fmt.Fprintf(w, "  started  %s\n", formatTableTime(run.StartedAt))
	if run.DurationMS != nil {
		fmt.Fprintf(w, "  duration %s\n", formatDuration(*run.DurationMS))
	}
	fmt.Fprintf(w, "  digest   %s\n", run.ConfigDigest)

	for _, cell := range detail.Cells {
		status := cell.Status
		if status == "" {
			status = "unfinished"
		}
		note := ""
		if cell.AllowFailure && status == "failed" {
			note = " (allowed)"
		}
		fmt.Fprintf(w, "\n%s: %s%s\n", cell.Cell, status, note)
		for _, step := range cell.Steps {
			line := fmt.Sprintf("  [%d] %s: %s %s (exit %d, %s)",
				step.Seq, step.Phase, step.Command, step.Status, step.ExitCode,
				formatDuration(step.DurationMS))
			if step.Truncated {
				line += " [output truncated]"
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(detail.Notifications) > 0 {
		fmt.Fprintln(w, "\nNotifications:")
		for _, n := range detail.Notifications {
			fmt.Fprintf(w, "  %s %s: %s\n", n.Channel, n.Target, recordVerdict(n))
		}
	}
}

func recordVerdict(n NotificationView) string {
	switch {
	case n.Dispatched:
		return fmt.Sprintf("sent (%s)", n.Reason)
	case n.Error != "":
		return fmt.Sprintf("failed: %s (%s)", n.Error, n.Reason)
	default:
		return fmt.Sprintf("suppressed (%s)", n.Reason)
	}
}
