package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/selector"
	"github.com/tessera-dev/tessera/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Pipeline string
	Limit    int
	Where    []string
}

// PipelineSummaryView is one pipeline in the history overview.
type PipelineSummaryView struct {
	Pipeline    string    `json:"pipeline"`
	Runs        int64     `json:"runs"`
	LastNumber  int64     `json:"last_run_number"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastStarted time.Time `json:"last_started"`
}

// RunView is one run in a pipeline's history listing.
type RunView struct {
	RunID      string    `json:"run_id"`
	Number     int64     `json:"run_number"`
	Outcome    string    `json:"outcome,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS *int64    `json:"duration_ms,omitempty"`
}

// CellHistoryView is one historical cell in a --where listing.
type CellHistoryView struct {
	RunNumber    int64     `json:"run_number"`
	RunID        string    `json:"run_id"`
	StartedAt    time.Time `json:"started_at"`
	Cell         string    `json:"cell"`
	Status       string    `json:"status,omitempty"`
	AllowFailure bool      `json:"allow_failure,omitempty"`
	DurationMS   *int64    `json:"duration_ms,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List past runs from the history database.

Without --pipeline, prints a per-pipeline overview. With --pipeline,
lists that pipeline's runs newest first. Adding --where narrows the
listing to individual cells matching attribute selectors, so a flaky
cell's history reads in one command.

Examples:
  tessera history --db ./history.db
  tessera history --db ./history.db --pipeline ci --limit 10
  tessera history --db ./history.db --pipeline ci --where rust=nightly
  tessera history --db ./history.db --pipeline ci --where os=osx,rust=beta`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "tessera.db", "path to the SQLite history database")
	cmd.Flags().StringVar(&opts.Pipeline, "pipeline", "", "pipeline to list runs for")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum rows to return (0 = all)")
	cmd.Flags().StringArrayVar(&opts.Where, "where", nil, "narrow to cells matching key=value[,key=value] (repeatable; requires --pipeline)")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	if len(opts.Where) > 0 && opts.Pipeline == "" {
		return NewExitError(ExitCommandError, "--where requires --pipeline")
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	switch {
	case len(opts.Where) > 0:
		return historyCells(ctx, opts, cmd, formatter, st)
	case opts.Pipeline != "":
		return historyRuns(ctx, opts, cmd, formatter, st)
	default:
		return historyOverview(ctx, opts, cmd, formatter, st)
	}
}

// openExistingStore opens a history database that must already exist.
// Opening a missing path would create an empty database, which for the
// read-only commands only hides a typo.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", path))
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func historyOverview(ctx context.Context, opts *HistoryOptions, cmd *cobra.Command, formatter *OutputFormatter, st *store.Store) error {
	summaries, err := st.ListPipelines(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list pipelines", err)
	}

	views := make([]PipelineSummaryView, 0, len(summaries))
	for _, s := range summaries {
		views = append(views, PipelineSummaryView{
			Pipeline:    s.Name,
			Runs:        s.Runs,
			LastNumber:  s.LastNumber,
			LastOutcome: s.LastOutcome,
			LastStarted: s.LastStarted,
		})
	}
	if opts.Format == "json" {
		return formatter.Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PIPELINE\tRUNS\tLAST RUN\tOUTCOME\tSTARTED")
	for _, v := range views {
		outcome := v.LastOutcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t#%d\t%s\t%s\n",
			v.Pipeline, v.Runs, v.LastNumber, outcome, formatTableTime(v.LastStarted))
	}
	return tw.Flush()
}

func historyRuns(ctx context.Context, opts *HistoryOptions, cmd *cobra.Command, formatter *OutputFormatter, st *store.Store) error {
	runs, err := st.ListRuns(ctx, opts.Pipeline, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		view := RunView{
			RunID:      r.ID,
			Number:     r.Number,
			StartedAt:  r.StartedAt,
			DurationMS: r.DurationMS,
		}
		if r.Outcome != nil {
			view.Outcome = string(*r.Outcome)
		}
		views = append(views, view)
	}
	if opts.Format == "json" {
		return formatter.Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintf(w, "No runs recorded for pipeline %q.\n", opts.Pipeline)
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tID\tOUTCOME\tSTARTED\tDURATION")
	for _, v := range views {
		outcome := v.Outcome
		if outcome == "" {
			outcome = "-"
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\n",
			v.Number, v.RunID, outcome, formatTableTime(v.StartedAt), formatNullDuration(v.DurationMS))
	}
	return tw.Flush()
}

func historyCells(ctx context.Context, opts *HistoryOptions, cmd *cobra.Command, formatter *OutputFormatter, st *store.Store) error {
	sels, err := selector.ParseList(opts.Where)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --where filter", err)
	}

	rows, err := st.CellHistory(ctx, opts.Pipeline, sels, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query cell history", err)
	}

	views := make([]CellHistoryView, 0, len(rows))
	for _, row := range rows {
		view := CellHistoryView{
			RunNumber:    row.RunNumber,
			RunID:        row.RunID,
			StartedAt:    row.StartedAt,
			Cell:         row.Cell.Key,
			AllowFailure: row.Cell.AllowFailure,
			DurationMS:   row.Cell.DurationMS,
		}
		if row.Cell.Status != nil {
			view.Status = string(*row.Cell.Status)
		}
		views = append(views, view)
	}
	if opts.Format == "json" {
		return formatter.Success(views)
	}

	w := cmd.OutOrStdout()
	if len(views) == 0 {
		fmt.Fprintln(w, "No cells match.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCELL\tSTATUS\tSTARTED\tDURATION")
	for _, v := range views {
		status := v.Status
		if status == "" {
			status = "-"
		}
		if v.AllowFailure && status == "failed" {
			status += " (allowed)"
		}
		fmt.Fprintf(tw, "#%d\t%s\t%s\t%s\t%s\n",
			v.RunNumber, v.Cell, status, formatTableTime(v.StartedAt), formatNullDuration(v.DurationMS))
	}
	return tw.Flush()
}

func formatTableTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func formatNullDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	return formatDuration(*ms)
}
