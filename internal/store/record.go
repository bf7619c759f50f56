package store

import (
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// RunRecord is one row of the runs table. Nullable columns use pointer
// fields; they are nil while the run is in flight.
type RunRecord struct {
	ID            string
	Pipeline      string
	Number        int64
	ConfigDigest  string
	Language      string
	EngineVersion string
	SchemaVersion string
	StartedAt     time.Time
	FinishedAt    *time.Time
	DurationMS    *int64
	Outcome       *pipeline.Outcome
}

// Finished reports whether the run reached a terminal outcome.
func (r RunRecord) Finished() bool {
	return r.Outcome != nil
}

// CellRecord is one row of the cells table.
type CellRecord struct {
	RunID        string
	Key          string
	Index        int64
	OS           string
	Toolchain    string
	Dist         string
	AllowFailure bool
	Status       *pipeline.CellStatus
	StartedSeq   int64
	FinishedSeq  *int64
	DurationMS   *int64
}

// StepRecord is one row of the steps table: a single executed command
// with its captured output.
type StepRecord struct {
	RunID      string
	CellKey    string
	Seq        int64
	Phase      pipeline.Phase
	PhaseIndex int64
	Command    string
	Status     pipeline.StepStatus
	ExitCode   int64
	Output     string
	Truncated  bool
	DurationMS int64
}

// NotificationRecord is one row of the notifications table. Every
// dispatch decision is recorded, including suppressions, so history
// explains why a channel did or did not fire.
type NotificationRecord struct {
	ID         int64
	RunID      string
	Channel    string
	Target     string
	Outcome    pipeline.Outcome
	Reason     string
	Dispatched bool
	Error      string
	CreatedAt  time.Time
}

// PipelineSummary aggregates a pipeline's history for listing.
type PipelineSummary struct {
	Name        string
	Runs        int64
	LastNumber  int64
	LastOutcome string
	LastStarted time.Time
}

// CellHistoryRow joins a historical cell with its run for filtered
// history queries.
type CellHistoryRow struct {
	RunID     string
	RunNumber int64
	Cell      CellRecord
	StartedAt time.Time
}
