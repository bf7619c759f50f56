package pipeline

// Cell is one expanded matrix cell: a concrete (os, toolchain) pair
// plus the attributes it inherited or overrode during expansion.
type Cell struct {
	// Index is the cell's position in deterministic expansion order.
	Index int

	OS        string
	Toolchain string
	Dist      string

	// Env holds the merged KEY=VALUE environment for this cell:
	// pipeline-level entries first, then include-entry additions.
	Env []string

	// AllowFailure marks cells whose failure is tolerated: the run
	// outcome ignores them, though their own status still records the
	// failure.
	AllowFailure bool
}

// Key returns the cell's identity within a run, "os/toolchain". The
// expansion guarantees keys are unique across a run's cells.
func (c Cell) Key() string {
	return c.OS + "/" + c.Toolchain
}

// CellStatus is the terminal status of one cell.
type CellStatus string

const (
	CellPassed   CellStatus = "passed"
	CellFailed   CellStatus = "failed"
	CellCanceled CellStatus = "canceled"
)

// StepStatus is the terminal status of one executed command.
type StepStatus string

const (
	StepOK       StepStatus = "ok"
	StepFailed   StepStatus = "failed"
	StepSkipped  StepStatus = "skipped"
	StepCanceled StepStatus = "canceled"
)

// Outcome is the aggregate result of a run. A run succeeds when every
// cell either passed or failed with AllowFailure set.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
)

// OutcomeForCells folds cell results into a run outcome. Canceled
// cells fail the run regardless of allow-failure marking: a canceled
// run never reports success.
func OutcomeForCells(cells []CellResult) Outcome {
	for _, c := range cells {
		switch c.Status {
		case CellCanceled:
			return OutcomeFailed
		case CellFailed:
			if !c.Cell.AllowFailure {
				return OutcomeFailed
			}
		}
	}
	return OutcomeSuccess
}

// CellResult pairs a cell with its terminal status.
type CellResult struct {
	Cell       Cell
	Status     CellStatus
	DurationMS int64
}
