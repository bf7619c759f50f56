package engine

import (
	"fmt"
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// EventType distinguishes the progress events workers emit.
type EventType int

const (
	// EventTypeCellStarted marks a worker picking up a cell.
	EventTypeCellStarted EventType = iota + 1
	// EventTypeStepFinished reports one executed or skipped command.
	EventTypeStepFinished
	// EventTypeCellFinished reports a cell's terminal status.
	EventTypeCellFinished
)

func (t EventType) String() string {
	switch t {
	case EventTypeCellStarted:
		return "cell_started"
	case EventTypeStepFinished:
		return "step_finished"
	case EventTypeCellFinished:
		return "cell_finished"
	}
	return fmt.Sprintf("event(%d)", int(t))
}

// Event wraps cell progress for the persist queue. Exactly one payload
// field is set, matching Type.
type Event struct {
	Type         EventType
	CellStarted  *CellStarted
	StepFinished *StepFinished
	CellFinished *CellFinished
}

// CellStarted records that a worker began executing a cell. The
// persist loop turns it into the cell row; it must precede the cell's
// step events, which the worker's own sequencing guarantees.
type CellStarted struct {
	Cell pipeline.Cell
}

// StepFinished records one command of a cell, whether it ran or was
// skipped after an earlier blocking failure. PhaseIndex is the
// command's position within its phase.
type StepFinished struct {
	Cell       pipeline.Cell
	Phase      pipeline.Phase
	PhaseIndex int
	Command    string
	Status     pipeline.StepStatus
	ExitCode   int
	Output     string
	Truncated  bool
	Duration   time.Duration
}

// CellFinished records a cell's terminal status and total duration.
type CellFinished struct {
	Cell     pipeline.Cell
	Status   pipeline.CellStatus
	Duration time.Duration
}

func cellStartedEvent(cell pipeline.Cell) Event {
	return Event{Type: EventTypeCellStarted, CellStarted: &CellStarted{Cell: cell}}
}

func stepFinishedEvent(step *StepFinished) Event {
	return Event{Type: EventTypeStepFinished, StepFinished: step}
}

func cellFinishedEvent(cell pipeline.Cell, status pipeline.CellStatus, duration time.Duration) Event {
	return Event{Type: EventTypeCellFinished, CellFinished: &CellFinished{
		Cell:     cell,
		Status:   status,
		Duration: duration,
	}}
}
