package engine

import (
	"context"
	"fmt"

	"github.com/tessera-dev/tessera/internal/store"
)

// persistLoop is the single writer. It drains the queue in FIFO order,
// stamping each event with the next logical seq before writing.
//
// On a write failure the error is logged and processing continues.
// Dropping one row is recoverable; stalling the queue would wedge
// every worker's remaining events behind it.
func (e *Engine) persistLoop(ctx context.Context, runID string, queue *eventQueue, clock *Clock) {
	for {
		ev, ok := queue.TryDequeue()
		if ok {
			if err := e.persistEvent(ctx, runID, clock, ev); err != nil {
				e.logger.Error("persist event",
					"run_id", runID,
					"type", ev.Type,
					"err", err,
				)
			}
			continue
		}
		if queue.Drained() {
			e.logger.Debug("persist loop drained",
				"run_id", runID,
				"events", clock.Current(),
			)
			return
		}
		<-queue.Wait()
	}
}

// persistEvent writes one event's row. Called only from persistLoop.
func (e *Engine) persistEvent(ctx context.Context, runID string, clock *Clock, ev Event) error {
	switch ev.Type {
	case EventTypeCellStarted:
		if ev.CellStarted == nil {
			return fmt.Errorf("cell started event missing payload")
		}
		cell := ev.CellStarted.Cell
		return e.store.WriteCell(ctx, store.CellRecord{
			RunID:        runID,
			Key:          cell.Key(),
			Index:        int64(cell.Index),
			OS:           cell.OS,
			Toolchain:    cell.Toolchain,
			Dist:         cell.Dist,
			AllowFailure: cell.AllowFailure,
			StartedSeq:   clock.Next(),
		})

	case EventTypeStepFinished:
		if ev.StepFinished == nil {
			return fmt.Errorf("step finished event missing payload")
		}
		st := ev.StepFinished
		return e.store.WriteStep(ctx, store.StepRecord{
			RunID:      runID,
			CellKey:    st.Cell.Key(),
			Seq:        clock.Next(),
			Phase:      st.Phase,
			PhaseIndex: int64(st.PhaseIndex),
			Command:    st.Command,
			Status:     st.Status,
			ExitCode:   int64(st.ExitCode),
			Output:     st.Output,
			Truncated:  st.Truncated,
			DurationMS: st.Duration.Milliseconds(),
		})

	case EventTypeCellFinished:
		if ev.CellFinished == nil {
			return fmt.Errorf("cell finished event missing payload")
		}
		cf := ev.CellFinished
		return e.store.FinishCell(ctx, runID, cf.Cell.Key(), cf.Status, clock.Next(), cf.Duration.Milliseconds())
	}

	return fmt.Errorf("unknown event type: %d", int(ev.Type))
}
