package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// ReadRun retrieves a single run by ID. Returns sql.ErrNoRows if not
// found.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, run_number, config_digest, language,
		       engine_version, schema_version, started_at, finished_at,
		       duration_ms, outcome
		FROM runs
		WHERE id = ?
	`, id)
	return scanRun(row)
}

// ReadRunByNumber retrieves a run by pipeline name and run number.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRunByNumber(ctx context.Context, pipelineName string, number int64) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, run_number, config_digest, language,
		       engine_version, schema_version, started_at, finished_at,
		       duration_ms, outcome
		FROM runs
		WHERE pipeline = ? AND run_number = ?
	`, pipelineName, number)
	return scanRun(row)
}

// LatestRun retrieves the most recent run of a pipeline, running or
// finished. Returns sql.ErrNoRows when the pipeline has no history.
func (s *Store) LatestRun(ctx context.Context, pipelineName string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, pipeline, run_number, config_digest, language,
		       engine_version, schema_version, started_at, finished_at,
		       duration_ms, outcome
		FROM runs
		WHERE pipeline = ?
		ORDER BY run_number DESC
		LIMIT 1
	`, pipelineName)
	return scanRun(row)
}

// PreviousOutcome returns the outcome of the most recent finished run
// of the pipeline, excluding excludeRunID (normally the run in flight).
// Returns nil with no error when there is no prior finished run; the
// caller treats that as "first run" for on-change policies.
func (s *Store) PreviousOutcome(ctx context.Context, pipelineName, excludeRunID string) (*pipeline.Outcome, error) {
	var outcome string
	err := s.db.QueryRowContext(ctx, `
		SELECT outcome
		FROM runs
		WHERE pipeline = ? AND id <> ? AND outcome IS NOT NULL
		ORDER BY run_number DESC
		LIMIT 1
	`, pipelineName, excludeRunID).Scan(&outcome)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("previous outcome: %w", err)
	}
	o := pipeline.Outcome(outcome)
	return &o, nil
}

// ReadCells returns all cells of a run in expansion order.
// Returns an empty slice (not nil) when the run has no cells.
func (s *Store) ReadCells(ctx context.Context, runID string) ([]CellRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, cell_key, cell_index, os, toolchain, dist,
		       allow_failure, status, started_seq, finished_seq, duration_ms
		FROM cells
		WHERE run_id = ?
		ORDER BY cell_index ASC, cell_key COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cells: %w", err)
	}
	defer rows.Close()

	cells := []CellRecord{}
	for rows.Next() {
		cell, err := scanCell(rows)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cells: %w", err)
	}
	return cells, nil
}

// ReadSteps returns all steps of a run ordered by logical sequence,
// with the cell key as tiebreaker. Returns an empty slice (not nil)
// when no steps were recorded.
func (s *Store) ReadSteps(ctx context.Context, runID string) ([]StepRecord, error) {
	return s.readSteps(ctx, `
		SELECT run_id, cell_key, seq, phase, phase_index, command,
		       status, exit_code, output, truncated, duration_ms
		FROM steps
		WHERE run_id = ?
		ORDER BY seq ASC, cell_key COLLATE BINARY ASC
	`, runID)
}

// ReadCellSteps returns one cell's steps in execution order.
func (s *Store) ReadCellSteps(ctx context.Context, runID, cellKey string) ([]StepRecord, error) {
	return s.readSteps(ctx, `
		SELECT run_id, cell_key, seq, phase, phase_index, command,
		       status, exit_code, output, truncated, duration_ms
		FROM steps
		WHERE run_id = ? AND cell_key = ?
		ORDER BY seq ASC
	`, runID, cellKey)
}

func (s *Store) readSteps(ctx context.Context, query string, args ...any) ([]StepRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	steps := []StepRecord{}
	for rows.Next() {
		var step StepRecord
		var truncated int
		err := rows.Scan(
			&step.RunID,
			&step.CellKey,
			&step.Seq,
			&step.Phase,
			&step.PhaseIndex,
			&step.Command,
			&step.Status,
			&step.ExitCode,
			&step.Output,
			&truncated,
			&step.DurationMS,
		)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		step.Truncated = truncated != 0
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate steps: %w", err)
	}
	return steps, nil
}

// ReadNotifications returns a run's dispatch decisions in insertion
// order. Returns an empty slice (not nil) when none were recorded.
func (s *Store) ReadNotifications(ctx context.Context, runID string) ([]NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, channel, target, outcome, reason, dispatched, error, created_at
		FROM notifications
		WHERE run_id = ?
		ORDER BY id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []NotificationRecord{}
	for rows.Next() {
		var n NotificationRecord
		var dispatched int
		var createdAt string
		err := rows.Scan(
			&n.ID,
			&n.RunID,
			&n.Channel,
			&n.Target,
			&n.Outcome,
			&n.Reason,
			&dispatched,
			&n.Error,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Dispatched = dispatched != 0
		n.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunRecord, error) {
	var run RunRecord
	var startedAt string
	var finishedAt sql.NullString
	var durationMS sql.NullInt64
	var outcome sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Pipeline,
		&run.Number,
		&run.ConfigDigest,
		&run.Language,
		&run.EngineVersion,
		&run.SchemaVersion,
		&startedAt,
		&finishedAt,
		&durationMS,
		&outcome,
	)
	if err != nil {
		return RunRecord{}, err
	}

	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return RunRecord{}, err
	}
	run.FinishedAt, err = parseNullTime(finishedAt)
	if err != nil {
		return RunRecord{}, err
	}
	run.DurationMS = nullInt(durationMS)
	run.Outcome = nullOutcome(outcome)
	return run, nil
}

func scanCell(row rowScanner) (CellRecord, error) {
	var cell CellRecord
	var allowFailure int
	var status sql.NullString
	var finishedSeq, durationMS sql.NullInt64

	err := row.Scan(
		&cell.RunID,
		&cell.Key,
		&cell.Index,
		&cell.OS,
		&cell.Toolchain,
		&cell.Dist,
		&allowFailure,
		&status,
		&cell.StartedSeq,
		&finishedSeq,
		&durationMS,
	)
	if err != nil {
		return CellRecord{}, fmt.Errorf("scan cell: %w", err)
	}

	cell.AllowFailure = allowFailure != 0
	cell.Status = nullCellStatus(status)
	cell.FinishedSeq = nullInt(finishedSeq)
	cell.DurationMS = nullInt(durationMS)
	return cell, nil
}
