package store

import (
	"context"
	"fmt"
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// WriteRun inserts a run row and assigns it the next run number for
// its pipeline. Returns the assigned number.
//
// Uses ON CONFLICT(id) DO NOTHING for idempotency: writing the same
// run ID twice returns the previously assigned number without change.
// Number assignment and insert share one transaction so concurrent
// runners on the same database cannot claim the same number.
func (s *Store) WriteRun(ctx context.Context, run RunRecord) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var number int64
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(run_number), 0) + 1 FROM runs WHERE pipeline = ?
	`, run.Pipeline).Scan(&number)
	if err != nil {
		return 0, fmt.Errorf("write run: next number: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, pipeline, run_number, config_digest, language, engine_version, schema_version, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Pipeline,
		number,
		run.ConfigDigest,
		run.Language,
		run.EngineVersion,
		run.SchemaVersion,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write run: insert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write run: rows affected: %w", err)
	}
	if affected == 0 {
		// Conflict: the run already exists, return its number.
		err = tx.QueryRowContext(ctx, `
			SELECT run_number FROM runs WHERE id = ?
		`, run.ID).Scan(&number)
		if err != nil {
			return 0, fmt.Errorf("write run: select existing: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write run: commit: %w", err)
	}

	return number, nil
}

// FinishRun records a run's terminal outcome. Calling it twice is
// harmless; the second call overwrites identical values.
func (s *Store) FinishRun(ctx context.Context, runID string, outcome pipeline.Outcome, finishedAt time.Time, durationMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET outcome = ?, finished_at = ?, duration_ms = ?
		WHERE id = ?
	`,
		string(outcome),
		formatTime(finishedAt),
		durationMS,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// WriteCell inserts a cell row when the cell starts. Status stays NULL
// until FinishCell. Uses ON CONFLICT DO NOTHING for idempotency.
//
// Note: the run referenced by RunID must exist (foreign key).
func (s *Store) WriteCell(ctx context.Context, cell CellRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cells
		(run_id, cell_key, cell_index, os, toolchain, dist, allow_failure, started_seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cell_key) DO NOTHING
	`,
		cell.RunID,
		cell.Key,
		cell.Index,
		cell.OS,
		cell.Toolchain,
		cell.Dist,
		boolToInt(cell.AllowFailure),
		cell.StartedSeq,
	)
	if err != nil {
		return fmt.Errorf("write cell: %w", err)
	}
	return nil
}

// FinishCell records a cell's terminal status.
func (s *Store) FinishCell(ctx context.Context, runID, cellKey string, status pipeline.CellStatus, finishedSeq, durationMS int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE cells
		SET status = ?, finished_seq = ?, duration_ms = ?
		WHERE run_id = ? AND cell_key = ?
	`,
		string(status),
		finishedSeq,
		durationMS,
		runID,
		cellKey,
	)
	if err != nil {
		return fmt.Errorf("finish cell: %w", err)
	}
	return nil
}

// WriteStep inserts one executed command with its captured output.
// Uses ON CONFLICT DO NOTHING: a step identity (run, cell, phase,
// index) is written at most once.
//
// Note: the cell referenced by (RunID, CellKey) must exist (foreign
// key).
func (s *Store) WriteStep(ctx context.Context, step StepRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steps
		(run_id, cell_key, seq, phase, phase_index, command, status, exit_code, output, truncated, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, cell_key, phase, phase_index) DO NOTHING
	`,
		step.RunID,
		step.CellKey,
		step.Seq,
		string(step.Phase),
		step.PhaseIndex,
		step.Command,
		string(step.Status),
		step.ExitCode,
		step.Output,
		boolToInt(step.Truncated),
		step.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("write step: %w", err)
	}
	return nil
}

// WriteNotification records one dispatch decision and returns the
// assigned row ID.
func (s *Store) WriteNotification(ctx context.Context, n NotificationRecord) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications
		(run_id, channel, target, outcome, reason, dispatched, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		n.RunID,
		n.Channel,
		n.Target,
		string(n.Outcome),
		n.Reason,
		boolToInt(n.Dispatched),
		n.Error,
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("write notification: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write notification: last insert id: %w", err)
	}
	return id, nil
}
