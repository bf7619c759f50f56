package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/selector"
)

// ListRuns returns a pipeline's runs, newest first. A limit of zero or
// less returns the full history. Returns an empty slice (not nil) for
// unknown pipelines.
func (s *Store) ListRuns(ctx context.Context, pipelineName string, limit int) ([]RunRecord, error) {
	query := `
		SELECT id, pipeline, run_number, config_digest, language,
		       engine_version, schema_version, started_at, finished_at,
		       duration_ms, outcome
		FROM runs
		WHERE pipeline = ?
		ORDER BY run_number DESC
	`
	args := []any{pipelineName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListPipelines summarizes every pipeline in the store, ordered by
// name for deterministic output.
func (s *Store) ListPipelines(ctx context.Context) ([]PipelineSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.pipeline,
		       COUNT(*),
		       MAX(r.run_number),
		       COALESCE((
		           SELECT outcome FROM runs
		           WHERE pipeline = r.pipeline AND outcome IS NOT NULL
		           ORDER BY run_number DESC LIMIT 1
		       ), ''),
		       MAX(r.started_at)
		FROM runs r
		GROUP BY r.pipeline
		ORDER BY r.pipeline COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pipelines: %w", err)
	}
	defer rows.Close()

	summaries := []PipelineSummary{}
	for rows.Next() {
		var sum PipelineSummary
		var lastStarted string
		if err := rows.Scan(&sum.Name, &sum.Runs, &sum.LastNumber, &sum.LastOutcome, &lastStarted); err != nil {
			return nil, fmt.Errorf("scan pipeline summary: %w", err)
		}
		sum.LastStarted, err = parseTime(lastStarted)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pipelines: %w", err)
	}
	return summaries, nil
}

// CellHistory returns historical cells of a pipeline matching any of
// the given selectors, newest run first with cells in expansion order.
// An empty selector list matches every cell. A limit of zero or less
// returns everything.
//
// Selector values are compiled to parameterized SQL; user input never
// reaches the query text.
func (s *Store) CellHistory(ctx context.Context, pipelineName string, sels []pipeline.Selector, limit int) ([]CellHistoryRow, error) {
	filterSQL, filterParams := selector.AnyCellFilterSQL(sels)

	query := fmt.Sprintf(`
		SELECT r.run_number, r.started_at,
		       c.run_id, c.cell_key, c.cell_index, c.os, c.toolchain, c.dist,
		       c.allow_failure, c.status, c.started_seq, c.finished_seq, c.duration_ms
		FROM cells c
		JOIN runs r ON c.run_id = r.id
		WHERE r.pipeline = ? AND (%s)
		ORDER BY r.run_number DESC, c.cell_index ASC, c.cell_key COLLATE BINARY ASC
	`, filterSQL)
	args := append([]any{pipelineName}, filterParams...)
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cell history: %w", err)
	}
	defer rows.Close()

	history := []CellHistoryRow{}
	for rows.Next() {
		var row CellHistoryRow
		var cell CellRecord
		var startedAt string
		var allowFailure int
		var status sql.NullString
		var finishedSeq, durationMS sql.NullInt64

		err := rows.Scan(
			&row.RunNumber,
			&startedAt,
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
			return nil, fmt.Errorf("scan cell history: %w", err)
		}

		cell.AllowFailure = allowFailure != 0
		cell.Status = nullCellStatus(status)
		cell.FinishedSeq = nullInt(finishedSeq)
		cell.DurationMS = nullInt(durationMS)
		row.RunID = cell.RunID
		row.Cell = cell
		row.StartedAt, err = parseTime(startedAt)
		if err != nil {
			return nil, err
		}
		history = append(history, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell history: %w", err)
	}
	return history, nil
}
