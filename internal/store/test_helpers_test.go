package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// newTestStore opens an in-memory store scoped to the test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// seedRun writes a run row, optionally finished with the given
// outcome, and returns the stored record.
func seedRun(t *testing.T, s *Store, pipelineName, runID string, outcome *pipeline.Outcome) RunRecord {
	t.Helper()
	ctx := context.Background()

	number, err := s.WriteRun(ctx, RunRecord{
		ID:            runID,
		Pipeline:      pipelineName,
		ConfigDigest:  "digest-" + runID,
		Language:      "rust",
		EngineVersion: pipeline.EngineVersion,
		SchemaVersion: pipeline.SchemaVersion,
		StartedAt:     testStart,
	})
	require.NoError(t, err)

	if outcome != nil {
		err = s.FinishRun(ctx, runID, *outcome, testStart.Add(time.Minute), 60_000)
		require.NoError(t, err)
	}

	run, err := s.ReadRun(ctx, runID)
	require.NoError(t, err)
	require.Equal(t, number, run.Number)
	return run
}

// seedCell writes a started cell row for the given run.
func seedCell(t *testing.T, s *Store, runID, os, toolchain string, index int64) CellRecord {
	t.Helper()
	cell := CellRecord{
		RunID:      runID,
		Key:        os + "/" + toolchain,
		Index:      index,
		OS:         os,
		Toolchain:  toolchain,
		Dist:       "trusty",
		StartedSeq: index + 1,
	}
	require.NoError(t, s.WriteCell(context.Background(), cell))
	return cell
}

func outcomePtr(o pipeline.Outcome) *pipeline.Outcome {
	return &o
}
