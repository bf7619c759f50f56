package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

func TestReadRunNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestReadRunByNumber(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRun(t, s, "demo", "run-1", outcomePtr(pipeline.OutcomeSuccess))
	seedRun(t, s, "demo", "run-2", nil)

	run, err := s.ReadRunByNumber(ctx, "demo", 2)
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)
	assert.False(t, run.Finished())

	_, err = s.ReadRunByNumber(ctx, "demo", 99)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestLatestRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.LatestRun(ctx, "demo")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	seedRun(t, s, "demo", "run-1", outcomePtr(pipeline.OutcomeSuccess))
	seedRun(t, s, "demo", "run-2", nil)

	run, err := s.LatestRun(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, "run-2", run.ID)
}

func TestPreviousOutcomeEmptyHistory(t *testing.T) {
	s := newTestStore(t)

	prev, err := s.PreviousOutcome(context.Background(), "demo", "run-current")
	require.NoError(t, err)
	assert.Nil(t, prev)
}

func TestPreviousOutcomeSkipsUnfinishedAndSelf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRun(t, s, "demo", "run-1", outcomePtr(pipeline.OutcomeSuccess))
	seedRun(t, s, "demo", "run-2", outcomePtr(pipeline.OutcomeFailed))
	seedRun(t, s, "demo", "run-3", nil)           // still running
	seedRun(t, s, "demo", "run-4", nil)           // the current run
	seedRun(t, s, "other", "run-x", outcomePtr(pipeline.OutcomeSuccess))

	prev, err := s.PreviousOutcome(ctx, "demo", "run-4")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, pipeline.OutcomeFailed, *prev)
}

func TestPreviousOutcomeExcludesCurrentEvenIfFinished(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRun(t, s, "demo", "run-1", outcomePtr(pipeline.OutcomeSuccess))
	seedRun(t, s, "demo", "run-2", outcomePtr(pipeline.OutcomeFailed))

	prev, err := s.PreviousOutcome(ctx, "demo", "run-2")
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, pipeline.OutcomeSuccess, *prev)
}

func TestReadCellsEmptyNotNil(t *testing.T) {
	s := newTestStore(t)
	seedRun(t, s, "demo", "run-1", nil)

	cells, err := s.ReadCells(context.Background(), "run-1")
	require.NoError(t, err)
	assert.NotNil(t, cells)
	assert.Empty(t, cells)
}

func TestReadCellsExpansionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRun(t, s, "demo", "run-1", nil)
	// Insert out of order; reads come back by cell_index.
	seedCell(t, s, "run-1", "osx", "nightly", 5)
	seedCell(t, s, "run-1", "linux", "stable", 0)
	seedCell(t, s, "run-1", "linux", "nightly", 2)

	cells, err := s.ReadCells(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, cells, 3)
	assert.Equal(t, "linux/stable", cells[0].Key)
	assert.Equal(t, "linux/nightly", cells[1].Key)
	assert.Equal(t, "osx/nightly", cells[2].Key)
}

func TestReadStepsSequenceOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedRun(t, s, "demo", "run-1", nil)
	seedCell(t, s, "run-1", "linux", "stable", 0)
	seedCell(t, s, "run-1", "linux", "beta", 1)

	write := func(cellKey string, seq int64, phase pipeline.Phase, idx int64) {
		require.NoError(t, s.WriteStep(ctx, StepRecord{
			RunID: "run-1", CellKey: cellKey, Seq: seq,
			Phase: phase, PhaseIndex: idx,
			Command: "true", Status: pipeline.StepOK,
		}))
	}
	write("linux/beta", 4, pipeline.PhaseInstall, 0)
	write("linux/stable", 2, pipeline.PhaseInstall, 0)
	write("linux/stable", 3, pipeline.PhaseScript, 0)

	steps, err := s.ReadSteps(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, int64(2), steps[0].Seq)
	assert.Equal(t, int64(3), steps[1].Seq)
	assert.Equal(t, int64(4), steps[2].Seq)

	cellSteps, err := s.ReadCellSteps(ctx, "run-1", "linux/stable")
	require.NoError(t, err)
	require.Len(t, cellSteps, 2)
	assert.Equal(t, pipeline.PhaseInstall, cellSteps[0].Phase)
	assert.Equal(t, pipeline.PhaseScript, cellSteps[1].Phase)
}

func TestReadNotificationsEmptyNotNil(t *testing.T) {
	s := newTestStore(t)
	seedRun(t, s, "demo", "run-1", nil)

	notifications, err := s.ReadNotifications(context.Background(), "run-1")
	require.NoError(t, err)
	assert.NotNil(t, notifications)
	assert.Empty(t, notifications)
}
