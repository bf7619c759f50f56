package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/store"
)

// Snapshot renders a scenario result as canonical JSON for golden
// comparison. Durations and wall-clock times are excluded: they count
// clock readings, not pipeline semantics. Everything else the engine
// recorded is pinned byte for byte, logical seqs included.
func Snapshot(res *Result) ([]byte, error) {
	cells := make([]any, len(res.Cells))
	for i, c := range res.Cells {
		cells[i] = cellMap(c)
	}
	steps := make([]any, len(res.Steps))
	for i, s := range res.Steps {
		steps[i] = stepMap(s)
	}
	notifications := make([]any, len(res.Notifications))
	for i, n := range res.Notifications {
		notifications[i] = notificationMap(n)
	}

	return pipeline.MarshalCanonical(map[string]any{
		"scenario":      res.Scenario,
		"run_id":        res.RunID,
		"run_number":    res.Number,
		"outcome":       string(res.Outcome),
		"cells":         cells,
		"steps":         steps,
		"notifications": notifications,
	})
}

func cellMap(c store.CellRecord) map[string]any {
	m := map[string]any{
		"key":           c.Key,
		"os":            c.OS,
		"toolchain":     c.Toolchain,
		"allow_failure": c.AllowFailure,
		"started_seq":   c.StartedSeq,
	}
	if c.Dist != "" {
		m["dist"] = c.Dist
	}
	if c.Status != nil {
		m["status"] = string(*c.Status)
	}
	if c.FinishedSeq != nil {
		m["finished_seq"] = *c.FinishedSeq
	}
	return m
}

func stepMap(s store.StepRecord) map[string]any {
	m := map[string]any{
		"seq":         s.Seq,
		"cell":        s.CellKey,
		"phase":       string(s.Phase),
		"phase_index": s.PhaseIndex,
		"command":     s.Command,
		"status":      string(s.Status),
		"exit_code":   s.ExitCode,
	}
	if s.Output != "" {
		m["output"] = s.Output
	}
	if s.Truncated {
		m["truncated"] = true
	}
	return m
}

func notificationMap(n store.NotificationRecord) map[string]any {
	m := map[string]any{
		"channel":    n.Channel,
		"target":     n.Target,
		"outcome":    string(n.Outcome),
		"reason":     n.Reason,
		"dispatched": n.Dispatched,
	}
	if n.Error != "" {
		m["error"] = n.Error
	}
	return m
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/<name>.golden. Regenerate golden files with:
//
//	go test ./internal/harness -update
//
// The scenario's own expectations are evaluated too; the returned
// result carries any violations.
func RunWithGolden(t *testing.T, sc *Scenario) (*Result, error) {
	t.Helper()

	res, err := Run(context.Background(), sc)
	if err != nil {
		return nil, err
	}

	snapshot, err := Snapshot(res)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, snapshot)
	return res, nil
}
