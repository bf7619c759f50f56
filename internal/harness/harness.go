package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/tessera-dev/tessera/internal/compiler"
	"github.com/tessera-dev/tessera/internal/engine"
	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/store"
	"github.com/tessera-dev/tessera/internal/testutil"
)

// Fixed points of the deterministic environment. Every scenario uses
// the same run IDs and wall-clock origin so traces depend only on the
// descriptor and the step script.
const (
	scenarioRunID = "run-0001"
	seedRunID     = "run-0000"
)

var scenarioEpoch = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

// Result is one scenario execution: everything the engine recorded,
// plus the expectation violations.
type Result struct {
	Scenario string
	RunID    string
	Number   int64
	Outcome  pipeline.Outcome

	// Cells, Steps, and Notifications are the rows the run left in
	// the store, read back in timeline order.
	Cells         []store.CellRecord
	Steps         []store.StepRecord
	Notifications []store.NotificationRecord

	// Calls lists every command the scripted executor received, in
	// call order.
	Calls []testutil.Call

	// Pass reports whether every expectation held; Errors lists the
	// violations in evaluation order.
	Pass   bool
	Errors []string
}

func (r *Result) fail(format string, args ...any) {
	r.Pass = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// CellSteps returns the recorded steps of one cell in timeline order.
func (r *Result) CellSteps(cellKey string) []store.StepRecord {
	var out []store.StepRecord
	for _, step := range r.Steps {
		if step.CellKey == cellKey {
			out = append(out, step)
		}
	}
	return out
}

// Run executes a scenario end to end and evaluates its expectations.
//
// The returned error covers harness-level failures: an uncompilable
// descriptor, a store fault, an engine fault. Expectation violations
// are not errors; they land in Result.Errors with Pass false.
func Run(ctx context.Context, sc *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("scenario %s: open store: %w", sc.Name, err)
	}
	defer st.Close()

	p, err := compiler.Compile(sc.Name, []byte(sc.Config))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: compile descriptor: %w", sc.Name, err)
	}

	if sc.PreviousOutcome != "" {
		if err := seedHistory(ctx, st, p, pipeline.Outcome(sc.PreviousOutcome)); err != nil {
			return nil, fmt.Errorf("scenario %s: seed history: %w", sc.Name, err)
		}
	}

	exec := testutil.NewScriptedExecutor(sc.Steps...)
	recorder := notify.NewRecorder()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	clock := testutil.NewManualClock(scenarioEpoch, time.Second)
	eng := engine.New(st, exec,
		engine.WithWorkers(1),
		engine.WithRunIDGenerator(engine.NewFixedGenerator(scenarioRunID)),
		engine.WithNotifier(notify.NewDispatcher(
			notify.WithMailer(recorder),
			notify.WithMessenger(recorder),
			notify.WithPoster(recorder),
			notify.WithLogger(quiet),
		)),
		engine.WithLogger(quiet),
		engine.WithNow(clock.Now),
	)

	runRes, err := eng.Run(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: run: %w", sc.Name, err)
	}

	res := &Result{
		Scenario: sc.Name,
		RunID:    runRes.RunID,
		Number:   runRes.Number,
		Outcome:  runRes.Outcome,
		Calls:    exec.Calls(),
		Pass:     true,
	}
	if res.Cells, err = st.ReadCells(ctx, runRes.RunID); err != nil {
		return nil, fmt.Errorf("scenario %s: read cells: %w", sc.Name, err)
	}
	if res.Steps, err = st.ReadSteps(ctx, runRes.RunID); err != nil {
		return nil, fmt.Errorf("scenario %s: read steps: %w", sc.Name, err)
	}
	if res.Notifications, err = st.ReadNotifications(ctx, runRes.RunID); err != nil {
		return nil, fmt.Errorf("scenario %s: read notifications: %w", sc.Name, err)
	}

	evaluate(sc, res)
	return res, nil
}

// seedHistory records one finished run an hour before the scenario
// epoch, so the scenario run sees a previous outcome and gets run
// number two.
func seedHistory(ctx context.Context, st *store.Store, p *pipeline.Pipeline, outcome pipeline.Outcome) error {
	digest, err := p.Digest()
	if err != nil {
		return err
	}

	started := scenarioEpoch.Add(-time.Hour)
	_, err = st.WriteRun(ctx, store.RunRecord{
		ID:            seedRunID,
		Pipeline:      p.Name,
		ConfigDigest:  digest,
		Language:      p.Language,
		EngineVersion: pipeline.EngineVersion,
		SchemaVersion: pipeline.SchemaVersion,
		StartedAt:     started,
	})
	if err != nil {
		return err
	}
	return st.FinishRun(ctx, seedRunID, outcome, started.Add(time.Minute), time.Minute.Milliseconds())
}
