package engine

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tessera-dev/tessera/internal/executor"
	"github.com/tessera-dev/tessera/internal/matrix"
	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/store"
)

// Engine runs compiled pipelines. One Engine serves any number of
// sequential or concurrent Run calls; each call owns its own queue and
// clock, so runs never share mutable state.
type Engine struct {
	store    *store.Store
	executor executor.Executor
	notifier *notify.Dispatcher
	idGen    RunIDGenerator

	workers     int
	stepTimeout time.Duration
	outputLimit int64
	workDir     string
	cacheRoot   string

	// stepOutput receives live step output, each line prefixed with
	// its cell key. outputMu serializes lines across parallel cells.
	stepOutput io.Writer
	outputMu   sync.Mutex

	logger *slog.Logger
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers bounds how many cells execute in parallel. Values below
// one fall back to the default (one worker per CPU).
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithStepTimeout bounds each step's wall clock time. A step that
// exceeds it is killed and recorded as failed. Zero means no limit.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.stepTimeout = d
	}
}

// WithOutputLimit caps captured output per step in bytes. Zero keeps
// the executor default.
func WithOutputLimit(n int64) Option {
	return func(e *Engine) {
		e.outputLimit = n
	}
}

// WithWorkDir sets the working directory steps run in. Empty means the
// runner's own cwd.
func WithWorkDir(dir string) Option {
	return func(e *Engine) {
		e.workDir = dir
	}
}

// WithCacheRoot sets where descriptor cache components materialize.
// Each cell gets <root>/<pipeline>/<os>-<toolchain>, exported to its
// steps as TESSERA_CACHE_DIR. Empty disables caching.
func WithCacheRoot(dir string) Option {
	return func(e *Engine) {
		e.cacheRoot = dir
	}
}

// WithStepOutput streams step output to w as it is produced, each line
// prefixed with the producing cell's key. Nil keeps steps silent; their
// output is still captured for the store either way.
func WithStepOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.stepOutput = w
	}
}

// WithRunIDGenerator replaces the UUIDv7 generator, letting tests and
// the conformance harness pin run IDs.
func WithRunIDGenerator(gen RunIDGenerator) Option {
	return func(e *Engine) {
		e.idGen = gen
	}
}

// WithNotifier attaches a notification dispatcher. Without one, runs
// are recorded but nothing fires.
func WithNotifier(d *notify.Dispatcher) Option {
	return func(e *Engine) {
		e.notifier = d
	}
}

// WithLogger replaces the default slog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithNow replaces the wall clock, pinning started_at timestamps and
// durations in tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine writing to s and executing steps with exec.
func New(s *store.Store, exec executor.Executor, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		executor: exec,
		idGen:    UUIDv7Generator{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers < 1 {
		e.workers = runtime.NumCPU()
	}
	return e
}

// RunResult is the aggregate of one finished run.
type RunResult struct {
	RunID    string
	Number   int64
	Pipeline string

	// Outcome folds cell statuses per the allow-failure rules. A
	// canceled run is always a failed run.
	Outcome pipeline.Outcome

	// Previous is the prior recorded outcome of this pipeline, nil on
	// the first run. Drives on-change notification gating.
	Previous *pipeline.Outcome

	// Cells holds per-cell results in expansion order.
	Cells []pipeline.CellResult

	Duration time.Duration

	// Canceled reports that the run was cut short by its context.
	Canceled bool

	// Notifications lists every dispatch decision, including
	// suppressions. Empty when no dispatcher is attached.
	Notifications []notify.Delivery
}

// Transition reports whether the outcome differs from the previous
// run. The first run counts as a transition.
func (r *RunResult) Transition() bool {
	return r.Previous == nil || *r.Previous != r.Outcome
}

// runState bundles what every worker needs about the run in flight.
type runState struct {
	id     string
	number int64
	p      *pipeline.Pipeline
	queue  *eventQueue
}

// Run expands the pipeline's matrix and executes every cell.
func (e *Engine) Run(ctx context.Context, p *pipeline.Pipeline) (*RunResult, error) {
	cells, err := matrix.Expand(p)
	if err != nil {
		return nil, newConfigError("matrix expansion failed", err)
	}
	return e.RunCells(ctx, p, cells)
}

// RunCells executes an explicit cell list, normally the full
// expansion. The CLI's cell filter passes a subset; cells keep their
// expansion indexes so stored order still mirrors the full matrix.
func (e *Engine) RunCells(ctx context.Context, p *pipeline.Pipeline, cells []pipeline.Cell) (*RunResult, error) {
	if len(cells) == 0 {
		return nil, &RunError{Code: ErrCodeNoCells, Message: "matrix produced no cells to run"}
	}

	digest, err := p.Digest()
	if err != nil {
		return nil, newConfigError("config digest failed", err)
	}

	runID := e.idGen.Generate()
	start := e.now()

	// Terminal records must land even when the run is canceled, so
	// store writes use a context that survives cancellation.
	storeCtx := context.WithoutCancel(ctx)

	number, err := e.store.WriteRun(storeCtx, store.RunRecord{
		ID:            runID,
		Pipeline:      p.Name,
		ConfigDigest:  digest,
		Language:      p.Language,
		EngineVersion: pipeline.EngineVersion,
		SchemaVersion: pipeline.SchemaVersion,
		StartedAt:     start,
	})
	if err != nil {
		return nil, newStorageError(runID, "recording run", err)
	}

	logger := e.logger.With("run_id", runID, "pipeline", p.Name)
	logger.Info("run started",
		"run_number", number,
		"cells", len(cells),
		"workers", e.workers,
	)

	run := &runState{id: runID, number: number, p: p, queue: newEventQueue()}
	clock := NewClock()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		e.persistLoop(storeCtx, runID, run.queue, clock)
	}()

	results := make([]pipeline.CellResult, len(cells))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, cell := range cells {
		i, cell := i, cell
		g.Go(func() error {
			results[i] = e.runCell(ctx, run, cell)
			return nil
		})
	}
	_ = g.Wait() // workers report through results, never through errors

	run.queue.Close()
	<-loopDone

	outcome := pipeline.OutcomeForCells(results)
	finished := e.now()
	duration := finished.Sub(start)

	if err := e.store.FinishRun(storeCtx, runID, outcome, finished, duration.Milliseconds()); err != nil {
		return nil, newStorageError(runID, "recording outcome", err)
	}

	previous, err := e.store.PreviousOutcome(storeCtx, p.Name, runID)
	if err != nil {
		return nil, newStorageError(runID, "reading previous outcome", err)
	}

	result := &RunResult{
		RunID:    runID,
		Number:   number,
		Pipeline: p.Name,
		Outcome:  outcome,
		Previous: previous,
		Cells:    results,
		Duration: duration,
		Canceled: ctx.Err() != nil,
	}

	logger.Info("run finished",
		"outcome", outcome,
		"duration", duration.Round(time.Millisecond),
	)

	e.dispatchNotifications(ctx, storeCtx, p, result)

	return result, nil
}

// dispatchNotifications fires the configured channels and records
// every decision. Recording failures are logged, not returned: the run
// itself already finished, and a broken notifications table should not
// turn a recorded success into an error.
func (e *Engine) dispatchNotifications(ctx, storeCtx context.Context, p *pipeline.Pipeline, result *RunResult) {
	if e.notifier == nil {
		return
	}
	if result.Canceled {
		e.logger.Info("notifications skipped: run canceled", "run_id", result.RunID)
		return
	}

	ev := notify.Event{
		Pipeline:   result.Pipeline,
		RunID:      result.RunID,
		RunNumber:  result.Number,
		Outcome:    result.Outcome,
		Previous:   result.Previous,
		DurationMS: result.Duration.Milliseconds(),
		Cells:      result.Cells,
	}

	deliveries := e.notifier.Dispatch(ctx, p.Notifications, ev)
	for _, d := range deliveries {
		record := store.NotificationRecord{
			RunID:      result.RunID,
			Channel:    d.Channel,
			Target:     d.Target,
			Outcome:    result.Outcome,
			Reason:     d.Reason,
			Dispatched: d.Dispatched,
			CreatedAt:  e.now(),
		}
		if d.Err != nil {
			record.Error = d.Err.Error()
		}
		if _, err := e.store.WriteNotification(storeCtx, record); err != nil {
			e.logger.Error("record notification",
				"run_id", result.RunID,
				"channel", d.Channel,
				"err", err,
			)
		}
	}
	result.Notifications = deliveries
}
