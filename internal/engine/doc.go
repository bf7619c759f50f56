// Package engine executes a compiled pipeline: it expands the matrix,
// runs every cell's command sequence, aggregates the run outcome, and
// records the whole timeline in the store.
//
// ARCHITECTURE:
//
// Worker pool, single writer:
// Cells are independent, so a bounded worker pool runs them in
// parallel. Store writes are not parallel: workers emit progress
// events (cell started, step finished, cell finished) onto a FIFO
// queue, and one persist goroutine dequeues them, stamps each with a
// monotonic logical-clock seq, and writes the row. The run row itself
// is written before the loop starts and finished after it drains, so
// at every moment at most one goroutine touches the database.
//
// Event Processing Flow:
//  1. Run writes the run row and starts the persist loop.
//  2. Workers execute steps sequentially within their cell and
//     enqueue one event per step plus cell start/finish markers.
//  3. The persist loop drains the queue in FIFO order. Per-cell
//     ordering is inherited from the worker's own sequencing; cells
//     interleave freely.
//  4. After the pool finishes, the queue closes, the loop drains,
//     and Run records the aggregate outcome and dispatches
//     notifications.
//
// Within a cell, the blocking phases (before_install, install,
// before_script, script) halt at the first non-zero exit; the
// remaining blocking steps are recorded as skipped. The after hooks
// (after_success, after_failure, after_script) run according to the
// cell's fate and never change it.
//
// Sequence numbers come from the logical clock, never from wall time,
// so a stored timeline replays in exactly the order the persist loop
// observed.
package engine
