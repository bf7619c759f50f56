// Package harness runs conformance scenarios end to end.
//
// A scenario bundles a pipeline descriptor with a scripted execution
// environment and the expected results. The harness compiles the
// descriptor with the real compiler, expands the real matrix, and
// drives the real engine; only the nondeterministic edges are
// replaced: an in-memory store, a scripted executor instead of a
// shell, a recorder instead of SMTP/IRC/HTTP transports, a fixed run
// ID, a single worker, and a manual wall clock. Identical scenarios
// therefore produce identical traces.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: allow_failure_does_not_gate
//	description: "Allow-failure cells cannot fail the run"
//	config: |
//	  language: rust
//	  rust: [stable, nightly]
//	  matrix:
//	    allow_failures:
//	      - rust: nightly
//	  script:
//	    - cargo test --all
//	previous_outcome: success
//	steps:
//	  - match: cargo test
//	    cell: linux/nightly
//	    exit_code: 101
//	    output: "thread 'main' panicked"
//	expect:
//	  outcome: success
//	  cells:
//	    - cell: linux/stable
//	      status: passed
//	    - cell: linux/nightly
//	      status: failed
//	      allow_failure: true
//
// The descriptor under config is verbatim user YAML. steps script the
// executor (first matching rule wins; unmatched commands succeed).
// previous_outcome seeds one finished run before the scenario run, so
// on-change notification gating can be exercised; omitting it makes
// the scenario run the pipeline's first.
//
// # Expectations
//
// expect pins the run outcome, the expanded cells in expansion order
// (key, terminal status, allow-failure marking, optionally the exact
// recorded step sequence), and the notification decisions in dispatch
// order. An omitted notifications list asserts that nothing was
// recorded.
//
// # Golden Traces
//
// Snapshot renders everything a scenario run recorded as canonical
// JSON. RunWithGolden compares that snapshot against
// testdata/golden/<name>.golden via goldie; regenerate with
//
//	go test ./internal/harness -update
//
// Durations and wall-clock times are excluded from snapshots; they
// depend on clock readings, not pipeline semantics.
package harness
