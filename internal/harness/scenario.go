package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tessera-dev/tessera/internal/notify"
	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/testutil"
)

// Scenario is one conformance case: a pipeline descriptor, the
// scripted world it runs in, and the expected results.
type Scenario struct {
	// Name identifies the scenario. It doubles as the pipeline name
	// and the golden file stem, so it should be filename-safe.
	Name string `yaml:"name"`

	// Description explains the property the scenario checks.
	Description string `yaml:"description"`

	// Config is the inline pipeline descriptor, verbatim YAML exactly
	// as a user would write it.
	Config string `yaml:"config"`

	// PreviousOutcome optionally seeds one finished run before the
	// scenario run, driving on-change notification gating. Empty
	// means the scenario run is the pipeline's first.
	PreviousOutcome string `yaml:"previous_outcome,omitempty"`

	// Steps script the executor. Rules are checked in order and the
	// first match wins; commands matching no rule succeed with exit 0.
	Steps []testutil.StepScript `yaml:"steps,omitempty"`

	// Expect pins the results.
	Expect Expectation `yaml:"expect"`
}

// Expectation is the asserted shape of a scenario run.
type Expectation struct {
	// Outcome is the expected run outcome: "success" or "failed".
	Outcome string `yaml:"outcome"`

	// Cells pins the expanded cells in expansion order. The list must
	// be complete: a missing or extra cell fails the scenario.
	Cells []CellExpectation `yaml:"cells"`

	// Notifications pins the recorded dispatch decisions in dispatch
	// order. An omitted or empty list asserts that no decision was
	// recorded.
	Notifications []NotificationExpectation `yaml:"notifications,omitempty"`
}

// CellExpectation pins one cell of the expanded matrix.
type CellExpectation struct {
	// Cell is the cell key, "os/toolchain".
	Cell string `yaml:"cell"`

	// Status is the expected terminal status: "passed", "failed", or
	// "canceled".
	Status string `yaml:"status"`

	// AllowFailure marks cells expected to carry the allow-failure
	// exemption.
	AllowFailure bool `yaml:"allow_failure,omitempty"`

	// Steps optionally pins the cell's full recorded step sequence,
	// in timeline order. Omit to assert nothing about steps.
	Steps []StepExpectation `yaml:"steps,omitempty"`
}

// StepExpectation pins one recorded step of a cell's timeline.
type StepExpectation struct {
	Phase   string `yaml:"phase"`
	Command string `yaml:"command"`

	// Status is the expected step status: "ok", "failed", "skipped",
	// or "canceled".
	Status string `yaml:"status"`

	// ExitCode optionally pins the recorded exit code. Skipped and
	// canceled steps record -1.
	ExitCode *int `yaml:"exit_code,omitempty"`
}

// NotificationExpectation pins one recorded dispatch decision.
type NotificationExpectation struct {
	// Channel is "email", "irc", or "webhook".
	Channel string `yaml:"channel"`

	// Target is the recipient address, irc endpoint, or URL.
	Target string `yaml:"target"`

	// Dispatched is the expected transport result: true for a
	// delivered notification, false for a suppression or failure.
	Dispatched bool `yaml:"dispatched"`

	// Reason optionally pins the recorded gating reason, for example
	// "policy always" or "outcome unchanged". Empty accepts any.
	Reason string `yaml:"reason,omitempty"`
}

// LoadScenario reads and parses one scenario file. Unknown YAML keys
// are rejected so a typo like "expects:" fails loudly instead of
// silently asserting nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", filepath.Base(path), err)
	}

	if err := validateScenario(&sc); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", filepath.Base(path), err)
	}
	return &sc, nil
}

// ScenarioPaths lists the scenario files (*.yaml, *.yml) in dir,
// sorted by name.
func ScenarioPaths(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenario dir: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".yaml", ".yml":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

func validateScenario(sc *Scenario) error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Description == "" {
		return fmt.Errorf("description is required")
	}
	if strings.TrimSpace(sc.Config) == "" {
		return fmt.Errorf("config is required")
	}

	switch sc.PreviousOutcome {
	case "", string(pipeline.OutcomeSuccess), string(pipeline.OutcomeFailed):
	default:
		return fmt.Errorf("previous_outcome: unknown outcome %q", sc.PreviousOutcome)
	}

	for i, rule := range sc.Steps {
		if rule.Match == "" {
			return fmt.Errorf("steps[%d]: match is required", i)
		}
	}

	return validateExpectation(&sc.Expect)
}

func validateExpectation(ex *Expectation) error {
	switch ex.Outcome {
	case string(pipeline.OutcomeSuccess), string(pipeline.OutcomeFailed):
	case "":
		return fmt.Errorf("expect.outcome is required")
	default:
		return fmt.Errorf("expect.outcome: unknown outcome %q", ex.Outcome)
	}

	if len(ex.Cells) == 0 {
		return fmt.Errorf("expect.cells is required and must be non-empty")
	}
	for i, cell := range ex.Cells {
		if cell.Cell == "" {
			return fmt.Errorf("expect.cells[%d]: cell is required", i)
		}
		if !validCellStatus(cell.Status) {
			return fmt.Errorf("expect.cells[%d]: unknown status %q", i, cell.Status)
		}
		for j, step := range cell.Steps {
			if !pipeline.Phase(step.Phase).Valid() {
				return fmt.Errorf("expect.cells[%d].steps[%d]: unknown phase %q", i, j, step.Phase)
			}
			if step.Command == "" {
				return fmt.Errorf("expect.cells[%d].steps[%d]: command is required", i, j)
			}
			if !validStepStatus(step.Status) {
				return fmt.Errorf("expect.cells[%d].steps[%d]: unknown status %q", i, j, step.Status)
			}
		}
	}

	for i, n := range ex.Notifications {
		switch n.Channel {
		case notify.ChannelEmail, notify.ChannelIRC, notify.ChannelWebhook:
		default:
			return fmt.Errorf("expect.notifications[%d]: unknown channel %q", i, n.Channel)
		}
		if n.Target == "" {
			return fmt.Errorf("expect.notifications[%d]: target is required", i)
		}
	}
	return nil
}

func validCellStatus(s string) bool {
	switch pipeline.CellStatus(s) {
	case pipeline.CellPassed, pipeline.CellFailed, pipeline.CellCanceled:
		return true
	}
	return false
}

func validStepStatus(s string) bool {
	switch pipeline.StepStatus(s) {
	case pipeline.StepOK, pipeline.StepFailed, pipeline.StepSkipped, pipeline.StepCanceled:
		return true
	}
	return false
}
