package harness

import (
	"strings"

	"github.com/tessera-dev/tessera/internal/store"
)

// evaluate checks every expectation of a scenario against what the
// engine recorded, appending violations to the result. Evaluation
// never stops early; a failed scenario reports all of its violations
// at once.
func evaluate(sc *Scenario, res *Result) {
	if string(res.Outcome) != sc.Expect.Outcome {
		res.fail("outcome: expected %s, got %s", sc.Expect.Outcome, res.Outcome)
	}
	checkCells(sc.Expect.Cells, res)
	checkNotifications(sc.Expect.Notifications, res)
}

func checkCells(want []CellExpectation, res *Result) {
	if len(res.Cells) != len(want) {
		res.fail("cells: expected %d, got %d (%s)",
			len(want), len(res.Cells), cellKeys(res.Cells))
		return
	}

	for i, exp := range want {
		got := res.Cells[i]
		if got.Key != exp.Cell {
			res.fail("cells[%d]: expected %s, got %s", i, exp.Cell, got.Key)
			continue
		}

		switch {
		case got.Status == nil:
			res.fail("cell %s: no terminal status recorded", exp.Cell)
		case string(*got.Status) != exp.Status:
			res.fail("cell %s: status: expected %s, got %s", exp.Cell, exp.Status, *got.Status)
		}
		if got.AllowFailure != exp.AllowFailure {
			res.fail("cell %s: allow_failure: expected %t, got %t",
				exp.Cell, exp.AllowFailure, got.AllowFailure)
		}
		if exp.Steps != nil {
			checkSteps(exp.Cell, exp.Steps, res)
		}
	}
}

func checkSteps(cellKey string, want []StepExpectation, res *Result) {
	got := res.CellSteps(cellKey)
	if len(got) != len(want) {
		res.fail("cell %s: steps: expected %d, got %d (%s)",
			cellKey, len(want), len(got), stepCommands(got))
		return
	}

	for i, exp := range want {
		step := got[i]
		if string(step.Phase) != exp.Phase || step.Command != exp.Command {
			res.fail("cell %s: steps[%d]: expected %s %q, got %s %q",
				cellKey, i, exp.Phase, exp.Command, step.Phase, step.Command)
			continue
		}
		if string(step.Status) != exp.Status {
			res.fail("cell %s: steps[%d] %q: status: expected %s, got %s",
				cellKey, i, exp.Command, exp.Status, step.Status)
		}
		if exp.ExitCode != nil && step.ExitCode != int64(*exp.ExitCode) {
			res.fail("cell %s: steps[%d] %q: exit code: expected %d, got %d",
				cellKey, i, exp.Command, *exp.ExitCode, step.ExitCode)
		}
	}
}

func checkNotifications(want []NotificationExpectation, res *Result) {
	if len(res.Notifications) != len(want) {
		res.fail("notifications: expected %d, got %d", len(want), len(res.Notifications))
		return
	}

	for i, exp := range want {
		got := res.Notifications[i]
		if got.Channel != exp.Channel || got.Target != exp.Target {
			res.fail("notifications[%d]: expected %s to %s, got %s to %s",
				i, exp.Channel, exp.Target, got.Channel, got.Target)
			continue
		}
		if got.Dispatched != exp.Dispatched {
			res.fail("notifications[%d] %s to %s: dispatched: expected %t, got %t (reason %q, error %q)",
				i, exp.Channel, exp.Target, exp.Dispatched, got.Dispatched, got.Reason, got.Error)
		}
		if exp.Reason != "" && got.Reason != exp.Reason {
			res.fail("notifications[%d] %s to %s: reason: expected %q, got %q",
				i, exp.Channel, exp.Target, exp.Reason, got.Reason)
		}
	}
}

func cellKeys(cells []store.CellRecord) string {
	keys := make([]string, len(cells))
	for i, c := range cells {
		keys[i] = c.Key
	}
	return strings.Join(keys, ", ")
}

func stepCommands(steps []store.StepRecord) string {
	commands := make([]string, len(steps))
	for i, s := range steps {
		commands[i] = s.Command
	}
	return strings.Join(commands, ", ")
}
