package notify

import "github.com/tessera-dev/tessera/internal/pipeline"

// Decision is the result of evaluating one policy against a run.
// Reason is recorded in the store verbatim, for both fired and
// suppressed notifications.
type Decision struct {
	Fire   bool
	Reason string
}

// Reason strings recorded with each dispatch decision.
const (
	ReasonAlways    = "policy always"
	ReasonNever     = "policy never"
	ReasonFirstRun  = "first run"
	ReasonChanged   = "outcome changed"
	ReasonUnchanged = "outcome unchanged"
)

// Decide evaluates a policy against the event's outcome history.
//
// The change policy fires when the outcome differs from the previous
// finished run. A pipeline's first run has nothing to differ from and
// is treated as changed, so new pipelines announce their baseline.
func Decide(p pipeline.Policy, ev Event) Decision {
	switch p {
	case pipeline.PolicyAlways:
		return Decision{Fire: true, Reason: ReasonAlways}
	case pipeline.PolicyNever:
		return Decision{Fire: false, Reason: ReasonNever}
	case pipeline.PolicyChange:
		if ev.Previous == nil {
			return Decision{Fire: true, Reason: ReasonFirstRun}
		}
		if *ev.Previous != ev.Outcome {
			return Decision{Fire: true, Reason: ReasonChanged}
		}
		return Decision{Fire: false, Reason: ReasonUnchanged}
	default:
		// The compiler rejects unknown policies; an empty one can only
		// reach here through a hand-built Notifications value.
		return Decision{Fire: false, Reason: "invalid policy " + string(p)}
	}
}

// policyFor picks the policy that governs the given outcome.
func policyFor(onSuccess, onFailure pipeline.Policy, outcome pipeline.Outcome) pipeline.Policy {
	if outcome == pipeline.OutcomeSuccess {
		return onSuccess
	}
	return onFailure
}
