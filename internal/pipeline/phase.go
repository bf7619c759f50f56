package pipeline

// Phase names one stage of a cell's command sequence. Phases execute in
// the order returned by Phases; the blocking phases form the main
// sequence and the after_* phases are outcome hooks.
type Phase string

const (
	PhaseBeforeInstall Phase = "before_install"
	PhaseInstall       Phase = "install"
	PhaseBeforeScript  Phase = "before_script"
	PhaseScript        Phase = "script"
	PhaseAfterSuccess  Phase = "after_success"
	PhaseAfterFailure  Phase = "after_failure"
	PhaseAfterScript   Phase = "after_script"
)

// phaseOrder is the canonical execution order. Blocking phases come
// first; the conditional hooks run after the cell's fate is decided.
var phaseOrder = []Phase{
	PhaseBeforeInstall,
	PhaseInstall,
	PhaseBeforeScript,
	PhaseScript,
	PhaseAfterSuccess,
	PhaseAfterFailure,
	PhaseAfterScript,
}

// Phases returns all phases in execution order. Callers must not
// mutate the returned slice.
func Phases() []Phase {
	return phaseOrder
}

// BlockingPhases returns only the phases whose failure fails the cell,
// in execution order.
func BlockingPhases() []Phase {
	out := make([]Phase, 0, 4)
	for _, p := range phaseOrder {
		if p.Blocking() {
			out = append(out, p)
		}
	}
	return out
}

// Blocking reports whether a non-zero exit in this phase fails the
// cell and halts its remaining blocking phases. The after_* hooks are
// observational: their failures are recorded but never change the
// cell's status.
func (p Phase) Blocking() bool {
	switch p {
	case PhaseBeforeInstall, PhaseInstall, PhaseBeforeScript, PhaseScript:
		return true
	}
	return false
}

// Valid reports whether p names a known phase.
func (p Phase) Valid() bool {
	for _, known := range phaseOrder {
		if p == known {
			return true
		}
	}
	return false
}
