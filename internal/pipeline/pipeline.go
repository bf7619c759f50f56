// Package pipeline defines the compiled build pipeline descriptor: the
// matrix axes, command sequences, and notification rules that a run
// executes against. The compiler produces these values from a YAML
// descriptor; everything downstream (matrix expansion, the engine, the
// store) consumes them and never re-reads the source document.
package pipeline

// Pipeline is a fully compiled descriptor. All defaulting has already
// been applied: axis lists are non-empty, notification policies are
// concrete, and command lists contain exactly what each phase runs.
type Pipeline struct {
	// Name identifies the pipeline across runs. It is not part of the
	// descriptor document; the caller derives it (usually from the
	// config path) and it anchors run history and change detection.
	Name string

	// Language is recorded for provenance but does not alter execution.
	Language string

	// Cache lists cache component names (for example "cargo"). The
	// local runner maps these to directories under the cache root.
	Cache []string

	// Toolchains is the toolchain channel axis of the matrix.
	Toolchains []string

	// OS is the operating system axis of the matrix.
	OS []string

	// Dist is the distribution image label applied to every cell.
	Dist string

	// Env holds KEY=VALUE pairs exported to every step of every cell.
	Env []string

	Matrix        Matrix
	Commands      Commands
	Notifications Notifications
}

// Matrix carries the three selector lists that adjust the expanded
// cross product: cells to tolerate, cells to remove, cells to add.
type Matrix struct {
	AllowFailures []Selector
	Exclude       []Selector
	Include       []IncludeEntry
}

// Selector matches cells by exact attribute values. Empty fields are
// wildcards; a zero Selector matches every cell.
type Selector struct {
	OS        string `yaml:"os,omitempty"`
	Toolchain string `yaml:"rust,omitempty"`
	Dist      string `yaml:"dist,omitempty"`
}

// IsZero reports whether no attribute is constrained.
func (s Selector) IsZero() bool {
	return s.OS == "" && s.Toolchain == "" && s.Dist == ""
}

// String renders the selector in key=value form for error messages.
func (s Selector) String() string {
	out := ""
	appendPair := func(k, v string) {
		if v == "" {
			return
		}
		if out != "" {
			out += ","
		}
		out += k + "=" + v
	}
	appendPair("os", s.OS)
	appendPair("rust", s.Toolchain)
	appendPair("dist", s.Dist)
	if out == "" {
		return "(any)"
	}
	return out
}

// IncludeEntry adds one explicit cell to the expanded matrix. OS and
// Toolchain are required; Dist defaults to the pipeline dist and Env is
// appended after the pipeline-level environment.
type IncludeEntry struct {
	OS        string
	Toolchain string
	Dist      string
	Env       []string
}

// Commands holds the per-phase command lists. A nil or empty list means
// the phase is skipped entirely.
type Commands struct {
	BeforeInstall []string
	Install       []string
	BeforeScript  []string
	Script        []string
	AfterSuccess  []string
	AfterFailure  []string
	AfterScript   []string
}

// ForPhase returns the command list for a phase. Unknown phases return
// nil rather than panicking so callers can range over arbitrary input.
func (c Commands) ForPhase(p Phase) []string {
	switch p {
	case PhaseBeforeInstall:
		return c.BeforeInstall
	case PhaseInstall:
		return c.Install
	case PhaseBeforeScript:
		return c.BeforeScript
	case PhaseScript:
		return c.Script
	case PhaseAfterSuccess:
		return c.AfterSuccess
	case PhaseAfterFailure:
		return c.AfterFailure
	case PhaseAfterScript:
		return c.AfterScript
	}
	return nil
}

// HasWork reports whether any blocking phase has at least one command.
// A descriptor with nothing to run in install or script is rejected at
// compile time; this is the check the compiler uses.
func (c Commands) HasWork() bool {
	for _, p := range Phases() {
		if p.Blocking() && len(c.ForPhase(p)) > 0 {
			return true
		}
	}
	return false
}

// Notifications groups the configured notification channels. A nil
// channel is not configured and never fires.
type Notifications struct {
	Email    *EmailNotification
	IRC      *IRCNotification
	Webhooks *WebhookNotification
}

// EmailNotification describes the email channel. Policies are always
// concrete after compilation (the compiler applies the channel
// defaults: notify on failure always, on success only on change).
type EmailNotification struct {
	Recipients []string
	OnSuccess  Policy
	OnFailure  Policy
}

// IRCNotification describes the IRC channel. Channels use the
// "host[:port]#channel" form. Template lines are rendered per run with
// %{token} substitution; an empty template uses the built-in default.
type IRCNotification struct {
	Channels  []string
	Template  []string
	OnSuccess Policy
	OnFailure Policy
	UseNotice bool
	SkipJoin  bool
}

// WebhookNotification describes the webhook channel. Each URL receives
// one JSON POST per qualifying run.
type WebhookNotification struct {
	URLs      []string
	OnSuccess Policy
	OnFailure Policy
}

// ApplyDefaults fills unset notification policies with their channel
// defaults: email notifies on failure always and on success only on
// change, IRC and webhooks notify always. Mirrors hosted CI behavior
// so a bare "notifications: email: [...]" block acts the way users
// expect.
func (n *Notifications) ApplyDefaults() {
	if n.Email != nil {
		if n.Email.OnSuccess == "" {
			n.Email.OnSuccess = PolicyChange
		}
		if n.Email.OnFailure == "" {
			n.Email.OnFailure = PolicyAlways
		}
	}
	if n.IRC != nil {
		if n.IRC.OnSuccess == "" {
			n.IRC.OnSuccess = PolicyAlways
		}
		if n.IRC.OnFailure == "" {
			n.IRC.OnFailure = PolicyAlways
		}
	}
	if n.Webhooks != nil {
		if n.Webhooks.OnSuccess == "" {
			n.Webhooks.OnSuccess = PolicyAlways
		}
		if n.Webhooks.OnFailure == "" {
			n.Webhooks.OnFailure = PolicyAlways
		}
	}
}

// Policy controls when a notification channel fires for a given run
// outcome.
type Policy string

const (
	// PolicyAlways fires on every run with the matching outcome.
	PolicyAlways Policy = "always"
	// PolicyNever suppresses the channel for the matching outcome.
	PolicyNever Policy = "never"
	// PolicyChange fires only when the outcome differs from the
	// previous recorded run of the same pipeline. The first run of a
	// pipeline counts as a change.
	PolicyChange Policy = "change"
)

// Valid reports whether p is one of the three recognized policies.
func (p Policy) Valid() bool {
	switch p {
	case PolicyAlways, PolicyNever, PolicyChange:
		return true
	}
	return false
}
