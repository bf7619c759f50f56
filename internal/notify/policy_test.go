package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

func outcomePtr(o pipeline.Outcome) *pipeline.Outcome {
	return &o
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name       string
		policy     pipeline.Policy
		outcome    pipeline.Outcome
		previous   *pipeline.Outcome
		wantFire   bool
		wantReason string
	}{
		{
			name:       "always fires regardless of history",
			policy:     pipeline.PolicyAlways,
			outcome:    pipeline.OutcomeSuccess,
			previous:   outcomePtr(pipeline.OutcomeSuccess),
			wantFire:   true,
			wantReason: ReasonAlways,
		},
		{
			name:       "never suppresses even a transition",
			policy:     pipeline.PolicyNever,
			outcome:    pipeline.OutcomeFailed,
			previous:   outcomePtr(pipeline.OutcomeSuccess),
			wantFire:   false,
			wantReason: ReasonNever,
		},
		{
			name:       "change fires on first run",
			policy:     pipeline.PolicyChange,
			outcome:    pipeline.OutcomeSuccess,
			previous:   nil,
			wantFire:   true,
			wantReason: ReasonFirstRun,
		},
		{
			name:       "change fires when outcome flips",
			policy:     pipeline.PolicyChange,
			outcome:    pipeline.OutcomeFailed,
			previous:   outcomePtr(pipeline.OutcomeSuccess),
			wantFire:   true,
			wantReason: ReasonChanged,
		},
		{
			name:       "change fires on recovery",
			policy:     pipeline.PolicyChange,
			outcome:    pipeline.OutcomeSuccess,
			previous:   outcomePtr(pipeline.OutcomeFailed),
			wantFire:   true,
			wantReason: ReasonChanged,
		},
		{
			name:       "change suppresses a repeat",
			policy:     pipeline.PolicyChange,
			outcome:    pipeline.OutcomeFailed,
			previous:   outcomePtr(pipeline.OutcomeFailed),
			wantFire:   false,
			wantReason: ReasonUnchanged,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Outcome: tt.outcome, Previous: tt.previous}
			got := Decide(tt.policy, ev)
			assert.Equal(t, tt.wantFire, got.Fire)
			assert.Equal(t, tt.wantReason, got.Reason)
		})
	}
}

func TestDecideInvalidPolicy(t *testing.T) {
	got := Decide(pipeline.Policy("sometimes"), Event{})
	assert.False(t, got.Fire)
	assert.Contains(t, got.Reason, "invalid policy")
}

func TestPolicyFor(t *testing.T) {
	onSuccess := pipeline.PolicyChange
	onFailure := pipeline.PolicyAlways

	assert.Equal(t, onSuccess, policyFor(onSuccess, onFailure, pipeline.OutcomeSuccess))
	assert.Equal(t, onFailure, policyFor(onSuccess, onFailure, pipeline.OutcomeFailed))
}

func TestEventTransition(t *testing.T) {
	tests := []struct {
		name     string
		outcome  pipeline.Outcome
		previous *pipeline.Outcome
		want     bool
	}{
		{name: "first run", outcome: pipeline.OutcomeSuccess, previous: nil, want: true},
		{name: "repeat", outcome: pipeline.OutcomeFailed, previous: outcomePtr(pipeline.OutcomeFailed), want: false},
		{name: "flip", outcome: pipeline.OutcomeFailed, previous: outcomePtr(pipeline.OutcomeSuccess), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Event{Outcome: tt.outcome, Previous: tt.previous}
			assert.Equal(t, tt.want, ev.Transition())
		})
	}
}
