package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// soundPipeline returns a descriptor that passes validation; tests
// mutate single aspects to provoke specific codes.
func soundPipeline() *pipeline.Pipeline {
	p := &pipeline.Pipeline{
		Name:       "test",
		Toolchains: []string{"stable", "nightly"},
		OS:         []string{"linux"},
		Commands: pipeline.Commands{
			Script: []string{"cargo test"},
		},
	}
	p.Notifications.ApplyDefaults()
	return p
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateSound(t *testing.T) {
	assert.Empty(t, Validate(soundPipeline()))
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*pipeline.Pipeline)
		wantCodes []string
	}{
		{
			name:      "no toolchains",
			mutate:    func(p *pipeline.Pipeline) { p.Toolchains = nil },
			wantCodes: []string{ErrEmptyToolchains},
		},
		{
			name:      "blank toolchain entry",
			mutate:    func(p *pipeline.Pipeline) { p.Toolchains = []string{"stable", " "} },
			wantCodes: []string{ErrEmptyToolchains},
		},
		{
			name:      "no operating systems",
			mutate:    func(p *pipeline.Pipeline) { p.OS = []string{} },
			wantCodes: []string{ErrEmptyOS},
		},
		{
			name: "nothing to run",
			mutate: func(p *pipeline.Pipeline) {
				p.Commands = pipeline.Commands{AfterScript: []string{"echo bye"}}
			},
			wantCodes: []string{ErrNoBlockingCommands},
		},
		{
			name: "blank command",
			mutate: func(p *pipeline.Pipeline) {
				p.Commands.Script = []string{"cargo test", ""}
			},
			wantCodes: []string{ErrNoBlockingCommands},
		},
		{
			name: "empty allow_failures selector",
			mutate: func(p *pipeline.Pipeline) {
				p.Matrix.AllowFailures = []pipeline.Selector{{}}
			},
			wantCodes: []string{ErrEmptySelector},
		},
		{
			name: "empty exclude selector",
			mutate: func(p *pipeline.Pipeline) {
				p.Matrix.Exclude = []pipeline.Selector{{}}
			},
			wantCodes: []string{ErrEmptySelector},
		},
		{
			name: "include without rust",
			mutate: func(p *pipeline.Pipeline) {
				p.Matrix.Include = []pipeline.IncludeEntry{{OS: "osx"}}
			},
			wantCodes: []string{ErrIncompleteInclude},
		},
		{
			name: "malformed pipeline env",
			mutate: func(p *pipeline.Pipeline) {
				p.Env = []string{"GOOD=1", "1BAD=x", "ALSO BAD"}
			},
			wantCodes: []string{ErrMalformedEnv, ErrMalformedEnv},
		},
		{
			name: "malformed include env",
			mutate: func(p *pipeline.Pipeline) {
				p.Matrix.Include = []pipeline.IncludeEntry{
					{OS: "osx", Toolchain: "stable", Env: []string{"novalue"}},
				}
			},
			wantCodes: []string{ErrMalformedEnv},
		},
		{
			name: "invalid email policy",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.Email = &pipeline.EmailNotification{
					Recipients: []string{"a@b.c"},
					OnSuccess:  "sometimes",
					OnFailure:  pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrInvalidPolicy},
		},
		{
			name: "email without recipients",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.Email = &pipeline.EmailNotification{
					OnSuccess: pipeline.PolicyChange,
					OnFailure: pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrEmptyTarget},
		},
		{
			name: "recipient without at sign",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.Email = &pipeline.EmailNotification{
					Recipients: []string{"not-an-address"},
					OnSuccess:  pipeline.PolicyChange,
					OnFailure:  pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrEmptyTarget},
		},
		{
			name: "irc channel without hash",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.IRC = &pipeline.IRCNotification{
					Channels:  []string{"irc.oftc.net"},
					OnSuccess: pipeline.PolicyAlways,
					OnFailure: pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrEmptyTarget},
		},
		{
			name: "irc template with unknown token",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.IRC = &pipeline.IRCNotification{
					Channels:  []string{"irc.oftc.net#ci"},
					Template:  []string{"%{pipeline} on %{branch}"},
					OnSuccess: pipeline.PolicyAlways,
					OnFailure: pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrUnknownToken},
		},
		{
			name: "webhook with bad scheme",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.Webhooks = &pipeline.WebhookNotification{
					URLs:      []string{"ftp://example.org/hook"},
					OnSuccess: pipeline.PolicyAlways,
					OnFailure: pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrEmptyTarget},
		},
		{
			name: "webhooks without urls",
			mutate: func(p *pipeline.Pipeline) {
				p.Notifications.Webhooks = &pipeline.WebhookNotification{
					OnSuccess: pipeline.PolicyAlways,
					OnFailure: pipeline.PolicyAlways,
				}
			},
			wantCodes: []string{ErrEmptyTarget},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := soundPipeline()
			tt.mutate(p)
			assert.Equal(t, tt.wantCodes, codes(Validate(p)))
		})
	}
}

func TestValidateDuplicateCell(t *testing.T) {
	p := soundPipeline()
	p.Matrix.Include = []pipeline.IncludeEntry{{OS: "linux", Toolchain: "stable"}}

	errs := Validate(p)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateCell, errs[0].Code)
	assert.Contains(t, errs[0].Message, "linux/stable")
}

func TestValidateExpansionGatedOnSoundDescriptor(t *testing.T) {
	p := soundPipeline()
	p.Toolchains = nil
	p.Matrix.Include = []pipeline.IncludeEntry{{OS: "linux", Toolchain: "stable"}}

	// The axis error must not be accompanied by expansion noise.
	assert.Equal(t, []string{ErrEmptyToolchains}, codes(Validate(p)))
}

func TestValidateCollectsAcrossSections(t *testing.T) {
	p := soundPipeline()
	p.Toolchains = nil
	p.OS = nil
	p.Commands = pipeline.Commands{}
	p.Env = []string{"bad entry"}

	got := codes(Validate(p))
	assert.Contains(t, got, ErrEmptyToolchains)
	assert.Contains(t, got, ErrEmptyOS)
	assert.Contains(t, got, ErrNoBlockingCommands)
	assert.Contains(t, got, ErrMalformedEnv)
}
