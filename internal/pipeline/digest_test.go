package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPipeline() *Pipeline {
	return &Pipeline{
		Name:       "demo",
		Language:   "rust",
		Cache:      []string{"cargo"},
		Toolchains: []string{"stable", "beta", "nightly"},
		OS:         []string{"linux", "osx"},
		Dist:       "trusty",
		Env:        []string{"RUST_BACKTRACE=1"},
		Matrix: Matrix{
			AllowFailures: []Selector{{Toolchain: "nightly"}},
		},
		Commands: Commands{
			Install: []string{"cargo build --verbose"},
			Script:  []string{"cargo test --verbose"},
		},
		Notifications: Notifications{
			Email: &EmailNotification{
				Recipients: []string{"dev@example.org"},
				OnSuccess:  PolicyChange,
				OnFailure:  PolicyAlways,
			},
		},
	}
}

func TestDigestDeterministic(t *testing.T) {
	p := testPipeline()

	first, err := p.Digest()
	require.NoError(t, err)
	second, err := p.Digest()
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestDigestIgnoresName(t *testing.T) {
	a := testPipeline()
	b := testPipeline()
	b.Name = "renamed"

	assert.Equal(t, a.MustDigest(), b.MustDigest())
}

func TestDigestSensitiveToContent(t *testing.T) {
	base := testPipeline()

	mutations := map[string]func(*Pipeline){
		"toolchain added":   func(p *Pipeline) { p.Toolchains = append(p.Toolchains, "1.31.0") },
		"os removed":        func(p *Pipeline) { p.OS = p.OS[:1] },
		"dist changed":      func(p *Pipeline) { p.Dist = "xenial" },
		"script changed":    func(p *Pipeline) { p.Commands.Script = []string{"cargo test --all"} },
		"allow list grown":  func(p *Pipeline) { p.Matrix.AllowFailures = append(p.Matrix.AllowFailures, Selector{OS: "osx"}) },
		"policy flipped":    func(p *Pipeline) { p.Notifications.Email.OnFailure = PolicyNever },
		"recipient changed": func(p *Pipeline) { p.Notifications.Email.Recipients = []string{"ops@example.org"} },
	}

	baseDigest := base.MustDigest()
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			p := testPipeline()
			mutate(p)
			assert.NotEqual(t, baseDigest, p.MustDigest())
		})
	}
}

func TestDigestOmitsEmptyOptionals(t *testing.T) {
	// Absent and zero-valued optionals hash identically, so adding an
	// empty env list must not change identity.
	a := testPipeline()
	a.Env = nil
	b := testPipeline()
	b.Env = []string{}

	assert.Equal(t, a.MustDigest(), b.MustDigest())
}

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)

	h1 := hashWithDomain("tessera/config/v1", data)
	h2 := hashWithDomain("tessera/config/v2", data)

	assert.NotEqual(t, h1, h2)
	assert.Len(t, h1, 64)
}
