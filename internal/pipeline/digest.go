package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefix for content-addressed config identity. The version
// suffix allows a future algorithm or layout migration without
// colliding with old digests.
const domainConfig = "tessera/config/v1"

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null byte prevents a crafted
// domain/data split from producing a colliding preimage.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest computes the content-addressed identity of the compiled
// descriptor. Two descriptors with the same effective configuration
// produce the same digest regardless of YAML formatting, key order, or
// comments, because hashing runs over the canonical JSON of the
// compiled form.
//
// The pipeline Name is excluded: it names the history stream, not the
// configuration, so the same document registered under two names keeps
// one digest.
func (p *Pipeline) Digest() (string, error) {
	canonical, err := MarshalCanonical(p.canonicalMap())
	if err != nil {
		return "", fmt.Errorf("pipeline digest: %w", err)
	}
	return hashWithDomain(domainConfig, canonical), nil
}

// MustDigest is like Digest but panics on error. Use only in tests or
// when the pipeline is known to be well formed.
func (p *Pipeline) MustDigest() string {
	d, err := p.Digest()
	if err != nil {
		panic(err)
	}
	return d
}

// canonicalMap renders the compiled descriptor as a plain tree for
// canonical marshaling. Empty optional fields are omitted so that
// "absent" and "default" hash identically once defaulting has run.
func (p *Pipeline) canonicalMap() map[string]any {
	m := map[string]any{
		"schema": SchemaVersion,
		"rust":   p.Toolchains,
		"os":     p.OS,
	}
	if p.Language != "" {
		m["language"] = p.Language
	}
	if len(p.Cache) > 0 {
		m["cache"] = p.Cache
	}
	if p.Dist != "" {
		m["dist"] = p.Dist
	}
	if len(p.Env) > 0 {
		m["env"] = p.Env
	}
	if mm := matrixMap(p.Matrix); len(mm) > 0 {
		m["matrix"] = mm
	}
	for _, phase := range Phases() {
		if cmds := p.Commands.ForPhase(phase); len(cmds) > 0 {
			m[string(phase)] = cmds
		}
	}
	if nm := notificationsMap(p.Notifications); len(nm) > 0 {
		m["notifications"] = nm
	}
	return m
}

func matrixMap(m Matrix) map[string]any {
	out := map[string]any{}
	if len(m.AllowFailures) > 0 {
		out["allow_failures"] = selectorList(m.AllowFailures)
	}
	if len(m.Exclude) > 0 {
		out["exclude"] = selectorList(m.Exclude)
	}
	if len(m.Include) > 0 {
		entries := make([]any, len(m.Include))
		for i, inc := range m.Include {
			e := map[string]any{
				"os":   inc.OS,
				"rust": inc.Toolchain,
			}
			if inc.Dist != "" {
				e["dist"] = inc.Dist
			}
			if len(inc.Env) > 0 {
				e["env"] = inc.Env
			}
			entries[i] = e
		}
		out["include"] = entries
	}
	return out
}

func selectorList(sels []Selector) []any {
	out := make([]any, len(sels))
	for i, s := range sels {
		m := map[string]any{}
		if s.OS != "" {
			m["os"] = s.OS
		}
		if s.Toolchain != "" {
			m["rust"] = s.Toolchain
		}
		if s.Dist != "" {
			m["dist"] = s.Dist
		}
		out[i] = m
	}
	return out
}

func notificationsMap(n Notifications) map[string]any {
	out := map[string]any{}
	if n.Email != nil {
		out["email"] = map[string]any{
			"recipients": n.Email.Recipients,
			"on_success": string(n.Email.OnSuccess),
			"on_failure": string(n.Email.OnFailure),
		}
	}
	if n.IRC != nil {
		irc := map[string]any{
			"channels":   n.IRC.Channels,
			"on_success": string(n.IRC.OnSuccess),
			"on_failure": string(n.IRC.OnFailure),
			"use_notice": n.IRC.UseNotice,
			"skip_join":  n.IRC.SkipJoin,
		}
		if len(n.IRC.Template) > 0 {
			irc["template"] = n.IRC.Template
		}
		out["irc"] = irc
	}
	if n.Webhooks != nil {
		out["webhooks"] = map[string]any{
			"urls":       n.Webhooks.URLs,
			"on_success": string(n.Webhooks.OnSuccess),
			"on_failure": string(n.Webhooks.OnFailure),
		}
	}
	return out
}
