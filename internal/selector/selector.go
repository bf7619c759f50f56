// Package selector matches matrix cells against attribute selectors.
// Selectors drive three features: allow_failures marking, exclude
// filtering during expansion, and --where filtering on the CLI.
package selector

import (
	"fmt"
	"strings"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// Match reports whether a cell satisfies a selector.
//
// Matching is conjunctive over the set fields: every non-empty selector
// attribute must equal the cell's attribute. Empty attributes are
// wildcards, so the zero selector matches every cell.
func Match(sel pipeline.Selector, cell pipeline.Cell) bool {
	if sel.OS != "" && sel.OS != cell.OS {
		return false
	}
	if sel.Toolchain != "" && sel.Toolchain != cell.Toolchain {
		return false
	}
	if sel.Dist != "" && sel.Dist != cell.Dist {
		return false
	}
	return true
}

// MatchAny reports whether any selector in the list matches the cell.
func MatchAny(sels []pipeline.Selector, cell pipeline.Cell) bool {
	for _, sel := range sels {
		if Match(sel, cell) {
			return true
		}
	}
	return false
}

// Parse builds a selector from a comma-separated key=value string such
// as "os=linux,rust=nightly". Recognized keys are os, rust, and dist.
func Parse(s string) (pipeline.Selector, error) {
	var sel pipeline.Selector
	if strings.TrimSpace(s) == "" {
		return sel, fmt.Errorf("empty selector")
	}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return sel, fmt.Errorf("selector term %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" {
			return sel, fmt.Errorf("selector term %q: empty value", pair)
		}
		switch key {
		case "os":
			sel.OS = value
		case "rust":
			sel.Toolchain = value
		case "dist":
			sel.Dist = value
		default:
			return sel, fmt.Errorf("selector term %q: unknown key (want os, rust, or dist)", pair)
		}
	}
	return sel, nil
}

// ParseList parses multiple --where style selector strings. The
// resulting selectors are combined disjunctively by callers: a cell is
// kept when any selector matches.
func ParseList(terms []string) ([]pipeline.Selector, error) {
	out := make([]pipeline.Selector, 0, len(terms))
	for i, term := range terms {
		sel, err := Parse(term)
		if err != nil {
			return nil, fmt.Errorf("selector %d: %w", i+1, err)
		}
		out = append(out, sel)
	}
	return out, nil
}
