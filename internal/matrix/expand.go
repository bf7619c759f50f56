// Package matrix expands a compiled pipeline into its concrete cells.
//
// Expansion is deterministic: the cross product iterates the os axis in
// declared order with the toolchain axis nested inside, include entries
// append afterwards in declared order, and cell indexes are assigned
// after exclusion. Deterministic order keeps run records, golden traces,
// and text output stable across invocations of the same descriptor.
package matrix

import (
	"fmt"

	"github.com/tessera-dev/tessera/internal/pipeline"
	"github.com/tessera-dev/tessera/internal/selector"
)

// DuplicateCellError reports a cell that expansion produced twice. The
// cross product itself cannot collide; this arises from an include
// entry repeating a declared (os, toolchain) pair.
type DuplicateCellError struct {
	Key string
}

func (e *DuplicateCellError) Error() string {
	return fmt.Sprintf("matrix expansion produced duplicate cell %q", e.Key)
}

// Expand produces the run's cells from the compiled descriptor.
//
// Order of operations:
//  1. Cross product of os × toolchains, inheriting dist and env.
//  2. Exclude selectors remove matching cells.
//  3. Include entries append explicit cells.
//  4. Allow-failure selectors mark surviving cells.
//
// Every (os, toolchain) pair appears at most once; a duplicate is a
// configuration error, not a silent merge.
func Expand(p *pipeline.Pipeline) ([]pipeline.Cell, error) {
	guard := newCellGuard()
	cells := make([]pipeline.Cell, 0, len(p.OS)*len(p.Toolchains))

	for _, os := range p.OS {
		for _, toolchain := range p.Toolchains {
			cell := pipeline.Cell{
				OS:        os,
				Toolchain: toolchain,
				Dist:      p.Dist,
				Env:       cloneEnv(p.Env),
			}
			if err := guard.admit(cell.Key()); err != nil {
				return nil, err
			}
			cells = append(cells, cell)
		}
	}

	cells = applyExclusions(cells, p.Matrix.Exclude, guard)

	for _, inc := range p.Matrix.Include {
		cell := pipeline.Cell{
			OS:        inc.OS,
			Toolchain: inc.Toolchain,
			Dist:      inc.Dist,
			Env:       append(cloneEnv(p.Env), inc.Env...),
		}
		if cell.Dist == "" {
			cell.Dist = p.Dist
		}
		if err := guard.admit(cell.Key()); err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}

	for i := range cells {
		cells[i].Index = i
		if selector.MatchAny(p.Matrix.AllowFailures, cells[i]) {
			cells[i].AllowFailure = true
		}
	}

	return cells, nil
}

// applyExclusions drops cells matched by any exclude selector and
// releases their keys so an include entry may reintroduce the pair.
func applyExclusions(cells []pipeline.Cell, exclude []pipeline.Selector, guard *cellGuard) []pipeline.Cell {
	if len(exclude) == 0 {
		return cells
	}
	kept := cells[:0]
	for _, cell := range cells {
		if selector.MatchAny(exclude, cell) {
			guard.release(cell.Key())
			continue
		}
		kept = append(kept, cell)
	}
	return kept
}

func cloneEnv(env []string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, len(env))
	copy(out, env)
	return out
}

// cellGuard enforces the exactly-once property of expansion: each
// (os, toolchain) key is admitted a single time per run.
type cellGuard struct {
	seen map[string]bool
}

func newCellGuard() *cellGuard {
	return &cellGuard{seen: make(map[string]bool)}
}

func (g *cellGuard) admit(key string) error {
	if g.seen[key] {
		return &DuplicateCellError{Key: key}
	}
	g.seen[key] = true
	return nil
}

func (g *cellGuard) release(key string) {
	delete(g.seen, key)
}
