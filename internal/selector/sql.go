package selector

import (
	"strings"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// CellFilterSQL compiles a selector into a WHERE fragment over the
// cells table columns (os, toolchain, dist).
//
// Values are always parameterized, never interpolated, so selector
// strings from the CLI cannot alter query shape. The zero selector
// compiles to the vacuous "1 = 1".
func CellFilterSQL(sel pipeline.Selector) (string, []any) {
	var parts []string
	var params []any
	if sel.OS != "" {
		parts = append(parts, "os = ?")
		params = append(params, sel.OS)
	}
	if sel.Toolchain != "" {
		parts = append(parts, "toolchain = ?")
		params = append(params, sel.Toolchain)
	}
	if sel.Dist != "" {
		parts = append(parts, "dist = ?")
		params = append(params, sel.Dist)
	}
	if len(parts) == 0 {
		return "1 = 1", nil
	}
	return strings.Join(parts, " AND "), params
}

// AnyCellFilterSQL combines several selectors disjunctively into one
// parenthesized WHERE fragment. An empty list matches everything.
func AnyCellFilterSQL(sels []pipeline.Selector) (string, []any) {
	if len(sels) == 0 {
		return "1 = 1", nil
	}
	var parts []string
	var params []any
	for _, sel := range sels {
		frag, p := CellFilterSQL(sel)
		parts = append(parts, "("+frag+")")
		params = append(params, p...)
	}
	return strings.Join(parts, " OR "), params
}
