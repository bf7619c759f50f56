// Package store provides durable run history for pipelines.
//
// Every run writes an append-mostly record set: one runs row, one cells
// row per matrix cell, one steps row per executed command, and one
// notifications row per dispatch decision. History queries power the
// CLI's history and show commands and, more importantly, the previous
// outcome lookup that on-change notification policies depend on.
//
// Reads are deterministic: every multi-row query carries an ORDER BY
// with a COLLATE BINARY tiebreaker so identical databases render
// identical output.
package store
