package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// Timestamps are stored as RFC 3339 text with nanoseconds, always UTC,
// so rows compare bytewise in the order they were written.
const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullOutcome(ns sql.NullString) *pipeline.Outcome {
	if !ns.Valid {
		return nil
	}
	o := pipeline.Outcome(ns.String)
	return &o
}

func nullCellStatus(ns sql.NullString) *pipeline.CellStatus {
	if !ns.Valid {
		return nil
	}
	st := pipeline.CellStatus(ns.String)
	return &st
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
