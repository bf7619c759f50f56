package notify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/tessera-dev/tessera/internal/pipeline"
)

// DefaultIRCTemplate is used when a descriptor configures IRC without
// its own template lines.
var DefaultIRCTemplate = []string{
	"%{pipeline}#%{run_number}: %{outcome} in %{duration}",
}

var tokenPattern = regexp.MustCompile(`%\{([a-z_]+)\}`)

// knownTokens maps template token names to their renderers.
var knownTokens = map[string]func(Event) string{
	"pipeline":   func(ev Event) string { return ev.Pipeline },
	"run_id":     func(ev Event) string { return ev.RunID },
	"run_number": func(ev Event) string { return fmt.Sprintf("%d", ev.RunNumber) },
	"outcome":    func(ev Event) string { return string(ev.Outcome) },
	"previous_outcome": func(ev Event) string {
		if ev.Previous == nil {
			return "none"
		}
		return string(*ev.Previous)
	},
	"duration": func(ev Event) string {
		d := time.Duration(ev.DurationMS) * time.Millisecond
		return d.Truncate(time.Second).String()
	},
	"cells": func(ev Event) string { return fmt.Sprintf("%d", len(ev.Cells)) },
	"failed": func(ev Event) string {
		n := 0
		for _, c := range ev.Cells {
			if c.Status != pipeline.CellPassed {
				n++
			}
		}
		return fmt.Sprintf("%d", n)
	},
}

// Render substitutes %{token} occurrences in one template line.
// Unknown tokens pass through verbatim; ValidateTemplate catches them
// at compile time so rendering never has to fail.
func Render(line string, ev Event) string {
	return tokenPattern.ReplaceAllStringFunc(line, func(match string) string {
		name := tokenPattern.FindStringSubmatch(match)[1]
		if render, ok := knownTokens[name]; ok {
			return render(ev)
		}
		return match
	})
}

// RenderAll renders every line of a template.
func RenderAll(lines []string, ev Event) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = Render(line, ev)
	}
	return out
}

// ValidateTemplate reports the unknown tokens in a template line, in
// order of appearance.
func ValidateTemplate(line string) error {
	var unknown []string
	for _, match := range tokenPattern.FindAllStringSubmatch(line, -1) {
		if _, ok := knownTokens[match[1]]; !ok {
			unknown = append(unknown, match[1])
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown template token(s): %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(TokenNames(), ", "))
	}
	return nil
}

// TokenNames lists the supported tokens in sorted order.
func TokenNames() []string {
	names := make([]string, 0, len(knownTokens))
	for name := range knownTokens {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// emailSubject builds the subject line for email notifications.
func emailSubject(ev Event) string {
	return fmt.Sprintf("[tessera] %s#%d: %s", ev.Pipeline, ev.RunNumber, ev.Outcome)
}

// emailBody builds the plain-text body: a summary line, the outcome
// transition when it changed, then one line per cell.
func emailBody(ev Event) []string {
	lines := []string{
		Render("%{pipeline} run #%{run_number} finished: %{outcome} (%{failed} of %{cells} cells failed, %{duration})", ev),
	}
	if ev.Previous != nil && *ev.Previous != ev.Outcome {
		lines = append(lines, Render("Outcome changed: %{previous_outcome} -> %{outcome}", ev))
	}
	lines = append(lines, "")
	for _, c := range ev.Cells {
		status := string(c.Status)
		if c.Status == pipeline.CellFailed && c.Cell.AllowFailure {
			status += " (allowed)"
		}
		lines = append(lines, fmt.Sprintf("  %-24s %s", c.Cell.Key(), status))
	}
	return lines
}
