package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// SuiteResult summarizes one directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// Pass reports whether every scenario in the suite passed.
func (s *SuiteResult) Pass() bool {
	return s.Failed == 0
}

// ScenarioFailure is one failed scenario with its violations. A
// scenario that would not load or run reports the fault as its single
// violation.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// RunDir loads and executes every scenario file in dir, in name
// order. Broken scenarios count as failures rather than aborting the
// suite; an unreadable or empty directory is the only hard error.
func RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	paths, err := ScenarioPaths(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenario files in %s", dir)
	}

	suite := &SuiteResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		suite.Total++

		sc, err := LoadScenario(path)
		if err != nil {
			suite.record(ScenarioFailure{
				Scenario: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
				Path:     path,
				Errors:   []string{err.Error()},
			})
			continue
		}

		res, err := Run(ctx, sc)
		switch {
		case err != nil:
			suite.record(ScenarioFailure{
				Scenario: sc.Name,
				Path:     path,
				Errors:   []string{err.Error()},
			})
		case !res.Pass:
			suite.record(ScenarioFailure{
				Scenario: sc.Name,
				Path:     path,
				Errors:   res.Errors,
			})
		default:
			suite.Passed++
		}
	}
	return suite, nil
}

func (s *SuiteResult) record(f ScenarioFailure) {
	s.Failed++
	s.Failures = append(s.Failures, f)
}
