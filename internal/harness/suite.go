package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FindScenarios returns the scenario files in dir, sorted by name. When
// filter is set, only files whose base name (without extension) matches the
// glob are returned.
func FindScenarios(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(entry.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter %q: %w", filter, err)
			}
			if !matched {
				continue
			}
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// SuiteResult summarizes a run over several scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []ScenarioOutcome `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioOutcome is the result of one scenario file.
type ScenarioOutcome struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`

	// Result is nil when the scenario could not be loaded or run.
	Result *Result `json:"-"`
}

// ScenarioFailure represents a scenario that did not pass.
type ScenarioFailure struct {
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// RunSuite loads and runs every scenario in paths. A scenario that fails to
// load or run is counted as failed and the suite continues.
func RunSuite(ctx context.Context, paths []string) *SuiteResult {
	suite := &SuiteResult{Results: []ScenarioOutcome{}}

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		suite.Total++
		outcome := ScenarioOutcome{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Path: path}

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(&outcome, fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}
		outcome.Name = scenario.Name

		result, err := Run(scenario)
		if err != nil {
			suite.fail(&outcome, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		outcome.Result = result
		outcome.Errors = result.Errors

		if !result.Pass {
			suite.fail(&outcome, fmt.Sprintf("scenario assertions failed: %v", result.Errors))
			continue
		}

		outcome.Pass = true
		suite.Passed++
		suite.Results = append(suite.Results, outcome)
	}
	return suite
}

func (s *SuiteResult) fail(outcome *ScenarioOutcome, msg string) {
	s.Failed++
	if len(outcome.Errors) == 0 {
		outcome.Errors = []string{msg}
	}
	s.Results = append(s.Results, *outcome)
	s.Failures = append(s.Failures, ScenarioFailure{ScenarioPath: outcome.Path, Error: msg})
}
