package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// SuiteEntry is the outcome of one scenario file in a suite run.
type SuiteEntry struct {
	Path   string  `json:"path"`
	Name   string  `json:"name"`
	Result *Result `json:"result,omitempty"`

	// Err is set when the scenario could not be loaded or run.
	Err error `json:"-"`
}

// Passed reports whether the scenario ran and every assertion held.
func (e SuiteEntry) Passed() bool {
	return e.Err == nil && e.Result != nil && e.Result.Pass
}

// FindScenarios lists scenario files under path. A file path is returned
// as is; a directory is searched (non-recursively) for .yaml and .yml
// files, sorted by name. filter, when non-empty, keeps only files whose
// base name contains it.
func FindScenarios(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ScenarioNotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" && !strings.Contains(name, filter) {
			continue
		}
		files = append(files, filepath.Join(path, name))
	}
	sort.Strings(files)
	return files, nil
}

// RunSuite loads and runs every scenario file. A scenario that fails to
// load or run is recorded in its entry; the suite continues with the next
// file. Context cancellation stops the suite.
func (h *Harness) RunSuite(ctx context.Context, paths []string) ([]SuiteEntry, error) {
	entries := make([]SuiteEntry, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return entries, err
		}

		entry := SuiteEntry{Path: p}
		scenario, err := LoadScenario(p)
		if err != nil {
			entry.Err = err
			entries = append(entries, entry)
			continue
		}
		entry.Name = scenario.Name

		entry.Result, entry.Err = h.Run(ctx, scenario)
		entries = append(entries, entry)
	}
	return entries, nil
}
