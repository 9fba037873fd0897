// Package rulebase loads interpretive rule sets written in CUE.
//
// The default rule set (EUCAST expert rules and breakpoint-table inference
// notes) is embedded in the binary. Files are compiled one at a time in
// filename order, so declaration order, and with it the tie-break between
// rules of equal salience, is stable.
package rulebase

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"cuelang.org/go/cue/cuecontext"

	"github.com/vicbeneder/micruler/internal/compiler"
	"github.com/vicbeneder/micruler/internal/ir"
)

//go:embed rules/*.cue
var embedded embed.FS

// ErrNoRules is returned when a rule directory holds no CUE files.
var ErrNoRules = errors.New("no rule files found")

// Default compiles and validates the embedded rule set.
func Default() ([]ir.Rule, error) {
	return Load(embedded, "rules")
}

// MustDefault is Default for package-level initialisation and tests.
func MustDefault() []ir.Rule {
	rules, err := Default()
	if err != nil {
		panic(fmt.Sprintf("rulebase: embedded rules: %v", err))
	}
	return rules
}

// EmbeddedFiles lists the files of the embedded rule set in filename order.
func EmbeddedFiles() ([]string, error) {
	return Files(embedded, "rules")
}

// Files lists the .cue files of dir in filename order.
func Files(fsys fs.FS, dir string) ([]string, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

// Load compiles every .cue file of dir and validates the result as one
// rule set. Compile errors stop at the first failing file; validation
// errors are collected and returned together.
func Load(fsys fs.FS, dir string) ([]ir.Rule, error) {
	names, err := Files(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list rule files: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoRules)
	}

	ctx := cuecontext.New()
	rules := []ir.Rule{}
	for _, name := range names {
		src, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file: %w", err)
		}
		fileRules, err := compiler.CompileSource(ctx, name, src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rules = append(rules, fileRules...)
	}

	if verrs := compiler.Validate(rules); len(verrs) > 0 {
		return nil, validationErrors(verrs)
	}
	return rules, nil
}

// Check validates rules against a compound catalog: class names used by
// assert_class actions must exist.
func Check(rules []ir.Rule, classes compiler.ClassChecker) error {
	if verrs := compiler.ValidateClasses(rules, classes); len(verrs) > 0 {
		return validationErrors(verrs)
	}
	return nil
}

func validationErrors(verrs []compiler.ValidationError) error {
	errs := make([]error, len(verrs))
	for i, ve := range verrs {
		errs[i] = ve
	}
	return errors.Join(errs...)
}
