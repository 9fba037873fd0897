package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/token"

	"github.com/vicbeneder/micruler/internal/compiler"
	"github.com/vicbeneder/micruler/internal/ir"
	"github.com/vicbeneder/micruler/internal/rulebase"
)

// LoadMode controls how errors are handled during rule loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// LoadResult contains the rules loaded from a directory.
type LoadResult struct {
	Rules     []ir.Rule
	Source    string // directory, or "embedded"
	FileCount int    // Number of CUE files compiled
}

// LoadError represents an error that occurred during rule loading.
type LoadError struct {
	Code    string
	Message string
	Rule    string    // rule ID if known
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// EmbeddedSource names the built-in rule set in LoadResult.Source.
const EmbeddedSource = "embedded"

// LoadRules compiles and validates the .cue files of dir, in filename
// order. An empty dir selects the embedded rule set.
//
// In LoadModeFailFast the first compile error is returned; in
// LoadModeCollectAll every file is compiled and validation errors are
// added to compile errors. A nil result means the directory itself could
// not be used.
func LoadRules(dir string, mode LoadMode) (*LoadResult, []error) {
	if dir == "" {
		rules, err := rulebase.Default()
		if err != nil {
			return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("embedded rules: %v", err)}}
		}
		files, _ := rulebase.EmbeddedFiles()
		return &LoadResult{Rules: rules, Source: EmbeddedSource, FileCount: len(files)}, nil
	}

	// Verify directory exists
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("rules directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing rules directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	names, err := rulebase.Files(os.DirFS(dir), ".")
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(names) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	var errs []error
	result := &LoadResult{Rules: []ir.Rule{}, Source: dir, FileCount: len(names)}
	ctx := cuecontext.New()
	for _, name := range names {
		path := filepath.Join(dir, name)
		src, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)})
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		rules, err := compiler.CompileSource(ctx, path, src)
		if err != nil {
			errs = append(errs, convertCompileError(err, path))
			if mode == LoadModeFailFast {
				return result, errs
			}
			continue
		}
		result.Rules = append(result.Rules, rules...)
	}

	if len(errs) == 0 || mode == LoadModeCollectAll {
		for _, ve := range compiler.Validate(result.Rules) {
			errs = append(errs, validationToLoadError(ve))
			if mode == LoadModeFailFast {
				return result, errs
			}
		}
	}

	return result, errs
}

// CheckClasses validates assert_class actions against a catalog.
func CheckClasses(rules []ir.Rule, classes compiler.ClassChecker) []error {
	var errs []error
	for _, ve := range compiler.ValidateClasses(rules, classes) {
		errs = append(errs, validationToLoadError(ve))
	}
	return errs
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, file string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeGeneric,
		Message: fmt.Sprintf("%s: %v", file, err),
	}
}

func validationToLoadError(ve compiler.ValidationError) *LoadError {
	msg := ve.Message
	if ve.Field != "" {
		msg = fmt.Sprintf("%s: %s", ve.Field, ve.Message)
	}
	return &LoadError{Code: ve.Code, Message: msg, Rule: ve.Rule}
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // File read or table load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error

	// Rule compile errors
	ErrCodeInvalidWhen     = "E110" // Invalid when clause
	ErrCodeInvalidThen     = "E113" // Invalid then clause
	ErrCodeInvalidSalience = "E114" // Invalid salience

	// Input errors
	ErrCodeInvalidInput = "E201" // Malformed CSV or YAML input
	ErrCodeEngineFailed = "E202" // Inference failed for the batch
)

// MapFieldToErrorCode maps a compiler error field to an error code. Fields
// are dotted paths such as "when.all[1].test".
func MapFieldToErrorCode(field string) string {
	head, _, _ := strings.Cut(field, ".")
	head, _, _ = strings.Cut(head, "[")
	switch head {
	case "cue":
		return ErrCodeBuildFailed
	case "when":
		return ErrCodeInvalidWhen
	case "then":
		return ErrCodeInvalidThen
	case "salience":
		return ErrCodeInvalidSalience
	default:
		return ErrCodeGeneric
	}
}
