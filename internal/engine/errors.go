package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected during a run or while
// preparing the rule set.
//
// Runtime errors include:
//   - Non-termination: the run exceeded the iteration cap
//   - Cancellation: the run's context was cancelled
//   - Invalid rule: a rule cannot be evaluated (unbound variable, unknown
//     compound class, retract of an unbound reference)
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run.
	RunID string

	// RuleID identifies the rule involved, when there is one.
	RuleID string

	// BindingHash identifies the activation involved, when there is one.
	BindingHash string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNonTermination indicates the run exceeded the iteration cap.
	ErrCodeNonTermination RuntimeErrorCode = "NON_TERMINATION"

	// ErrCodeCancelled indicates the run's context was cancelled.
	ErrCodeCancelled RuntimeErrorCode = "CANCELLED"

	// ErrCodeInvalidRule indicates a rule cannot be evaluated.
	ErrCodeInvalidRule RuntimeErrorCode = "INVALID_RULE"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.RunID != "" && e.RuleID != "" {
		return fmt.Sprintf("%s: %s (run=%s, rule=%s)", e.Code, e.Message, e.RunID, e.RuleID)
	}
	if e.RunID != "" {
		return fmt.Sprintf("%s: %s (run=%s)", e.Code, e.Message, e.RunID)
	}
	if e.RuleID != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.RuleID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNonTerminationError returns true if the run exceeded the iteration cap.
// Matches both RuntimeError with ErrCodeNonTermination and
// IterationsExceededError. Uses errors.As to handle wrapped errors.
func IsNonTerminationError(err error) bool {
	if hasCode(err, ErrCodeNonTermination) {
		return true
	}
	var ie *IterationsExceededError
	return errors.As(err, &ie)
}

// IsCancelledError returns true if the run was cancelled.
func IsCancelledError(err error) bool {
	return hasCode(err, ErrCodeCancelled)
}

// IsInvalidRuleError returns true if a rule could not be evaluated.
func IsInvalidRuleError(err error) bool {
	return hasCode(err, ErrCodeInvalidRule)
}

// NewNonTerminationError creates a RuntimeError for an exceeded iteration cap.
func NewNonTerminationError(runID string, cause *IterationsExceededError) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNonTermination,
		Message: fmt.Sprintf("rule set did not reach a fixpoint within %d iterations", cause.Limit),
		RunID:   runID,
		Details: map[string]string{
			"iterations":     fmt.Sprintf("%d", cause.Iterations),
			"max_iterations": fmt.Sprintf("%d", cause.Limit),
		},
		Err: cause,
	}
}

// NewCancelledError creates a RuntimeError for a cancelled run.
func NewCancelledError(runID string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCancelled,
		Message: "run cancelled",
		RunID:   runID,
		Err:     cause,
	}
}

// NewInvalidRuleError creates a RuntimeError for a rule that cannot be
// evaluated.
func NewInvalidRuleError(ruleID, message string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidRule,
		Message: message,
		RuleID:  ruleID,
	}
}
