package engine

import (
	"errors"
	"fmt"
)

// IterationQuota counts rule firings within one run and enforces the
// iteration cap.
//
// Refraction stops a rule instance from re-firing on unchanged facts; the
// quota catches rule sets that keep producing fresh activations, such as
// two rules that retract each other's conclusions.
type IterationQuota struct {
	limit   int
	current int
}

// NewIterationQuota creates a quota allowing limit firings.
func NewIterationQuota(limit int) *IterationQuota {
	return &IterationQuota{limit: limit}
}

// Check counts one firing. Returns IterationsExceededError once the count
// passes the limit. Called before each firing.
func (q *IterationQuota) Check(runID string) error {
	q.current++
	if q.current > q.limit {
		return &IterationsExceededError{
			RunID:      runID,
			Iterations: q.current,
			Limit:      q.limit,
		}
	}
	return nil
}

// Current returns the number of firings counted so far.
func (q *IterationQuota) Current() int {
	return q.current
}

// Limit returns the iteration cap.
func (q *IterationQuota) Limit() int {
	return q.limit
}

// IterationsExceededError is returned when a run passes the iteration cap.
// The run stops; its store is left as it was after the last firing.
type IterationsExceededError struct {
	RunID      string
	Iterations int
	Limit      int
}

// Error implements the error interface.
func (e *IterationsExceededError) Error() string {
	return fmt.Sprintf("run %s exceeded iteration cap: %d iterations > %d limit",
		e.RunID, e.Iterations, e.Limit)
}

// IsIterationsExceededError returns true if the error is an
// IterationsExceededError. Uses errors.As to handle wrapped errors.
func IsIterationsExceededError(err error) bool {
	var ie *IterationsExceededError
	return errors.As(err, &ie)
}
