// Package validate provides stateless checks on single values and records.
//
// Every check returns a [Result] carrying the cleaned value plus accumulated
// errors and warnings. Errors make the result invalid; warnings never do.
// Nothing here touches the database or panics on bad input, so the checks
// can run inside bulk loops and collect problems instead of aborting.
package validate

import (
	"errors"
	"strings"
)

// Result is the outcome of a single check.
type Result[T any] struct {
	Valid    bool     `json:"valid"`
	Value    T        `json:"value"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func newResult[T any]() Result[T] {
	return Result[T]{Valid: true}
}

func (r *Result[T]) addError(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

func (r *Result[T]) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Err returns the errors joined into one error, or nil when valid.
func (r Result[T]) Err() error {
	if r.Valid {
		return nil
	}
	return errors.New(strings.Join(r.Errors, "; "))
}

// Get returns the cleaned value and whether the result is valid.
func (r Result[T]) Get() (T, bool) {
	return r.Value, r.Valid
}
