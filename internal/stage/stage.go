// Package stage names the steps of an ingest run and the error type each
// step fails with.
package stage

import (
	"errors"
	"fmt"
)

type Stage string

const (
	Fetch     Stage = "fetch"
	Select    Stage = "select"
	Normalize Stage = "normalize"
	Persist   Stage = "persist"
	Emit      Stage = "emit"
)

// Fatal reports whether a failure in this stage aborts the run. Only emit
// failures are survivable, artifacts are a view and not the system of record.
func (s Stage) Fatal() bool {
	return s != Emit
}

// Error is the failure of a single stage along with its cause.
//
// Fetch, Select, Normalize, Persist and Emit errors correspond to FetchError,
// SelectionError, NormalizationError, PersistError and EmitError respectively.
type Error struct {
	Stage Stage
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a stage to err, if err already carries a stage it is returned as is.
func Wrap(s Stage, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Stage: s, Cause: err}
}

// Errorf is fmt.Errorf followed by Wrap.
func Errorf(s Stage, format string, args ...any) error {
	return &Error{Stage: s, Cause: fmt.Errorf(format, args...)}
}

// Of returns the stage attached to err.
func Of(err error) (Stage, bool) {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.Stage, true
	}
	return "", false
}

// Is reports whether err is a failure of stage s.
func Is(err error, s Stage) bool {
	got, ok := Of(err)
	return ok && got == s
}

// Fatal reports whether err should abort a run, errors without a stage are always fatal.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	s, ok := Of(err)
	if !ok {
		return true
	}
	return s.Fatal()
}
