package triage

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is matched by every *InvalidInputError via errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// InvalidInputError reports a user-correctable problem with a Query.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// InternalError wraps an unexpected failure while building a result.
// It is fatal for the request and retrying the same input will not help.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("triage %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }
