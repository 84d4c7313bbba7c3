package seqauth

import (
	"errors"
	"fmt"
)

// ErrSequenceExhausted is returned when an element has used every sequence
// number of the current IV index.
var ErrSequenceExhausted = errors.New("sequence number space exhausted")

// UnrecoverableError marks a condition that makes the current operation
// impossible to complete safely, such as an exhausted sequence number space
// or a corrupted persisted counter. It aborts the call that returned it.
type UnrecoverableError struct {
	Op  string
	Err error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("unrecoverable: %s: %v", e.Op, e.Err)
}

func (e *UnrecoverableError) Unwrap() error {
	return e.Err
}

// IsUnrecoverable reports whether err is or wraps an *UnrecoverableError.
func IsUnrecoverable(err error) bool {
	var u *UnrecoverableError
	return errors.As(err, &u)
}
