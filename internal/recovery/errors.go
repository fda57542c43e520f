package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrUnrecoverableOutput matches any *UnrecoverableOutputError.
	ErrUnrecoverableOutput = errors.New("unrecoverable model output")
	// ErrNotObject is returned when a candidate parses but is not an object.
	ErrNotObject = errors.New("parsed value is not a JSON object")
	// ErrSchemaMismatch is returned when a parsed object fails the schema check.
	ErrSchemaMismatch = errors.New("parsed object does not have the expected shape")
)

// UnrecoverableOutputError reports that no strategy produced an acceptable object.
type UnrecoverableOutputError struct {
	Preview  string
	Attempts int
	Err      error
}

func (e *UnrecoverableOutputError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("recovery: no JSON object after %d attempts", e.Attempts)
	}
	return fmt.Sprintf("recovery: no JSON object after %d attempts: %v", e.Attempts, e.Err)
}

func (e *UnrecoverableOutputError) Unwrap() error { return e.Err }

func (e *UnrecoverableOutputError) Is(target error) bool {
	return target == ErrUnrecoverableOutput
}
