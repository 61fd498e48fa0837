package kernel

import (
	"errors"
	"fmt"
)

var errClosed = errors.New("session closed")

// PreprocessError is returned when the directives of a cell cannot be
// processed. It leaves the session unchanged.
type PreprocessError struct {
	Err error
}

func (e *PreprocessError) Error() string { return e.Err.Error() }
func (e *PreprocessError) Unwrap() error { return e.Err }

// InstallError is returned when the packages of a cell cannot be installed or
// loaded, or when installation is no longer allowed.
type InstallError struct {
	Message string
}

func (e *InstallError) Error() string { return "Install Error: " + e.Message }

// BootError is returned when the evaluator cannot be started. The next cell
// tries again.
type BootError struct {
	Err error
}

func (e *BootError) Error() string {
	return fmt.Sprintf("Could not start the evaluator: %v", e.Err)
}

func (e *BootError) Unwrap() error { return e.Err }

// InternalFault is an unexpected failure while orchestrating an evaluation.
// The session can no longer be trusted after one.
type InternalFault struct {
	// The step that failed.
	Step string
	Err  error
}

func (e *InternalFault) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *InternalFault) Unwrap() error { return e.Err }
