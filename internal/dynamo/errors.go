package dynamo

import "errors"

// Domain errors shared by the controller and the simulator.
var (
	// ErrInvalidState indicates a state vector with NaN or Inf components.
	ErrInvalidState = errors.New("dynamo: invalid state (NaN or Inf detected)")

	// ErrDimensionMismatch indicates a vector of the wrong length.
	ErrDimensionMismatch = errors.New("dynamo: dimension mismatch")

	// ErrContextCanceled indicates the run was interrupted.
	ErrContextCanceled = errors.New("dynamo: run canceled by context")
)

// StepError wraps an error with the control cycle it happened in.
type StepError struct {
	Step    int
	Time    float64
	State   State
	Wrapped error
}

func (e *StepError) Error() string {
	return e.Wrapped.Error()
}

func (e *StepError) Unwrap() error {
	return e.Wrapped
}
