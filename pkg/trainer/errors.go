package trainer

import "errors"

var (
	// ErrNotFound indicates the referenced job id is unknown to the tracker.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidInput indicates rejected creation or mutation parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition indicates an operation not allowed in the job's current state.
	ErrInvalidTransition = errors.New("invalid transition")
)
