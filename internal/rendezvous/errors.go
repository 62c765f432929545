package rendezvous

import (
	"errors"
	"fmt"
)

var (
	// ErrAttemptInProgress is returned by Begin while another attempt is open.
	ErrAttemptInProgress = errors.New("location attempt already in progress")

	// ErrInvalidAngles is returned for a measurement that does not decode to finite angles.
	ErrInvalidAngles = errors.New("invalid angles")

	// ErrTimeout fails an attempt that did not settle within the configured window.
	ErrTimeout = errors.New("location attempt timed out")

	// ErrAbandoned fails an attempt whose requester stopped waiting.
	ErrAbandoned = errors.New("location attempt abandoned")
)

// RejectedError is the failure outcome of an attempt when one observer
// delivered an invalid measurement.
type RejectedError struct {
	Role Role
	Err  error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("Result from %s camera was invalid.", e.Role)
}

func (e *RejectedError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidAngles
}
