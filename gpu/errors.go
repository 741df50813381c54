package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by non-blocking status queries on work which
	// is still in flight.
	ErrNotReady = errors.New("not ready")

	// ErrTimeout is returned by bounded waits which ran out of time.
	ErrTimeout = errors.New("timeout")

	// ErrDeviceLost is fatal. Nothing submitted to the device can be trusted
	// after it has been seen.
	ErrDeviceLost = errors.New("device lost")

	// ErrUnsupportedTransition is wrapped by TransitionError.
	ErrUnsupportedTransition = errors.New("unsupported buffer transition")
)

// IsTransient reports whether err only means "try again later".
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotReady) || errors.Is(err, ErrTimeout)
}

// ResourceError is returned when creating a device object fails.
type ResourceError struct {
	Resource string
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("creating %s: %s", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// SubmitError is returned when a queue rejects a submission.
type SubmitError struct {
	Queue QueueKind
	Err   error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submitting to %s queue: %s", e.Queue, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// TransitionError is returned for buffer state changes Transition does not
// know how to express.
type TransitionError struct {
	From BufferState
	To   BufferState
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s -> %s", ErrUnsupportedTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrUnsupportedTransition
}
