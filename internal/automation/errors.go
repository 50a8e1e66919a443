package automation

import (
	"errors"
	"fmt"
)

// Domain errors for the automation package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, automation.ErrTimeout) {
//	    // the watchdog fired; the script may still be running
//	}
var (
	// ErrConfig is returned when a registration is rejected. It wraps the
	// underlying pattern or guard error.
	ErrConfig = errors.New("automation: invalid registration")

	// ErrNotFound is returned when a handle is not registered.
	ErrNotFound = errors.New("automation: registration not found")

	// ErrTimeout is reported through OnError when the watchdog deadline elapses.
	ErrTimeout = errors.New("automation: timed out")

	// ErrSchedulerStopped is returned by Submit after Stop.
	ErrSchedulerStopped = errors.New("automation: scheduler stopped")

	// ErrSchedulerStarted is returned when Start is called twice.
	ErrSchedulerStarted = errors.New("automation: scheduler already started")

	// ErrShutdownTimeout is returned by Stop when in-flight scripts outlive the grace period.
	ErrShutdownTimeout = errors.New("automation: shutdown grace period elapsed")
)

// ExecutionError is reported through OnError when a script returns an error
// or panics.
type ExecutionError struct {
	Name  string
	Err   error
	Panic any
	Stack string
}

func (e *ExecutionError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("automation %q panicked: %v", e.Name, e.Panic)
	}
	return fmt.Sprintf("automation %q failed: %v", e.Name, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
