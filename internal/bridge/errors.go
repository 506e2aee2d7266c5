package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRunning indicates a call against a stopped interpreter.
	ErrNotRunning = errors.New("interpreter not running")

	// ErrWaitTimeout indicates an expected event never arrived.
	ErrWaitTimeout = errors.New("timed out waiting for interpreter event")
)

// StartupError reports an interpreter process that failed to reach the
// ready handshake; the process has been killed by the time it surfaces.
type StartupError struct {
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interpreter startup failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("interpreter startup failed: %s", e.Reason)
}

func (e *StartupError) Unwrap() error {
	return e.Err
}
