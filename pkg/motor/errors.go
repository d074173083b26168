package motor

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrDisconnected is returned once the firmware stream is lost.
	ErrDisconnected = errors.New("motor: link disconnected")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("motor: link closed")

	// ErrMoveInFlight is returned when Execute is re-entered.
	ErrMoveInFlight = errors.New("motor: move already in flight")

	// ErrCommandTimeout is matched by every CommandTimeoutError.
	ErrCommandTimeout = errors.New("motor: command timed out")
)

// CommandTimeoutError reports a stop acknowledgment that never arrived.
type CommandTimeoutError struct {
	Command string
	Marker  string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("motor: no %q after %q within %v", e.Marker, e.Command, e.Timeout)
}

// Is makes errors.Is(err, ErrCommandTimeout) work.
func (e *CommandTimeoutError) Is(target error) bool {
	return target == ErrCommandTimeout
}

// LinkError wraps a transport failure with the command being sent.
type LinkError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *LinkError) Error() string {
	return fmt.Sprintf("motor [%s]: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *LinkError) Unwrap() error {
	return e.Err
}
