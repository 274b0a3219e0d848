package serialscope

import (
	"errors"
	"fmt"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrAlreadyOpen      = errors.New("serial device already open")
	ErrNotOpen          = errors.New("serial device not open")
	ErrNotConnected     = errors.New("session is not connected")
	ErrSessionClosed    = errors.New("session closed while connecting")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrHandleClosed     = errors.New("serial handle is closed")

	// Probing errors
	ErrInsufficientData = errors.New("insufficient data")

	// Log writer errors
	ErrWriterNotStarted = errors.New("log writer session not started")

	// Pattern cache errors
	ErrPatternInvalid = errors.New("invalid match pattern")

	// Reconnect errors
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")

	// USB-related errors
	ErrUSBInfoNotAvailable  = errors.New("USB device information not available")
	ErrUSBResetNotAvailable = errors.New("usbreset utility not available")
)

// CloseReason classifies why releasing a hardware handle failed.
type CloseReason int

const (
	CloseLocked CloseReason = iota // handle still held by the driver
	CloseIOError
	CloseInvalidState
)

// String returns the string representation of CloseReason
func (r CloseReason) String() string {
	switch r {
	case CloseLocked:
		return "locked"
	case CloseIOError:
		return "io-error"
	case CloseInvalidState:
		return "invalid-state"
	default:
		return "unknown"
	}
}

// CloseError reports a failed handle release after bounded retries.
// Serial handle release is non-deterministic on typical desktop serial
// stacks, so the close sequence retries with backoff and only surfaces
// a CloseError once the retry budget is exhausted.
type CloseError struct {
	Device   string
	Reason   CloseReason
	Attempts int
	Err      error
}

// Error implements the error interface
func (e *CloseError) Error() string {
	return fmt.Sprintf("closing %s failed after %d attempts (%s): %v",
		e.Device, e.Attempts, e.Reason, e.Err)
}

// Unwrap returns the underlying error
func (e *CloseError) Unwrap() error {
	return e.Err
}
