package callbus

import (
	"errors"
	"fmt"
)

// Sentinel errors for registration and emission.
var (
	// ErrEmptyEventName indicates Register or Emit was called without an event name.
	ErrEmptyEventName = errors.New("event name cannot be empty")

	// ErrNilCallback indicates Register was called with a nil callback.
	ErrNilCallback = errors.New("callback cannot be nil")

	// ErrBusClosed indicates the bus no longer accepts work.
	ErrBusClosed = errors.New("bus is closed")

	// ErrInvalidPriority indicates a priority outside Critical..Background or
	// a string that does not name one.
	ErrInvalidPriority = errors.New("invalid priority")
)

// Sentinel errors carried inside failed Results.
var (
	// ErrQueueFull indicates an async callback was rejected because the worker queue was full.
	ErrQueueFull = errors.New("async queue full")

	// ErrCallbackPanic indicates a callback panicked.
	ErrCallbackPanic = errors.New("callback panicked")

	// ErrWaitAborted indicates the caller stopped waiting before an async callback finished.
	ErrWaitAborted = errors.New("wait aborted")
)

// CallbackError wraps a failure raised by a callback.
type CallbackError struct {
	SubscriptionID string // Subscription whose callback failed
	Event          string // Event being dispatched
	Err            error  // Underlying error
}

// Error implements error interface.
func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback %s on %s: %v", e.SubscriptionID, e.Event, e.Err)
}

// Unwrap returns the underlying error.
func (e *CallbackError) Unwrap() error {
	return e.Err
}

// RecorderError wraps a failure returned by the Recorder. It is logged, never returned.
type RecorderError struct {
	Op  string // Recorder method that failed
	Err error
}

// Error implements error interface.
func (e *RecorderError) Error() string {
	return fmt.Sprintf("recorder %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RecorderError) Unwrap() error {
	return e.Err
}
