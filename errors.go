// Package fiberio error types for the five failure kinds the runtime
// distinguishes: programming errors, OS errors, timeouts, cancellation,
// and fiber panics. All satisfy [errors.Is] / [errors.As] via Unwrap.
package fiberio

import (
	"errors"
	"fmt"
)

// Sentinel values for errors.Is comparisons against the dynamic error types below.
var (
	// ErrTimeout is wrapped by TimeoutError.
	ErrTimeout = errors.New("fiberio: operation timed out")
	// ErrCancelled is wrapped by CancelledError.
	ErrCancelled = errors.New("fiberio: operation cancelled")
	// ErrClosed is returned by operations against a closed Runtime/Scheduler/IOManager.
	ErrClosed = errors.New("fiberio: closed")
	// ErrEventAlreadyRegistered is returned by AddEvent when the direction already has a parked continuation.
	ErrEventAlreadyRegistered = errors.New("fiberio: event already registered for this direction")
	// ErrEventNotRegistered is returned by DelEvent/CancelEvent when the direction has nothing parked.
	ErrEventNotRegistered = errors.New("fiberio: no event registered for this direction")
)

// ProgrammingError reports a violated precondition on one of the runtime's
// state machines: resuming a fiber that is not in a resumable state, such
// as one already in EXEC or already terminated. A second registration on an
// occupied I/O direction is not one: AddEvent returns
// ErrEventAlreadyRegistered for it.
//
// A ProgrammingError always indicates a bug in the caller or the runtime
// itself, never a transient condition; the runtime panics with it rather
// than returning it.
type ProgrammingError struct {
	Component string // "fiber", "scheduler", "iomanager", "timer"
	Detail    string
}

func (e *ProgrammingError) Error() string {
	return fmt.Sprintf("fiberio: programming error in %s: %s", e.Component, e.Detail)
}

// OSError wraps a failed syscall with the fd and operation name, mirroring
// the {fd, op, errno} triple logged on every epoll_ctl failure.
type OSError struct {
	FD  int
	Op  string
	Err error
}

func (e *OSError) Error() string {
	return fmt.Sprintf("fiberio: %s(fd=%d): %v", e.Op, e.FD, e.Err)
}

func (e *OSError) Unwrap() error { return e.Err }

// TimeoutError is returned by an async primitive whose parked direction
// exceeded its per-fd deadline before the OS reported readiness.
type TimeoutError struct {
	FD        int
	Direction Direction
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("fiberio: %s timed out on fd %d", e.Direction, e.FD)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// CancelledError is returned by an async primitive whose parked direction
// was cancelled out from under it, typically because the fd was closed.
type CancelledError struct {
	FD        int
	Direction Direction
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("fiberio: %s on fd %d cancelled", e.Direction, e.FD)
}

func (e *CancelledError) Unwrap() error { return ErrCancelled }

// FiberPanicError carries a recovered panic from a fiber's callable. It is
// never propagated to an unrelated fiber; it is attached to the terminated
// fiber's Outcome for whoever joins it.
type FiberPanicError struct {
	FiberID    uint64
	Value      any
	Stacktrace string
}

func (e *FiberPanicError) Error() string {
	return fmt.Sprintf("fiberio: fiber %d panicked: %v", e.FiberID, e.Value)
}

// Unwrap returns the underlying error if the panic value was itself an
// error, enabling errors.Is/errors.As through the recovered panic.
func (e *FiberPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
