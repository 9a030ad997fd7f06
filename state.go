package fiberio

import (
	"sync/atomic"
)

// FiberState is a value in the fiber state machine.
//
//	INIT → EXEC → (HOLD | READY | TERM | EXCEPT)
//	HOLD → READY → EXEC      (re-scheduled)
//	TERM/EXCEPT: terminal
type FiberState uint64

const (
	// FiberInit is the state of a fiber that has never been resumed.
	FiberInit FiberState = iota
	// FiberExec is the state of the one fiber per OS thread currently executing.
	FiberExec
	// FiberHold is the state of a fiber parked awaiting an external resumption
	// (I/O readiness, timer expiry, explicit schedule).
	FiberHold
	// FiberReady is the state of a fiber sitting on the ready queue awaiting a worker.
	FiberReady
	// FiberTerm is the terminal state of a fiber whose callable returned normally.
	FiberTerm
	// FiberExcept is the terminal state of a fiber whose callable panicked.
	FiberExcept
)

func (s FiberState) String() string {
	switch s {
	case FiberInit:
		return "init"
	case FiberExec:
		return "exec"
	case FiberHold:
		return "hold"
	case FiberReady:
		return "ready"
	case FiberTerm:
		return "term"
	case FiberExcept:
		return "except"
	default:
		return "unknown"
	}
}

func (s FiberState) resumable() bool {
	return s == FiberInit || s == FiberReady || s == FiberHold
}

func (s FiberState) terminal() bool {
	return s == FiberTerm || s == FiberExcept
}

// LoopState is the run state of a Scheduler or IOManager worker loop.
type LoopState uint64

const (
	// LoopAwake indicates the loop has been constructed but Start has not run.
	LoopAwake LoopState = 0
	// LoopRunning indicates the loop is actively dispatching fibers/tasks.
	LoopRunning LoopState = 1
	// LoopIdle is accepted by Stop as a source state; the current Scheduler never enters it.
	LoopIdle LoopState = 2
	// LoopStopping indicates Stop has been called but workers have not yet drained.
	LoopStopping LoopState = 3
	// LoopStopped is terminal: all workers have joined.
	LoopStopped LoopState = 4
)

func (s LoopState) String() string {
	switch s {
	case LoopAwake:
		return "awake"
	case LoopRunning:
		return "running"
	case LoopIdle:
		return "idle"
	case LoopStopping:
		return "stopping"
	case LoopStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// FastState is a lock-free, cache-line-padded state machine built on a
// single atomic word. It backs both a Fiber's state and a Scheduler's or
// IOManager's loop state — both are small closed enums read far more
// often than written, and must never take a mutex on the hot resume/yield
// path.
type FastState struct { // betteralign:ignore
	_ [64]byte      // cache line padding, avoids false sharing with neighboring fields
	v atomic.Uint64 //nolint:unused
	_ [56]byte
}

// NewFastState creates a state machine initialized to the given value.
func NewFastState(initial uint64) *FastState {
	s := &FastState{}
	s.v.Store(initial)
	return s
}

// Load returns the current value atomically.
func (s *FastState) Load() uint64 { return s.v.Load() }

// Store atomically sets a new value, bypassing transition validation.
// Used for transitions whose source state needs no check (a fiber's
// HOLD/READY/EXEC/terminal stores and the Scheduler's LoopStopped).
func (s *FastState) Store(v uint64) { s.v.Store(v) }

// CAS attempts to atomically transition from one value to another.
func (s *FastState) CAS(from, to uint64) bool {
	return s.v.CompareAndSwap(from, to)
}

// CASAny attempts a transition from any of the given source values to the target.
func (s *FastState) CASAny(validFrom []uint64, to uint64) bool {
	for _, from := range validFrom {
		if s.v.CompareAndSwap(from, to) {
			return true
		}
	}
	return false
}
