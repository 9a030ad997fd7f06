package fiberio

import (
	"runtime/debug"
	"sync/atomic"
)

// OutcomeKind classifies how a fiber's callable finished.
type OutcomeKind uint8

const (
	// OutcomeTerminated is a callable that returned normally.
	OutcomeTerminated OutcomeKind = iota
	// OutcomePanicked is a callable that panicked; Err is a *FiberPanicError.
	OutcomePanicked
	// OutcomeCancelled is a fiber whose pending operation was cancelled
	// before the callable ran to completion (reserved for callers building
	// cooperative cancellation on top of a Fiber; the runtime itself never
	// produces this kind on its own).
	OutcomeCancelled
)

// Outcome is the closed sum type describing how a fiber ended.
type Outcome struct {
	Kind OutcomeKind
	Err  error
}

// Fiber is a stackful, cooperatively-scheduled unit of execution: a
// goroutine paired with a pair of unbuffered handoff channels, substituting
// for the ucontext-based coroutines of the system this runtime's design is
// modeled on. A Fiber is always resumed by exactly one scheduler worker at
// a time; YieldToHold and YieldToReady are the only ways a fiber itself
// relinquishes control.
type Fiber struct {
	id        uint64
	state     *FastState
	scheduler *Scheduler

	resumeCh chan struct{}
	holdCh   chan struct{}
	done     chan struct{}

	outcome Outcome
	fn      func(*Fiber)
	started atomic.Bool
}

var fiberIDCounter atomic.Uint64

func newFiber(sched *Scheduler, fn func(*Fiber)) *Fiber {
	return &Fiber{
		id:        fiberIDCounter.Add(1),
		state:     NewFastState(uint64(FiberInit)),
		scheduler: sched,
		resumeCh:  make(chan struct{}),
		holdCh:    make(chan struct{}),
		done:      make(chan struct{}),
		fn:        fn,
	}
}

// ID returns the fiber's runtime-unique identifier.
func (f *Fiber) ID() uint64 { return f.id }

// State returns the fiber's current state.
func (f *Fiber) State() FiberState { return FiberState(f.state.Load()) }

// Scheduler returns the Scheduler this fiber runs on.
func (f *Fiber) Scheduler() *Scheduler { return f.scheduler }

// start lazily launches the fiber's backing goroutine. Safe to call
// repeatedly; only the first call has an effect.
func (f *Fiber) start() {
	if !f.started.CompareAndSwap(false, true) {
		return
	}
	go f.trampoline()
}

// trampoline is the fiber's backing goroutine body. It blocks until first
// resumed, then runs fn to completion (recovering any panic into a
// FiberPanicError), then hands control back permanently.
func (f *Fiber) trampoline() {
	<-f.resumeCh

	registerCurrentFiber(f)
	defer unregisterCurrentFiber()

	outcome := Outcome{Kind: OutcomeTerminated}
	func() {
		defer func() {
			if r := recover(); r != nil {
				outcome = Outcome{
					Kind: OutcomePanicked,
					Err: &FiberPanicError{
						FiberID:    f.id,
						Value:      r,
						Stacktrace: string(debug.Stack()),
					},
				}
			}
		}()
		f.fn(f)
	}()

	f.outcome = outcome
	if outcome.Kind == OutcomePanicked {
		f.state.Store(uint64(FiberExcept))
	} else {
		f.state.Store(uint64(FiberTerm))
	}
	close(f.done)
	f.holdCh <- struct{}{}
}

// resume transfers control to the fiber and blocks until it either yields
// back (via YieldToHold/YieldToReady) or terminates. Called only from a
// scheduler worker.
func (f *Fiber) resume() {
	if !f.state.CASAny([]uint64{uint64(FiberInit), uint64(FiberReady), uint64(FiberHold)}, uint64(FiberExec)) {
		panic(&ProgrammingError{Component: "fiber", Detail: "resume called on a fiber not in a resumable state"})
	}
	f.resumeCh <- struct{}{}
	<-f.holdCh
}

// YieldToHold parks the fiber indefinitely: control returns to the
// scheduler worker that resumed it, and the fiber will not run again until
// some other code path explicitly re-schedules it (typically an I/O
// readiness callback or an explicit Schedule call).
func (f *Fiber) YieldToHold() {
	f.state.Store(uint64(FiberHold))
	f.holdCh <- struct{}{}
	<-f.resumeCh
	f.state.Store(uint64(FiberExec))
}

// YieldToReady parks the fiber and immediately re-enqueues it on the
// scheduler's ready queue, for cooperative round-robin yielding rather
// than waiting on an external event.
func (f *Fiber) YieldToReady() {
	f.scheduler.scheduleFiber(f)
	f.holdCh <- struct{}{}
	<-f.resumeCh
	f.state.Store(uint64(FiberExec))
}

// Wait blocks until the fiber reaches a terminal state and returns its Outcome.
func (f *Fiber) Wait() Outcome {
	<-f.done
	return f.outcome
}

// Schedule re-enqueues a held fiber for resumption, waking whichever
// scheduler worker picks it up next. Used by the I/O manager and timer
// manager to resume a fiber parked via YieldToHold once its condition is
// satisfied.
func (f *Fiber) Schedule() {
	f.scheduler.scheduleFiber(f)
}
