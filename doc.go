// Package fiberio provides a user-space cooperative concurrency runtime:
// stackful fibers multiplexed over a fixed OS-thread worker pool (an M:N
// scheduler), an epoll-backed I/O manager, and a heap-based timer manager.
//
// # Architecture
//
// A [Runtime] owns four collaborators: a [Scheduler] that dispatches ready
// fibers across its worker goroutines, an [IOManager] that extends the
// Scheduler with an epoll event loop run by one dedicated reactor goroutine, a
// [TimerManager] that tracks pending one-shot, recurring, and conditional
// timers in deadline order, and an [FdTable] that tracks per-fd read/write
// continuations.
//
// A [Fiber] is a goroutine paired with a pair of unbuffered handoff
// channels, standing in for the stackful coroutines (ucontext/makecontext)
// of the system this runtime's design is modeled on: [Fiber.YieldToHold]
// and [Fiber.YieldToReady] park the calling fiber and transfer control back
// to the scheduling worker, which resumes some other ready fiber.
//
// # Platform Support
//
// The I/O manager targets Linux only, via golang.org/x/sys/unix's epoll
// and eventfd bindings. There is no cross-platform poller abstraction.
//
// # Thread Safety
//
// [Scheduler.Schedule] is safe to call from any goroutine, including from
// inside a fiber running on a different worker. The ready queue is guarded
// by the scheduler's own mutex; every Schedule call tickles the workers
// through a one-slot wake channel that idle workers park on.
//
// # Execution Model
//
// Each worker thread runs a dispatch loop: pop the oldest ready task (the
// thread hint accepted by Schedule is not consulted), run it, and park on
// the wake channel if the ready queue is empty. Workers never block in
// epoll_wait and there is no idle fiber: the IOManager's reactor goroutine
// blocks in epoll_wait, bounded by the next timer deadline and the idle
// timeout, and schedules ready continuations and expired timer callbacks
// onto the Scheduler's ready queue.
//
// # Usage
//
//	rt, err := fiberio.NewRuntime(fiberio.WithWorkers(4))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer rt.Close()
//
//	rt.Go(func(f *fiberio.Fiber) {
//		conn, _, err := rt.IOManager().AsyncAccept(f, listenFD)
//		if err != nil {
//			return
//		}
//		_, _ = rt.IOManager().AsyncWrite(f, conn, []byte("hello"))
//	})
//
// # Error Types
//
// The package distinguishes five failure kinds: [ProgrammingError] (a
// violated internal precondition, always a bug), [OSError] (a failed
// syscall), [TimeoutError] and [CancelledError] (a parked async primitive
// that didn't resolve), and [FiberPanicError] (a recovered panic from a
// fiber's callable, attached to its terminal Outcome). [TimeoutError] and
// [CancelledError] wrap [ErrTimeout] and [ErrCancelled] so callers can use
// [errors.Is]; [OSError] unwraps to the failed syscall's error, and
// [FiberPanicError] unwraps to the panic value when that value is an error.
// [ErrClosed] is returned directly, e.g. by Schedule on a stopped Scheduler.
package fiberio
