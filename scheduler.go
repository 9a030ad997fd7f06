package fiberio

import (
	"fmt"
	"sync"
	"time"

	"github.com/joeycumines/go-catrate"
)

// Scheduler is a fixed pool of OS-thread-backed workers dispatching fibers
// (and raw tasks) from a shared ready queue. [IOManager] embeds a Scheduler
// and extends its idle path with an epoll wait.
type Scheduler struct {
	log *Logger

	mu    scopedMutex
	ready *ChunkedIngress

	wake chan struct{} // buffered 1: coalesces wakeups, matches tickle's at-least-one semantics

	state *FastState // LoopState

	workers int
	wg      sync.WaitGroup
	stopCh  chan struct{}

	tickleLimiter *catrate.Limiter

	diag *diagnosticsCounters

	owner *IOManager // set by NewIOManager; nil for a bare Scheduler

	fiberStackSizeHint int
}

// SchedulerOption configures a Scheduler. Most callers use [RuntimeOption]s
// via [NewRuntime] instead of constructing a Scheduler directly.
type SchedulerOption interface {
	apply(*Scheduler)
}

type schedulerOptionFunc func(*Scheduler)

func (f schedulerOptionFunc) apply(s *Scheduler) { f(s) }

// WithSchedulerLogger attaches a structured logger to a standalone Scheduler.
func WithSchedulerLogger(l *Logger) SchedulerOption {
	return schedulerOptionFunc(func(s *Scheduler) { s.log = l })
}

// WithSchedulerFiberStackSizeHint sets the value logged as fiber.stack.size
// at each fiber's creation (section 6's configuration knob). Go goroutine
// stacks grow on demand, so this is advisory: a budget recorded for
// operators, not an allocation this Scheduler itself performs.
func WithSchedulerFiberStackSizeHint(bytes int) SchedulerOption {
	return schedulerOptionFunc(func(s *Scheduler) { s.fiberStackSizeHint = bytes })
}

// NewScheduler creates a Scheduler with the given number of worker
// goroutines (each locked to its own OS thread), not yet started.
func NewScheduler(workers int, opts ...SchedulerOption) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	s := &Scheduler{
		log:                NewNoopLogger(),
		ready:              NewChunkedIngress(),
		wake:               make(chan struct{}, 1),
		state:              NewFastState(uint64(LoopAwake)),
		workers:            workers,
		stopCh:             make(chan struct{}),
		diag:               &diagnosticsCounters{},
		fiberStackSizeHint: DefaultFiberStackSize,
	}
	for _, o := range opts {
		o.apply(s)
	}
	return s
}

// WithTickleRateLimiter installs a rate limiter bounding how often tickle
// actually emits a wakeup signal under a scheduling storm; the work itself
// is never dropped, only the wakeup signal is coalesced more aggressively
// than the single-pending-wakeup channel already provides.
func (s *Scheduler) WithTickleRateLimiter(perSecond int) {
	if perSecond <= 0 {
		s.tickleLimiter = nil
		return
	}
	s.tickleLimiter = catrate.NewLimiter(map[time.Duration]int{time.Second: perSecond})
}

// Start launches the worker pool. Safe to call once. Each worker is brought
// up via GoNamed, mirroring the original's pthread_create + sem_wait/
// sem_post handshake: Start does not return until every worker goroutine
// has actually begun running.
func (s *Scheduler) Start() {
	if !s.state.CAS(uint64(LoopAwake), uint64(LoopRunning)) {
		return
	}
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		GoNamed(fmt.Sprintf("fiberio-worker-%d", i), s.workerLoop)
	}
}

// Stop signals all workers to exit once the ready queue drains, and waits
// for them to join.
func (s *Scheduler) Stop() {
	if !s.state.CASAny([]uint64{uint64(LoopRunning), uint64(LoopIdle)}, uint64(LoopStopping)) {
		return
	}
	close(s.stopCh)
	s.tickle()
	s.wg.Wait()
	s.state.Store(uint64(LoopStopped))
}

// ThreadID names one of a Scheduler's worker goroutines, for the optional
// affinity hint accepted by Schedule.
type ThreadID uint64

// Schedule enqueues a raw task onto the ready queue and wakes a worker.
// Safe to call from any goroutine, including from inside a fiber running
// on this Scheduler.
//
// threadHint is accepted for parity with the original's per-task thread
// affinity (section 4.3's dispatch loop scans for a task affined to the
// picking worker before falling back to any task). It is not enforced here:
// unlike the pthread-backed original, a Go fiber's trampoline goroutine is
// never pinned to the worker goroutine that resumes it — the Go runtime is
// free to move it across OS threads between yields — so the only thing the
// original's affinity actually protected, a fiber's thread-local paired
// context, has no equivalent need in this port; [CurrentScheduler] and
// [CurrentIOManager] already resolve correctly regardless of which worker
// last resumed a fiber. threadHint is recorded nowhere; a future caller
// wanting true work-affinity (e.g. pinning a task to the worker warm for a
// particular NUMA node or CPU-bound computation) would need a per-worker
// sub-queue, which the shared ChunkedIngress does not provide.
func (s *Scheduler) Schedule(fn func(), threadHint ...ThreadID) error {
	if LoopState(s.state.Load()) == LoopStopped {
		return ErrClosed
	}
	s.diag.scheduled()
	unlock := s.mu.Lock()
	s.ready.Push(fn)
	unlock()
	s.tickle()
	return nil
}

// Go creates a fiber running fn and schedules its first resume.
func (s *Scheduler) Go(fn func(*Fiber)) *Fiber {
	f := newFiber(s, fn)
	s.diag.fiberCreated()
	s.log.Debug().
		Uint64("fiber_id", f.id).
		Int("stack_size_hint", s.fiberStackSizeHint).
		Log("fiber created")
	s.scheduleFiber(f)
	return f
}

// scheduleFiber enqueues a fiber for its next resume.
func (s *Scheduler) scheduleFiber(f *Fiber) {
	f.state.Store(uint64(FiberReady))
	_ = s.Schedule(func() { s.resumeOne(f) })
}

func (s *Scheduler) resumeOne(f *Fiber) {
	f.start()
	f.resume()
	if f.State().terminal() {
		s.diag.fiberTerminated()
		if f.State() == FiberExcept {
			s.diag.fiberPanicked()
			pe := f.outcome.Err.(*FiberPanicError)
			s.log.Err().
				Uint64("fiber_id", f.id).
				Any("panic", pe.Value).
				Any("stacktrace", pe.Stacktrace).
				Log("fiber panicked")
		}
	}
}

// tickle wakes one idle worker, or does nothing if one is already awake or
// a wakeup is already pending. If a tickle rate limiter is installed and
// denies the category, the wakeup signal is skipped — the enqueued work
// remains and will be picked up by whichever worker next polls the ready
// queue (parked workers re-check it every 10ms while a limiter is set).
func (s *Scheduler) tickle() {
	if s.tickleLimiter != nil {
		if _, ok := s.tickleLimiter.Allow("tickle"); !ok {
			return
		}
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// workerLoop is the dispatch loop body for a plain Scheduler worker: pop a
// ready task, run it, repeat; park on the wake channel when the queue is
// empty, re-checking the queue every 10ms while a tickle rate limiter is
// installed (a rate-limited tickle may never arrive).
func (s *Scheduler) workerLoop() {
	defer s.wg.Done()

	for {
		task, ok := s.popReady()
		if ok {
			s.runTask(task)
			continue
		}

		var poll <-chan time.Time
		if s.tickleLimiter != nil {
			poll = time.After(10 * time.Millisecond)
		}
		select {
		case <-poll:
		case <-s.stopCh:
			if task, ok := s.popReady(); ok {
				s.runTask(task)
				continue
			}
			return
		case <-s.wake:
		}
	}
}

func (s *Scheduler) popReady() (func(), bool) {
	defer s.mu.Lock()()
	return s.ready.Pop()
}

func (s *Scheduler) readyLen() int {
	defer s.mu.Lock()()
	return s.ready.Length()
}

func (s *Scheduler) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Err().Any("panic", r).Log("scheduler task panicked")
		}
	}()
	fn()
}
