package fiberio

import (
	"time"
)

// IOManager extends a [Scheduler] with epoll-backed I/O readiness and a
// timer manager. One dedicated reactor goroutine owns the epoll instance;
// the Scheduler's worker pool continues to dispatch fibers exactly as it
// would without I/O, with the reactor feeding ready continuations back
// onto the same ready queue via Schedule.
type IOManager struct {
	*Scheduler

	fds    *FdTable
	timers *TimerManager
	poller FastPoller
	wake   *wakeupFD
	stopCh chan struct{}
	doneCh chan struct{}

	idleTimeout        time.Duration
	defaultReadTimeout time.Duration
}

// IOManagerOption configures an IOManager.
type IOManagerOption interface {
	apply(*IOManager)
}

type ioManagerOptionFunc func(*IOManager)

func (f ioManagerOptionFunc) apply(m *IOManager) { f(m) }

// WithIOManagerIdleTimeout bounds how long the reactor's epoll_wait call
// may block when no timer is pending.
func WithIOManagerIdleTimeout(d time.Duration) IOManagerOption {
	return ioManagerOptionFunc(func(m *IOManager) { m.idleTimeout = d })
}

// WithIOManagerReadTimeout sets the default per-operation timeout used by
// AsyncRead/AsyncRecv/AsyncReadv/AsyncRecvFrom/AsyncRecvMsg/AsyncConnect
// when parking a fiber. AsyncAccept and the write-side primitives park
// without a timeout.
func WithIOManagerReadTimeout(d time.Duration) IOManagerOption {
	return ioManagerOptionFunc(func(m *IOManager) { m.defaultReadTimeout = d })
}

// NewIOManager creates an IOManager with its own Scheduler of the given
// worker count. The epoll instance and wakeup eventfd are created
// immediately; Start launches the worker pool and reactor goroutine.
func NewIOManager(workers int, clockRollbackThreshold time.Duration, opts ...IOManagerOption) (*IOManager, error) {
	m := &IOManager{
		Scheduler:          NewScheduler(workers),
		fds:                NewFdTable(),
		timers:             NewTimerManager(clockRollbackThreshold),
		stopCh:             make(chan struct{}),
		doneCh:             make(chan struct{}),
		idleTimeout:        DefaultIdleTimeout,
		defaultReadTimeout: DefaultReadTimeout,
	}
	for _, o := range opts {
		o.apply(m)
	}
	m.Scheduler.owner = m

	if err := m.poller.Init(); err != nil {
		return nil, err
	}
	wake, err := newWakeupFD()
	if err != nil {
		_ = m.poller.Close()
		return nil, err
	}
	if err := m.poller.Add(wake.FD(), EventRead); err != nil {
		_ = wake.Close()
		_ = m.poller.Close()
		return nil, err
	}
	m.wake = wake

	return m, nil
}

// Start launches the Scheduler's worker pool and the reactor goroutine.
func (m *IOManager) Start() {
	m.Scheduler.Start()
	go m.reactorLoop()
}

// Stop signals the reactor goroutine to exit, then cancels every remaining
// fd continuation and pending timer before stopping the Scheduler's
// workers. A fiber still parked in AsyncRead/AsyncRecv/etc. is resumed
// with a CancelledError rather than left stranded once Stop returns.
// Pending timers are dropped without running their callbacks, so a fiber
// parked in Sleep is not resumed.
func (m *IOManager) Stop() {
	close(m.stopCh)
	_ = m.wake.Signal()
	<-m.doneCh

	for _, fd := range m.fds.RegisteredFDs() {
		m.CancelAll(fd)
	}
	m.timers.CancelAll()

	m.Scheduler.Stop()
	_ = m.wake.Close()
	_ = m.poller.Close()
}

// AddEvent parks f on direction dir for fd, to be resumed (and callback
// invoked) once the OS reports readiness. Returns ErrEventAlreadyRegistered
// if a continuation is already parked on that direction.
func (m *IOManager) AddEvent(fd int, dir Direction, f *Fiber, callback func(events IOEvents, err error)) error {
	ctx := m.fds.get(fd)

	ctx.mu.Lock()
	if ctx.events[dir] != nil {
		ctx.mu.Unlock()
		return ErrEventAlreadyRegistered
	}
	wasEmpty := ctx.events[0] == nil && ctx.events[1] == nil
	ctx.events[dir] = &continuation{fiber: f, callback: callback}
	other := ctx.events[1-dir]
	ctx.mu.Unlock()

	var want IOEvents
	want |= dir.event()
	if other != nil {
		want |= (1 - dir).event()
	}

	var err error
	if wasEmpty {
		if !ctx.registered {
			err = m.registerFD(fd)
		}
		if err == nil {
			err = m.poller.Add(fd, want)
		}
	} else {
		err = m.poller.Modify(fd, want)
	}
	if err != nil {
		ctx.mu.Lock()
		ctx.events[dir] = nil
		ctx.mu.Unlock()
		return err
	}
	return nil
}

// registerFD marks fd as epoll-registered and ensures it is non-blocking
// at the OS level, required for correct edge/level-triggered epoll use.
func (m *IOManager) registerFD(fd int) error {
	if err := setNonblock(fd); err != nil {
		return err
	}
	ctx := m.fds.get(fd)
	ctx.mu.Lock()
	ctx.registered = true
	ctx.mu.Unlock()
	return nil
}

// DelEvent removes the parked continuation for fd/dir, if any, without
// invoking its callback. Returns ErrEventNotRegistered if nothing was parked.
func (m *IOManager) DelEvent(fd int, dir Direction) error {
	ctx, ok := m.fds.lookup(fd)
	if !ok {
		return ErrEventNotRegistered
	}
	ctx.mu.Lock()
	if ctx.events[dir] == nil {
		ctx.mu.Unlock()
		return ErrEventNotRegistered
	}
	ctx.events[dir] = nil
	remaining := ctx.events[1-dir]
	ctx.mu.Unlock()

	return m.retargetOrRemove(fd, remaining, 1-dir)
}

// CancelEvent removes the parked continuation for fd/dir, if any, and
// resumes its fiber with a CancelledError.
func (m *IOManager) CancelEvent(fd int, dir Direction) error {
	ctx, ok := m.fds.lookup(fd)
	if !ok {
		return ErrEventNotRegistered
	}
	ctx.mu.Lock()
	c := ctx.events[dir]
	if c == nil {
		ctx.mu.Unlock()
		return ErrEventNotRegistered
	}
	ctx.events[dir] = nil
	remaining := ctx.events[1-dir]
	ctx.mu.Unlock()

	if err := m.retargetOrRemove(fd, remaining, 1-dir); err != nil {
		return err
	}
	m.completeContinuation(c, 0, &CancelledError{FD: fd, Direction: dir})
	return nil
}

// CancelAll cancels every parked continuation for fd (both directions)
// and releases the fd's table entry, for use when the fd is being closed.
func (m *IOManager) CancelAll(fd int) {
	ctx, ok := m.fds.lookup(fd)
	if !ok {
		return
	}
	ctx.mu.Lock()
	read, write := ctx.events[DirectionRead], ctx.events[DirectionWrite]
	ctx.events[DirectionRead], ctx.events[DirectionWrite] = nil, nil
	registered := ctx.registered
	ctx.mu.Unlock()

	if registered {
		_ = m.poller.Remove(fd)
	}
	m.fds.release(fd)

	if read != nil {
		m.completeContinuation(read, 0, &CancelledError{FD: fd, Direction: DirectionRead})
	}
	if write != nil {
		m.completeContinuation(write, 0, &CancelledError{FD: fd, Direction: DirectionWrite})
	}
}

func (m *IOManager) retargetOrRemove(fd int, remaining *continuation, remainingDir Direction) error {
	if remaining != nil {
		return m.poller.Modify(fd, remainingDir.event())
	}
	ctx, ok := m.fds.lookup(fd)
	if ok {
		ctx.mu.Lock()
		registered := ctx.registered
		ctx.mu.Unlock()
		if registered {
			return m.poller.Remove(fd)
		}
	}
	return nil
}

// completeContinuation runs the continuation's callback and resumes its
// fiber, scheduling it back onto the ready queue.
func (m *IOManager) completeContinuation(c *continuation, events IOEvents, err error) {
	if c.callback != nil {
		c.callback(events, err)
	}
	if c.fiber != nil {
		c.fiber.Schedule()
	}
}

// AddTimer registers a one-shot or recurring timer with this IOManager's
// TimerManager and wakes the reactor so it can recompute its wait timeout.
func (m *IOManager) AddTimer(period time.Duration, cb func(), recurring bool) *Timer {
	t := m.timers.AddTimer(period, cb, recurring)
	_ = m.wake.Signal()
	return t
}

// AddConditionalTimer is as AddTimer, but cb only runs if cond() still
// returns true at expiry.
func (m *IOManager) AddConditionalTimer(period time.Duration, cb func(), cond func() bool, recurring bool) *Timer {
	t := m.timers.AddConditionalTimer(period, cb, cond, recurring)
	_ = m.wake.Signal()
	return t
}

// reactorLoop is the single goroutine that owns the epoll instance: wait
// for readiness or the next timer deadline, dispatch both kinds of
// completion back onto the Scheduler's ready queue.
func (m *IOManager) reactorLoop() {
	defer close(m.doneCh)

	var buf []polledEvent
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		timeout := m.timers.NextTimeoutMs()
		if timeout < 0 || time.Duration(timeout)*time.Millisecond > m.idleTimeout {
			timeout = int(m.idleTimeout.Milliseconds())
		}

		buf = buf[:0]
		var err error
		buf, err = m.poller.Wait(timeout, buf)
		if err != nil {
			continue
		}

		for _, ev := range buf {
			if ev.FD == m.wake.FD() {
				_ = m.wake.Drain()
				continue
			}
			m.dispatchReadyFD(ev.FD, ev.Events)
		}

		for _, cb := range m.timers.DrainExpired() {
			fn := cb
			_ = m.Scheduler.Schedule(fn)
		}
	}
}

func (m *IOManager) dispatchReadyFD(fd int, events IOEvents) {
	ctx, ok := m.fds.lookup(fd)
	if !ok {
		return
	}

	ctx.mu.Lock()
	var read, write *continuation
	if events&(EventRead|EventError|EventHangup) != 0 {
		read = ctx.events[DirectionRead]
		ctx.events[DirectionRead] = nil
	}
	if events&(EventWrite|EventError|EventHangup) != 0 {
		write = ctx.events[DirectionWrite]
		ctx.events[DirectionWrite] = nil
	}
	remaining := ctx.events[DirectionRead]
	if remaining == nil {
		remaining = ctx.events[DirectionWrite]
	}
	var remainingDir Direction
	if ctx.events[DirectionWrite] != nil {
		remainingDir = DirectionWrite
	}
	ctx.mu.Unlock()

	_ = m.retargetOrRemove(fd, remaining, remainingDir)

	if read != nil {
		m.completeContinuation(read, events, nil)
	}
	if write != nil {
		m.completeContinuation(write, events, nil)
	}
}

// Diagnostics returns a point-in-time snapshot of the manager's state.
func (m *IOManager) Diagnostics() Diagnostics {
	return m.diag.snapshot(m.timers.Pending(), m.fds.pendingCount(), m.readyLen(), m.fds.RegisteredFDs())
}
