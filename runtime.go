package fiberio

// Runtime ties a Scheduler, IOManager, TimerManager, FdTable, and Logger
// together into the single entry point most callers embed: NewRuntime,
// Go, and the IOManager's Async* primitives are the whole public surface
// needed to write a fiber-based server.
//
// The IOManager embeds the Scheduler and owns the TimerManager and FdTable
// directly, so Runtime itself holds only the IOManager plus the resolved
// logger; Scheduler/TimerManager/FdTable accessors are provided for callers
// that need to reach past the IOManager's own API.
type Runtime struct {
	io  *IOManager
	log *Logger
}

// NewRuntime builds and starts a Runtime: the scheduler's worker pool and
// the epoll reactor goroutine are both running by the time NewRuntime
// returns.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	cfg := resolveRuntimeOptions(opts)

	io, err := NewIOManager(
		cfg.workers,
		cfg.clockRollbackThreshold,
		WithIOManagerIdleTimeout(cfg.idleTimeout),
		WithIOManagerReadTimeout(cfg.defaultReadTimeout),
	)
	if err != nil {
		return nil, err
	}
	io.log = cfg.logger
	io.fiberStackSizeHint = cfg.fiberStackSize
	io.WithTickleRateLimiter(cfg.tickleRateLimit)

	io.Start()

	return &Runtime{io: io, log: cfg.logger}, nil
}

// Go creates and schedules a new fiber running fn.
func (rt *Runtime) Go(fn func(*Fiber)) *Fiber {
	return rt.io.Go(fn)
}

// Scheduler returns the Runtime's underlying Scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.io.Scheduler }

// IOManager returns the Runtime's I/O manager, exposing the Async*
// primitives, AddTimer/AddConditionalTimer, and AddEvent/DelEvent/CancelEvent.
func (rt *Runtime) IOManager() *IOManager { return rt.io }

// TimerManager returns the Runtime's timer manager directly, for callers
// that want to register a timer without going through the IOManager's
// wakeup-signaling wrapper (e.g. bulk registration before Start).
func (rt *Runtime) TimerManager() *TimerManager { return rt.io.timers }

// FdTable returns the Runtime's fd table.
func (rt *Runtime) FdTable() *FdTable { return rt.io.fds }

// Logger returns the Runtime's structured logger.
func (rt *Runtime) Logger() *Logger { return rt.log }

// Diagnostics returns a point-in-time snapshot of the Runtime's state.
func (rt *Runtime) Diagnostics() Diagnostics { return rt.io.Diagnostics() }

// Dump returns the Runtime's current Diagnostics snapshot, YAML-encoded.
func (rt *Runtime) Dump() ([]byte, error) { return rt.Diagnostics().Dump() }

// Close stops the I/O reactor and the scheduler's worker pool, waiting for
// both to fully drain.
func (rt *Runtime) Close() error {
	rt.io.Stop()
	return nil
}
