// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package fiberio

import "time"

// Configuration knobs and their defaults (section 6).
const (
	// DefaultFiberStackSize is fiber.stack.size's default: 1 MiB. Go goroutine
	// stacks grow on demand, so this is not a hard allocation; it is logged
	// at fiber creation as a diagnostic hint. It does not cap the number of
	// live fibers.
	DefaultFiberStackSize = 1 << 20

	// DefaultIdleTimeout is io.idle_timeout_ms's default: the upper bound on
	// a single epoll_wait sleep.
	DefaultIdleTimeout = 5000 * time.Millisecond

	// DefaultReadTimeout is tcp_server.read_timeout's default: the
	// per-connection read timeout a caller building a server on this
	// runtime would hand to an accepted socket.
	DefaultReadTimeout = 120_000 * time.Millisecond

	// DefaultClockRollbackThreshold is the backward jump in monotonic time
	// that causes the timer manager to treat every pending timer as expired
	// exactly once.
	DefaultClockRollbackThreshold = time.Hour
)

// runtimeOptions holds resolved configuration for a Runtime.
type runtimeOptions struct {
	fiberStackSize         int
	idleTimeout            time.Duration
	defaultReadTimeout     time.Duration
	clockRollbackThreshold time.Duration
	workers                int
	logger                 *Logger
	tickleRateLimit        int // 0 disables rate limiting
}

// RuntimeOption configures a Runtime.
type RuntimeOption interface {
	apply(*runtimeOptions)
}

type runtimeOptionFunc func(*runtimeOptions)

func (f runtimeOptionFunc) apply(o *runtimeOptions) { f(o) }

// WithFiberStackSize sets fiber.stack.size.
func WithFiberStackSize(bytes int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.fiberStackSize = bytes })
}

// WithIdleTimeout sets io.idle_timeout_ms, the upper bound on epoll_wait's sleep.
func WithIdleTimeout(d time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.idleTimeout = d })
}

// WithDefaultReadTimeout sets tcp_server.read_timeout.
func WithDefaultReadTimeout(d time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.defaultReadTimeout = d })
}

// WithClockRollbackThreshold sets the backward monotonic jump that triggers
// the timer manager's rollback safety valve.
func WithClockRollbackThreshold(d time.Duration) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.clockRollbackThreshold = d })
}

// WithWorkers sets the number of scheduler worker threads. Default 1.
func WithWorkers(n int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) {
		if n > 0 {
			o.workers = n
		}
	})
}

// WithLogger attaches a structured logger. Defaults to a no-op logger.
func WithLogger(l *Logger) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.logger = l })
}

// WithTickleRateLimit caps how many wakeups per second the scheduler's
// tickle() will emit, whichever goroutine calls Schedule; it never drops
// the work itself, only coalesces the wakeup signal, and parked workers
// re-check the ready queue every 10ms while a limit is set. 0 (default)
// disables rate limiting.
func WithTickleRateLimit(perSecond int) RuntimeOption {
	return runtimeOptionFunc(func(o *runtimeOptions) { o.tickleRateLimit = perSecond })
}

func resolveRuntimeOptions(opts []RuntimeOption) *runtimeOptions {
	cfg := &runtimeOptions{
		fiberStackSize:         DefaultFiberStackSize,
		idleTimeout:            DefaultIdleTimeout,
		defaultReadTimeout:     DefaultReadTimeout,
		clockRollbackThreshold: DefaultClockRollbackThreshold,
		workers:                1,
		logger:                 NewNoopLogger(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt.apply(cfg)
	}
	return cfg
}
