package fiberio

import (
	"runtime"
	"sync"
)

// currentFiberRegistry maps the OS-reported goroutine id of a fiber's
// backing goroutine to the Fiber itself, for the package-level
// Current*() accessors. This stands in for thread-local storage, which
// Go does not expose directly; getGoroutineID's stack-trace parsing is
// the same technique the runtime this package's ancestor already used
// for its own loop-thread affinity check.
var currentFiberRegistry sync.Map // goroutine id (uint64) -> *Fiber

func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

func registerCurrentFiber(f *Fiber) {
	currentFiberRegistry.Store(getGoroutineID(), f)
}

func unregisterCurrentFiber() {
	currentFiberRegistry.Delete(getGoroutineID())
}

// currentFiber returns the Fiber whose trampoline is running on the
// calling goroutine, or nil if none (the calling goroutine is not a
// fiber's backing goroutine).
func currentFiber() *Fiber {
	v, ok := currentFiberRegistry.Load(getGoroutineID())
	if !ok {
		return nil
	}
	return v.(*Fiber)
}

// CurrentFiberID returns the id of the fiber running on the calling
// goroutine, and true, or (0, false) if the caller is not running inside
// a fiber's callable.
func CurrentFiberID() (uint64, bool) {
	f := currentFiber()
	if f == nil {
		return 0, false
	}
	return f.ID(), true
}

// CurrentScheduler returns the Scheduler owning the fiber running on the
// calling goroutine, or nil if the caller is not running inside a fiber's
// callable.
func CurrentScheduler() *Scheduler {
	f := currentFiber()
	if f == nil {
		return nil
	}
	return f.Scheduler()
}

// CurrentIOManager returns the IOManager owning the fiber running on the
// calling goroutine, or nil if there is none or the owning Scheduler is a
// bare Scheduler not wrapped by an IOManager.
func CurrentIOManager() *IOManager {
	s := CurrentScheduler()
	if s == nil {
		return nil
	}
	return s.owner
}
