package fiberio

import (
	"runtime"
	"sync"
)

// Semaphore is a simple counting semaphore built on a buffered channel,
// standing in for the original's sem_t-backed Semaphore.
type Semaphore struct {
	c chan struct{}
}

// NewSemaphore creates a semaphore whose counter starts at zero and holds
// at most count pending notifications. With count 0, each Notify blocks
// until a matching Wait takes it.
func NewSemaphore(count int) *Semaphore {
	s := &Semaphore{c: make(chan struct{}, count)}
	return s
}

// Notify increments the semaphore (sem_post), blocking while the counter
// is at its capacity.
func (s *Semaphore) Notify() { s.c <- struct{}{} }

// Wait blocks until the semaphore is positive, then decrements it (sem_wait).
func (s *Semaphore) Wait() { <-s.c }

// NamedGoroutine launches fn on its own OS thread (via
// runtime.LockOSThread), blocking the caller until fn has actually started
// running — grounded on the original's pthread_create + sem_wait/sem_post
// startup handshake, which exists so that a caller creating several
// threads in a loop can rely on each one having begun executing before the
// next is created.
type NamedGoroutine struct {
	Name string
	done chan struct{}
}

// GoNamed starts fn on a newly locked OS thread under the given name, and
// waits for it to signal it has started before returning.
func GoNamed(name string, fn func()) *NamedGoroutine {
	g := &NamedGoroutine{Name: name, done: make(chan struct{})}
	started := NewSemaphore(0)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(g.done)
		started.Notify()
		fn()
	}()
	started.Wait()
	return g
}

// Join blocks until fn has returned.
func (g *NamedGoroutine) Join() { <-g.done }

// scopedMutex wraps sync.Mutex with a Lock that returns an unlock thunk,
// for the defer-scoped-lock idiom the original's RAII lock guards express.
type scopedMutex struct {
	mu sync.Mutex
}

// Lock acquires the mutex and returns a function that releases it,
// intended to be deferred: `defer m.Lock()()`.
func (m *scopedMutex) Lock() func() {
	m.mu.Lock()
	return m.mu.Unlock
}
