package fiberio

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Direction distinguishes the read and write interest a fiber can park on
// for a single file descriptor.
type Direction uint8

const (
	DirectionRead Direction = iota
	DirectionWrite
)

func (d Direction) String() string {
	switch d {
	case DirectionRead:
		return "read"
	case DirectionWrite:
		return "write"
	default:
		return "unknown"
	}
}

func (d Direction) event() IOEvents {
	if d == DirectionWrite {
		return EventWrite
	}
	return EventRead
}

// continuation is what AddEvent parks against a direction: a fiber to
// resume, together with the function to run on its behalf once the OS
// reports readiness (or the wait is cancelled/times out).
type continuation struct {
	fiber    *Fiber
	callback func(events IOEvents, err error)
}

// FdContext tracks everything the runtime needs to know about one open
// file descriptor: which directions are currently parked, and whether the
// original caller asked for blocking or non-blocking semantics.
//
// userNonblock is a slot for the caller's requested blocking mode, kept
// apart from the OS-level mode: once a fd is registered with this runtime,
// it is unconditionally put into non-blocking mode at the OS level (epoll
// requires it), and Async* calls block only the calling fiber, never the OS
// thread. No operation in this package sets or reads userNonblock; it stays
// false.
type FdContext struct {
	mu            sync.Mutex
	registered    bool
	userNonblock  bool
	readTimeoutMs int
	events        [2]*continuation // indexed by Direction
}

// FdTable is a growable table of FdContext, indexed directly by file
// descriptor. It replaces a fixed-size array: a process that opens more
// fds than the table's current capacity grows it to 1.5 times the requested
// fd rather than refusing registration.
type FdTable struct {
	mu    sync.RWMutex
	slots []*FdContext
}

// NewFdTable creates an FdTable with room for an initial batch of
// low-numbered fds, grown on demand thereafter.
func NewFdTable() *FdTable {
	return &FdTable{slots: make([]*FdContext, 256)}
}

// ensure grows the table, if necessary, so that index fd is valid; a grown
// table has ceil(1.5*fd) slots. The growth check is
// size <= fd (not size < fd), since a table of size N holds valid indices
//0..N-1, and accessing index N itself is exactly the boundary a too-loose
// comparison fails to grow for.
func (t *FdTable) ensure(fd int) {
	t.mu.RLock()
	size := len(t.slots)
	t.mu.RUnlock()
	if size > fd {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	size = len(t.slots)
	if size > fd {
		return
	}
	newSize := fd + (fd+1)/2 // ceil(1.5*fd)
	if newSize <= fd {
		newSize = fd + 1
	}
	grown := make([]*FdContext, newSize)
	copy(grown, t.slots)
	t.slots = grown
}

// get returns the FdContext for fd, allocating a new one on first use.
func (t *FdTable) get(fd int) *FdContext {
	t.ensure(fd)

	t.mu.RLock()
	ctx := t.slots[fd]
	t.mu.RUnlock()
	if ctx != nil {
		return ctx
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.slots[fd] == nil {
		t.slots[fd] = &FdContext{}
	}
	return t.slots[fd]
}

// lookup returns the FdContext for fd without allocating one, for callers
// that only want to inspect an already-registered fd.
func (t *FdTable) lookup(fd int) (*FdContext, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if fd < 0 || fd >= len(t.slots) || t.slots[fd] == nil {
		return nil, false
	}
	return t.slots[fd], true
}

// release drops the table's reference to fd's context, called once the fd
// is closed so a later open() that recycles the same fd number starts
// clean.
func (t *FdTable) release(fd int) {
	t.mu.RLock()
	inRange := fd >= 0 && fd < len(t.slots)
	t.mu.RUnlock()
	if !inRange {
		return
	}
	t.mu.Lock()
	t.slots[fd] = nil
	t.mu.Unlock()
}

// RegisteredFDs returns the sorted list of file descriptors currently
// holding a table entry, for diagnostics dumps that want to name which
// fds are live rather than just how many.
func (t *FdTable) RegisteredFDs() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []int
	for fd, ctx := range t.slots {
		if ctx != nil {
			out = append(out, fd)
		}
	}
	slices.Sort(out)
	return out
}

// pendingCount returns the number of fd/direction pairs with a parked
// continuation, for Diagnostics snapshots.
func (t *FdTable) pendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, ctx := range t.slots {
		if ctx == nil {
			continue
		}
		ctx.mu.Lock()
		for _, c := range ctx.events {
			if c != nil {
				n++
			}
		}
		ctx.mu.Unlock()
	}
	return n
}
