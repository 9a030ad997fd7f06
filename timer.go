package fiberio

import (
	"container/heap"
	"sync"
	"time"
)

// Timer is a handle to a registered timer. Cancel, Refresh, and Reset
// operate on the live entry in the owning TimerManager's heap, identified
// by the timer's monotonic sequence number rather than by its address,
// since a public Go API should not lean on pointer identity for ordering.
type Timer struct {
	manager  *TimerManager
	seq      uint64
	deadline time.Time
	period   time.Duration
	cb       func()
	recur    bool
	cancelled bool
}

// Cancel removes the timer. Returns false if it had already fired (a
// one-shot) or been cancelled.
func (t *Timer) Cancel() bool {
	return t.manager.cancel(t)
}

// Refresh resets the timer's deadline to now+period, without changing its
// period. Returns false if the timer is not currently registered.
func (t *Timer) Refresh() bool {
	return t.manager.refresh(t)
}

// Reset changes the timer's period and recomputes its deadline as
// start+period, where start is now if fromNow is true, or the timer's
// previous start (old deadline minus old period) if fromNow is false.
// Returns false if the timer is not currently registered.
func (t *Timer) Reset(period time.Duration, fromNow bool) bool {
	return t.manager.reset(t, period, fromNow)
}

// timerHeapEntry is the container/heap element: deadline ascending, tied
// by insertion sequence ascending (a stand-in for the original's
// pointer-identity tie-break).
type timerHeapEntry struct {
	timer *Timer
	index int
}

type timerHeap []*timerHeapEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if !h[i].timer.deadline.Equal(h[j].timer.deadline) {
		return h[i].timer.deadline.Before(h[j].timer.deadline)
	}
	return h[i].timer.seq < h[j].timer.seq
}
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerHeapEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// TimerManager is an ordered set of pending timers, keyed by (deadline
// ascending, insertion sequence ascending). A clock rollback of at least
// clockRollbackThreshold causes every pending timer to be treated as
// expired exactly once, mirroring the original's detectClockRollover.
type TimerManager struct {
	mu                     sync.Mutex
	heap                   timerHeap
	bySeq                  map[uint64]*timerHeapEntry
	nextSeq                uint64
	previousNow            time.Time
	clockRollbackThreshold time.Duration
	now                    func() time.Time
}

// NewTimerManager creates an empty TimerManager.
func NewTimerManager(clockRollbackThreshold time.Duration) *TimerManager {
	return &TimerManager{
		bySeq:                  make(map[uint64]*timerHeapEntry),
		previousNow:            time.Now(),
		clockRollbackThreshold: clockRollbackThreshold,
		now:                    time.Now,
	}
}

// AddTimer registers a one-shot or recurring timer firing every period
// starting period from now.
func (m *TimerManager) AddTimer(period time.Duration, cb func(), recurring bool) *Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(period, cb, recurring)
}

// AddConditionalTimer registers a timer that only invokes cb if cond()
// still returns true at expiry, modeling the original's weak-pointer
// condition (a fiber or resource that may have already gone away).
func (m *TimerManager) AddConditionalTimer(period time.Duration, cb func(), cond func() bool, recurring bool) *Timer {
	wrapped := func() {
		if cond() {
			cb()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLocked(period, wrapped, recurring)
}

func (m *TimerManager) addLocked(period time.Duration, cb func(), recurring bool) *Timer {
	m.nextSeq++
	t := &Timer{
		manager:  m,
		seq:      m.nextSeq,
		deadline: m.now().Add(period),
		period:   period,
		cb:       cb,
		recur:    recurring,
	}
	e := &timerHeapEntry{timer: t}
	heap.Push(&m.heap, e)
	m.bySeq[t.seq] = e
	return t
}

func (m *TimerManager) cancel(t *Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bySeq[t.seq]
	if !ok {
		return false
	}
	heap.Remove(&m.heap, e.index)
	delete(m.bySeq, t.seq)
	t.cancelled = true
	return true
}

func (m *TimerManager) refresh(t *Timer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bySeq[t.seq]
	if !ok {
		return false
	}
	heap.Remove(&m.heap, e.index)
	t.deadline = m.now().Add(t.period)
	heap.Push(&m.heap, e)
	return true
}

func (m *TimerManager) reset(t *Timer, period time.Duration, fromNow bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.bySeq[t.seq]
	if !ok {
		return false
	}
	heap.Remove(&m.heap, e.index)
	var start time.Time
	if fromNow {
		start = m.now()
	} else {
		start = t.deadline.Add(-t.period)
	}
	t.period = period
	t.deadline = start.Add(period)
	heap.Push(&m.heap, e)
	return true
}

// NextDeadline returns the time of the earliest pending timer and true, or
// the zero Time and false if no timers are pending.
func (m *TimerManager) NextDeadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heap) == 0 {
		return time.Time{}, false
	}
	return m.heap[0].timer.deadline, true
}

// NextTimeoutMs returns how many milliseconds until the earliest pending
// timer, 0 if one is already due, or -1 if there are no pending timers.
func (m *TimerManager) NextTimeoutMs() int {
	deadline, ok := m.NextDeadline()
	if !ok {
		return -1
	}
	d := deadline.Sub(m.now())
	if d <= 0 {
		return 0
	}
	if d < time.Millisecond {
		return 1
	}
	return int(d.Milliseconds())
}

// Pending returns the number of timers currently registered.
func (m *TimerManager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heap)
}

// CancelAll removes every pending timer without invoking any callback,
// for use when the owning reactor is shutting down.
func (m *TimerManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.heap {
		e.timer.cancelled = true
		e.timer.cb = nil
		e.index = -1
	}
	m.heap = m.heap[:0]
	m.bySeq = make(map[uint64]*timerHeapEntry)
}

// DrainExpired removes and returns the callbacks of every timer due to
// fire at or before now, re-registering recurring timers for their next
// deadline. A backward clock jump of at least clockRollbackThreshold
// causes every pending timer to be treated as due, exactly once.
func (m *TimerManager) DrainExpired() []func() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.heap) == 0 {
		m.previousNow = now
		return nil
	}

	rollback := m.clockRollbackThreshold > 0 &&
		now.Before(m.previousNow) &&
		m.previousNow.Sub(now) >= m.clockRollbackThreshold
	m.previousNow = now

	if !rollback && m.heap[0].timer.deadline.After(now) {
		return nil
	}

	var cbs []func()
	var recurring []*timerHeapEntry
	for len(m.heap) > 0 {
		e := m.heap[0]
		if !rollback && e.timer.deadline.After(now) {
			break
		}
		heap.Pop(&m.heap)
		delete(m.bySeq, e.timer.seq)
		cbs = append(cbs, e.timer.cb)
		if e.timer.recur {
			recurring = append(recurring, e)
		} else {
			e.timer.cb = nil
		}
	}
	// Recurring timers are re-registered only after the drain, so each one
	// fires at most once per call (even under rollback or a period <= 0).
	for _, e := range recurring {
		e.timer.deadline = now.Add(e.timer.period)
		heap.Push(&m.heap, e)
		m.bySeq[e.timer.seq] = e
	}
	return cbs
}
