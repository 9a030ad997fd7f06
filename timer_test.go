package fiberio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerManager_DrainExpiredFiresDueTimers(t *testing.T) {
	m := NewTimerManager(0)

	var fired bool
	m.AddTimer(-time.Millisecond, func() { fired = true }, false)

	cbs := m.DrainExpired()
	require.Len(t, cbs, 1)
	cbs[0]()
	require.True(t, fired)
	require.Equal(t, 0, m.Pending())
}

func TestTimerManager_RecurringTimerReschedulesItself(t *testing.T) {
	m := NewTimerManager(0)
	now := time.Now()
	m.now = func() time.Time { return now }

	var fires int
	m.AddTimer(time.Millisecond, func() { fires++ }, true)

	m.now = func() time.Time { return now.Add(time.Millisecond) }
	cbs := m.DrainExpired()
	require.Len(t, cbs, 1)
	cbs[0]()
	require.Equal(t, 1, m.Pending(), "recurring timer should re-register itself")

	// Not due yet: its next deadline is now+period, in the future.
	cbs = m.DrainExpired()
	require.Empty(t, cbs)
}

func TestTimerManager_CancelPreventsFiring(t *testing.T) {
	m := NewTimerManager(0)

	timer := m.AddTimer(-time.Millisecond, func() { t.Fatal("cancelled timer fired") }, false)
	require.True(t, timer.Cancel())
	require.False(t, timer.Cancel(), "cancelling twice should report no-op")

	cbs := m.DrainExpired()
	require.Empty(t, cbs)
}

func TestTimerManager_OrderingIsDeadlineThenSequence(t *testing.T) {
	m := NewTimerManager(0)
	now := time.Now()
	m.now = func() time.Time { return now }

	var order []int
	m.AddTimer(10*time.Millisecond, func() { order = append(order, 1) }, false)
	m.AddTimer(10*time.Millisecond, func() { order = append(order, 2) }, false)
	m.AddTimer(5*time.Millisecond, func() { order = append(order, 3) }, false)

	m.now = func() time.Time { return now.Add(time.Hour) }
	for _, cb := range m.DrainExpired() {
		cb()
	}

	require.Equal(t, []int{3, 1, 2}, order)
}

func TestTimerManager_ConditionalTimerSkipsWhenConditionFalse(t *testing.T) {
	m := NewTimerManager(0)

	var ran bool
	cond := false
	m.AddConditionalTimer(-time.Millisecond, func() { ran = true }, func() bool { return cond }, false)

	cbs := m.DrainExpired()
	require.Len(t, cbs, 1)
	cbs[0]()
	require.False(t, ran)
}

func TestTimerManager_ClockRollbackExpiresEverythingOnce(t *testing.T) {
	m := NewTimerManager(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	var fired int
	m.AddTimer(time.Hour, func() { fired++ }, false)

	// First call establishes previousNow at `now`.
	require.Empty(t, m.DrainExpired())

	// Jump backwards by more than the rollback threshold.
	m.now = func() time.Time { return now.Add(-2 * time.Minute) }
	cbs := m.DrainExpired()
	require.Len(t, cbs, 1, "rollback should force every pending timer due")
	cbs[0]()
	require.Equal(t, 1, fired)
}

func TestTimerManager_RefreshAndReset(t *testing.T) {
	m := NewTimerManager(0)
	now := time.Now()
	m.now = func() time.Time { return now }

	timer := m.AddTimer(time.Minute, func() {}, false)
	deadline, ok := m.NextDeadline()
	require.True(t, ok)
	require.Equal(t, now.Add(time.Minute), deadline)

	m.now = func() time.Time { return now.Add(30 * time.Second) }
	require.True(t, timer.Refresh())
	deadline, ok = m.NextDeadline()
	require.True(t, ok)
	require.Equal(t, now.Add(30*time.Second).Add(time.Minute), deadline)

	require.True(t, timer.Reset(2*time.Minute, true))
	deadline, ok = m.NextDeadline()
	require.True(t, ok)
	require.Equal(t, now.Add(30*time.Second).Add(2*time.Minute), deadline)
}

func TestTimerManager_NextTimeoutMs(t *testing.T) {
	m := NewTimerManager(0)
	require.Equal(t, -1, m.NextTimeoutMs())

	m.AddTimer(-time.Second, func() {}, false)
	require.Equal(t, 0, m.NextTimeoutMs())
}
