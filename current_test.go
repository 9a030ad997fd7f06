package fiberio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCurrentFiberID_ReturnsFalseOutsideAFiber(t *testing.T) {
	_, ok := CurrentFiberID()
	require.False(t, ok)
}

func TestCurrentScheduler_ReturnsNilOutsideAFiber(t *testing.T) {
	require.Nil(t, CurrentScheduler())
}

func TestCurrentIOManager_ReturnsNilOutsideAFiber(t *testing.T) {
	require.Nil(t, CurrentIOManager())
}

func TestCurrent_ResolveInsideAFiberRunningOnABareScheduler(t *testing.T) {
	sched := NewScheduler(2)
	sched.Start()
	t.Cleanup(sched.Stop)

	done := make(chan struct{})
	var gotID uint64
	var gotOK bool
	var gotSched *Scheduler
	var gotIO *IOManager
	sched.Go(func(f *Fiber) {
		gotID, gotOK = CurrentFiberID()
		gotSched = CurrentScheduler()
		gotIO = CurrentIOManager()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fiber never ran")
	}

	require.True(t, gotOK)
	require.NotZero(t, gotID)
	require.Same(t, sched, gotSched)
	require.Nil(t, gotIO)
}

func TestCurrent_ResolveInsideAFiberOwnedByAnIOManager(t *testing.T) {
	m := newTestIOManager(t)

	done := make(chan struct{})
	var gotIO *IOManager
	var gotSched *Scheduler
	m.Go(func(f *Fiber) {
		gotIO = CurrentIOManager()
		gotSched = CurrentScheduler()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fiber never ran")
	}

	require.Same(t, m, gotIO)
	require.Same(t, m.Scheduler, gotSched)
}

func TestCurrent_RegistryDoesNotLeakEntriesAfterFibersTerminate(t *testing.T) {
	sched := NewScheduler(2)
	sched.Start()
	t.Cleanup(sched.Stop)

	var before int
	currentFiberRegistry.Range(func(_, _ any) bool { before++; return true })

	var fibers []*Fiber
	for i := 0; i < 10; i++ {
		fibers = append(fibers, sched.Go(func(f *Fiber) {}))
	}
	for _, f := range fibers {
		f.Wait()
	}

	require.Eventually(t, func() bool {
		var after int
		currentFiberRegistry.Range(func(_, _ any) bool { after++; return true })
		return after == before
	}, time.Second, time.Millisecond)
}
