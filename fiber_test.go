package fiberio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFiber_RunsToTermination(t *testing.T) {
	s := NewScheduler(2)
	s.Start()
	defer s.Stop()

	var ran bool
	f := s.Go(func(f *Fiber) {
		ran = true
	})

	outcome := f.Wait()
	require.Equal(t, OutcomeTerminated, outcome.Kind)
	require.Nil(t, outcome.Err)
	require.True(t, ran)
	require.Equal(t, FiberTerm, f.State())
}

func TestFiber_PanicBecomesOutcomePanicked(t *testing.T) {
	s := NewScheduler(1)
	s.Start()
	defer s.Stop()

	f := s.Go(func(f *Fiber) {
		panic("boom")
	})

	outcome := f.Wait()
	require.Equal(t, OutcomePanicked, outcome.Kind)
	require.Equal(t, FiberExcept, f.State())

	var panicErr *FiberPanicError
	require.ErrorAs(t, outcome.Err, &panicErr)
	require.Equal(t, "boom", panicErr.Value)
}

func TestFiber_YieldToHoldParksUntilExplicitlyScheduled(t *testing.T) {
	s := NewScheduler(1)
	s.Start()
	defer s.Stop()

	resumed := make(chan struct{})
	var f *Fiber
	f = s.Go(func(fb *Fiber) {
		fb.YieldToHold()
		close(resumed)
	})

	select {
	case <-resumed:
		t.Fatal("fiber resumed before being rescheduled")
	case <-time.After(20 * time.Millisecond):
	}

	f.Schedule()

	select {
	case <-resumed:
	case <-time.After(time.Second):
		t.Fatal("fiber never resumed after Schedule")
	}
}

func TestFiber_YieldToReadyRoundRobins(t *testing.T) {
	s := NewScheduler(1)
	defer s.Stop()

	var order []int
	done := make(chan struct{})

	s.Go(func(fb *Fiber) {
		order = append(order, 1)
		fb.YieldToReady()
		order = append(order, 3)
		close(done)
	})
	s.Go(func(fb *Fiber) {
		order = append(order, 2)
	})
	// Both fibers are queued before the single worker starts, so the
	// yielding fiber is re-enqueued behind the second one.
	s.Start()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fibers never completed")
	}
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestFiber_ResumeOnNonResumableStatePanics(t *testing.T) {
	s := NewScheduler(1)
	f := newFiber(s, func(fb *Fiber) {})
	f.start()
	f.resume() // drives it to completion (no yield), leaving it FiberTerm

	require.Panics(t, func() {
		f.resume()
	})
}
