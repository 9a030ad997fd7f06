//go:build linux

package fiberio

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestIOManager(t *testing.T) *IOManager {
	t.Helper()
	m, err := NewIOManager(2, DefaultClockRollbackThreshold,
		WithIOManagerIdleTimeout(50*time.Millisecond),
		WithIOManagerReadTimeout(200*time.Millisecond),
	)
	require.NoError(t, err)
	m.Start()
	t.Cleanup(m.Stop)
	return m
}

func mustPipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestIOManager_AsyncReadReturnsAvailableData(t *testing.T) {
	m := newTestIOManager(t)
	r, w := mustPipe(t)

	done := make(chan struct{})
	var got []byte
	var readErr error
	m.Go(func(f *Fiber) {
		buf := make([]byte, 16)
		n, err := m.AsyncRead(f, r, buf)
		got = buf[:n]
		readErr = err
		close(done)
	})

	time.Sleep(10 * time.Millisecond)
	_, err := unix.Write(w, []byte("hello"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AsyncRead never completed")
	}
	require.NoError(t, readErr)
	require.Equal(t, "hello", string(got))
}

func TestIOManager_AsyncReadTimesOut(t *testing.T) {
	m := newTestIOManager(t)
	r, _ := mustPipe(t)

	done := make(chan struct{})
	var readErr error
	m.Go(func(f *Fiber) {
		buf := make([]byte, 16)
		_, err := m.AsyncRead(f, r, buf)
		readErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("AsyncRead never timed out")
	}

	var timeoutErr *TimeoutError
	require.ErrorAs(t, readErr, &timeoutErr)
	require.ErrorIs(t, readErr, ErrTimeout)
}

func TestIOManager_SleepParksWithoutBlockingWorker(t *testing.T) {
	m := newTestIOManager(t)

	start := time.Now()
	done := make(chan struct{})
	m.Go(func(f *Fiber) {
		m.Sleep(f, 30*time.Millisecond)
		close(done)
	})

	// A second fiber must still be able to run concurrently.
	otherRan := make(chan struct{})
	m.Go(func(f *Fiber) {
		close(otherRan)
	})

	select {
	case <-otherRan:
	case <-time.After(time.Second):
		t.Fatal("second fiber starved while the first slept")
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleeping fiber never resumed")
	}
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestIOManager_CancelAllResumesParkedFiberWithCancelledError(t *testing.T) {
	m := newTestIOManager(t)
	r, _ := mustPipe(t)

	done := make(chan struct{})
	var readErr error
	m.Go(func(f *Fiber) {
		buf := make([]byte, 16)
		_, err := m.AsyncRead(f, r, buf)
		readErr = err
		close(done)
	})

	time.Sleep(10 * time.Millisecond)
	m.CancelAll(r)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cancelled fiber never resumed")
	}
	var cancelErr *CancelledError
	require.ErrorAs(t, readErr, &cancelErr)
	require.ErrorIs(t, readErr, ErrCancelled)
}

func TestIOManager_StopResumesParkedFiberAndCancelsPendingTimer(t *testing.T) {
	m, err := NewIOManager(2, DefaultClockRollbackThreshold,
		WithIOManagerIdleTimeout(50*time.Millisecond),
		WithIOManagerReadTimeout(time.Minute),
	)
	require.NoError(t, err)
	m.Start()

	r, _ := mustPipe(t)
	t.Cleanup(func() {
		_ = unix.Close(r)
	})

	readDone := make(chan struct{})
	var readErr error
	m.Go(func(f *Fiber) {
		buf := make([]byte, 16)
		_, err := m.AsyncRead(f, r, buf)
		readErr = err
		close(readDone)
	})

	var timerFired atomic.Bool
	m.AddTimer(time.Minute, func() { timerFired.Store(true) }, false)

	// Two pending timers: the one above, plus the read's own timeout timer.
	require.Eventually(t, func() bool {
		return m.Diagnostics().PendingIOEvents == 1 && m.timers.Pending() == 2
	}, time.Second, time.Millisecond)

	m.Stop()

	select {
	case <-readDone:
	case <-time.After(time.Second):
		t.Fatal("parked fiber never resumed after Stop")
	}
	var cancelErr *CancelledError
	require.ErrorAs(t, readErr, &cancelErr)
	require.False(t, timerFired.Load())
	require.Equal(t, 0, m.timers.Pending())
}

func TestIOManager_DiagnosticsReflectLiveFibersAndPending(t *testing.T) {
	m := newTestIOManager(t)
	r, _ := mustPipe(t)

	m.Go(func(f *Fiber) {
		buf := make([]byte, 16)
		_, _ = m.AsyncRead(f, r, buf)
	})

	require.Eventually(t, func() bool {
		return m.Diagnostics().PendingIOEvents == 1
	}, time.Second, time.Millisecond)

	diag := m.Diagnostics()
	require.Equal(t, 1, diag.LiveFibers)
	out, err := diag.Dump()
	require.NoError(t, err)
	require.Contains(t, string(out), "pending_io_events")
}
