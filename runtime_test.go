//go:build linux

package fiberio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRuntime_NewRuntimeStartsAndCloses(t *testing.T) {
	rt, err := NewRuntime(WithWorkers(2))
	require.NoError(t, err)
	defer rt.Close()

	done := make(chan struct{})
	rt.Go(func(f *Fiber) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("fiber scheduled via Runtime.Go never ran")
	}
}

func TestRuntime_RecvAndEchoOverAUnixSocketPair(t *testing.T) {
	rt, err := NewRuntime(WithWorkers(2), WithDefaultReadTimeout(time.Second))
	require.NoError(t, err)
	defer rt.Close()

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	client, server := fds[0], fds[1]
	defer unix.Close(client)

	done := make(chan struct{})
	var echoed []byte
	rt.Go(func(f *Fiber) {
		buf := make([]byte, 32)
		n, err := rt.IOManager().AsyncRecv(f, server, buf)
		require.NoError(t, err)
		_, err = rt.IOManager().AsyncSend(f, server, buf[:n])
		require.NoError(t, err)
		echoed = buf[:n]
		close(done)
	})

	_, err = unix.Write(client, []byte("ping"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("echo fiber never completed")
	}
	require.Equal(t, "ping", string(echoed))

	reply := make([]byte, 32)
	n, err := unix.Read(client, reply)
	require.NoError(t, err)
	require.Equal(t, "ping", string(reply[:n]))
}

func TestRuntime_FiberStackSizeHintPropagatesFromOptions(t *testing.T) {
	rt, err := NewRuntime(WithFiberStackSize(2 << 20))
	require.NoError(t, err)
	defer rt.Close()

	require.Equal(t, 2<<20, rt.io.fiberStackSizeHint)
}

func TestRuntime_DiagnosticsAccessor(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	d := rt.Diagnostics()
	require.Equal(t, 0, d.LiveFibers)
}

func TestRuntime_DumpMatchesDiagnosticsDump(t *testing.T) {
	rt, err := NewRuntime()
	require.NoError(t, err)
	defer rt.Close()

	out, err := rt.Dump()
	require.NoError(t, err)
	require.Contains(t, string(out), "pending_io_events")
}
