//go:build linux

package fiberio

import (
	"golang.org/x/sys/unix"
)

// wakeupFD wraps an eventfd used to break the IOManager's reactor goroutine
// out of epoll_wait, signalled by AddTimer/AddConditionalTimer and Stop.
type wakeupFD struct {
	fd int
}

// newWakeupFD creates a non-blocking eventfd with an initial counter of 0.
func newWakeupFD() (*wakeupFD, error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return nil, &OSError{FD: -1, Op: "eventfd", Err: err}
	}
	return &wakeupFD{fd: fd}, nil
}

// FD returns the underlying file descriptor, for registration with the poller.
func (w *wakeupFD) FD() int { return w.fd }

// Signal increments the eventfd's counter by one, waking any epoll_wait
// blocked on it. Repeated signals before the reader drains coalesce into a
// single wakeup, which is exactly what tickle wants: at-least-one wakeup,
// not one-wakeup-per-signal.
func (w *wakeupFD) Signal() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(w.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return &OSError{FD: w.fd, Op: "eventfd write", Err: err}
	}
	return nil
}

// Drain resets the eventfd's counter to 0 after a wakeup has been observed.
func (w *wakeupFD) Drain() error {
	var buf [8]byte
	_, err := unix.Read(w.fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return &OSError{FD: w.fd, Op: "eventfd read", Err: err}
	}
	return nil
}

// Close releases the eventfd.
func (w *wakeupFD) Close() error {
	return unix.Close(w.fd)
}
