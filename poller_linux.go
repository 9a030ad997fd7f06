//go:build linux

package fiberio

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// IOEvents is a bitmask of readiness conditions reported by the poller.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

// eventsToEpoll always sets EPOLLET: every registration is edge-triggered,
// per the edge-triggered policy (section 4.5) — callers must loop their
// Async* primitive until EAGAIN rather than re-arming level-triggered
// interest.
func eventsToEpoll(events IOEvents) uint32 {
	e := uint32(unix.EPOLLET)
	if events&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}

// polledEvent is one readiness notification returned from a Wait call.
type polledEvent struct {
	FD     int
	Events IOEvents
}

// FastPoller is a thin wrapper around a single epoll instance. It holds no
// per-fd continuation state of its own — that lives in the IOManager's
// FdTable — so Wait need not take any lock of its own beyond what the
// kernel call requires.
type FastPoller struct { // betteralign:ignore
	epfd     int32
	eventBuf [256]unix.EpollEvent
	closed   atomic.Bool
}

// Init creates the underlying epoll instance.
func (p *FastPoller) Init() error {
	if p.closed.Load() {
		return ErrClosed
	}
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return &OSError{FD: -1, Op: "epoll_create1", Err: err}
	}
	p.epfd = int32(epfd)
	return nil
}

// Close closes the epoll instance.
func (p *FastPoller) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(int(p.epfd))
}

// Add registers fd for the given events.
func (p *FastPoller) Add(fd int, events IOEvents) error {
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return &OSError{FD: fd, Op: "epoll_ctl(ADD)", Err: err}
	}
	return nil
}

// Modify updates the events monitored for fd.
func (p *FastPoller) Modify(fd int, events IOEvents) error {
	ev := &unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
	if err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return &OSError{FD: fd, Op: "epoll_ctl(MOD)", Err: err}
	}
	return nil
}

// Remove deregisters fd. ENOENT is treated as success: closing an fd
// implicitly drops it from the epoll set, so a subsequent explicit remove
// racing that close is not an error.
func (p *FastPoller) Remove(fd int) error {
	err := unix.EpollCtl(int(p.epfd), unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return &OSError{FD: fd, Op: "epoll_ctl(DEL)", Err: err}
	}
	return nil
}

// Wait blocks for up to timeoutMs milliseconds (negative: forever) and
// appends ready events to dst, returning the extended slice.
func (p *FastPoller) Wait(timeoutMs int, dst []polledEvent) ([]polledEvent, error) {
	if p.closed.Load() {
		return dst, ErrClosed
	}
	n, err := unix.EpollWait(int(p.epfd), p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, &OSError{FD: -1, Op: "epoll_wait", Err: err}
	}
	for i := 0; i < n; i++ {
		dst = append(dst, polledEvent{
			FD:     int(p.eventBuf[i].Fd),
			Events: epollToEvents(p.eventBuf[i].Events),
		})
	}
	return dst, nil
}
