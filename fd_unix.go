//go:build linux

package fiberio

import (
	"golang.org/x/sys/unix"
)

// closeFD closes a file descriptor.
func closeFD(fd int) error {
	return unix.Close(fd)
}

// readFD reads from a file descriptor, in the manner of a raw read(2):
// non-blocking, returning unix.EAGAIN when no data is currently available.
func readFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// writeFD writes to a file descriptor, in the manner of a raw write(2).
func writeFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// setNonblock puts fd into non-blocking mode at the OS level, required
// before it can be registered with epoll.
func setNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// readvFD reads into multiple buffers via a single readv(2) call.
func readvFD(fd int, iovs [][]byte) (int, error) {
	return unix.Readv(fd, iovs)
}

// writevFD writes multiple buffers via a single writev(2) call.
func writevFD(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}
