//go:build unix

package core

import (
	"bufio"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// peekConn reports whether the peer sent more bytes (true) or closed the
// connection (false). It peeks the socket with MSG_PEEK so nothing is
// consumed, parking on the runtime poller until the socket is readable or
// the read deadline passes.
func peekConn(c net.Conn, br *bufio.Reader) (bool, error) {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return bufferedPeek(br)
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return bufferedPeek(br)
	}

	var (
		buf  [1]byte
		n    int
		perr error
	)
	err = rc.Read(func(fd uintptr) bool {
		for {
			n, _, perr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK)
			if perr != unix.EINTR {
				break
			}
		}
		return perr != unix.EAGAIN
	})
	if err != nil {
		return false, err
	}
	if perr != nil {
		return false, perr
	}
	return n > 0, nil
}

// inputPending reports whether bytes are already waiting on c, without
// blocking and regardless of its read deadline.
func inputPending(c net.Conn) bool {
	sc, ok := c.(syscall.Conn)
	if !ok {
		return false
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	var (
		buf  [1]byte
		n    int
		perr error
	)
	if err := rc.Control(func(fd uintptr) {
		n, _, perr = unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
	}); err != nil {
		return false
	}
	return perr == nil && n > 0
}
