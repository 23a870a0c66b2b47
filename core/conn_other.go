//go:build !unix

package core

import (
	"bufio"
	"net"
)

func peekConn(_ net.Conn, br *bufio.Reader) (bool, error) {
	return bufferedPeek(br)
}

func inputPending(net.Conn) bool {
	return false
}
