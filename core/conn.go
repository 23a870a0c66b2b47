package core

import (
	"bufio"
	"errors"
	"io"
)

// bufferedPeek waits for the next byte through the connection's reader.
// The byte stays buffered for the next parse.
func bufferedPeek(br *bufio.Reader) (bool, error) {
	_, err := br.Peek(1)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, io.EOF):
		return false, nil
	}
	return false, err
}
