package http

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/flate"
)

// DeflateLevel is the compression level used for response bodies.
const DeflateLevel = 8

var deflaters = sync.Pool{
	New: func() any {
		w, _ := flate.NewWriter(nil, DeflateLevel)
		return w
	},
}

// Deflate compresses body as a raw deflate stream.
func Deflate(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(body)/2 + 64)

	w := deflaters.Get().(*flate.Writer)
	defer deflaters.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func alreadyEncoded(h *Headers) bool {
	v, ok := h.Get(HeaderContentEncoding)
	if !ok {
		return false
	}
	switch v {
	case "deflate", "gzip":
		return true
	}
	return false
}
