package http

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"

	"github.com/searchktools/archive-server/core/pools"
)

// WriteOptions controls how a response is serialised.
type WriteOptions struct {
	// Compress deflates the body unless it already carries a deflate or
	// gzip Content-Encoding.
	Compress bool
	// OmitBody writes the headers only, as for a HEAD request.
	OmitBody bool
}

// WriteResponse serialises res to w.
//
// Content-Length is always computed from the final body, so a
// Content-Length header set by the handler is ignored. Header entries with
// an invalid name or value are skipped. Informational, 204 and 304
// responses are sent without a body or a Content-Length.
func WriteResponse(w io.Writer, res *Response, opts WriteOptions) error {
	body := res.Body
	noBody := bodyless(res.Status)
	if noBody {
		body = nil
	}
	encoded := false
	if opts.Compress && len(body) > 0 && !alreadyEncoded(res.Headers) {
		compressed, err := Deflate(body)
		if err != nil {
			return fmt.Errorf("deflate body: %w", err)
		}
		body, encoded = compressed, true
	}

	buf := pools.AcquireBuffer(256 + 32*res.Headers.Len())
	defer pools.ReleaseBuffer(buf)

	head := appendStatusLine(*buf, res)
	for name, value := range res.Headers.All() {
		if strings.EqualFold(name, HeaderContentLength) {
			continue
		}
		if encoded && strings.EqualFold(name, HeaderContentEncoding) {
			continue
		}
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			continue
		}
		head = appendHeader(head, name, value)
	}
	if encoded {
		head = appendHeader(head, HeaderContentEncoding, "deflate")
	}
	if !noBody {
		head = appendHeader(head, HeaderContentLength, strconv.Itoa(len(body)))
	}
	head = append(head, "\r\n"...)
	*buf = head

	if opts.OmitBody || len(body) == 0 {
		_, err := w.Write(head)
		return err
	}
	bufs := net.Buffers{head, body}
	_, err := bufs.WriteTo(w)
	return err
}

func bodyless(status int) bool {
	return status < StatusOK || status == StatusNoContent || status == StatusNotModified
}

func appendStatusLine(b []byte, res *Response) []byte {
	version := res.Version
	if version == 0 || version == Version09 {
		version = Version10
	}
	b = append(b, version.String()...)
	b = append(b, ' ')
	b = strconv.AppendInt(b, int64(res.Status), 10)
	b = append(b, ' ')
	b = append(b, StatusText(res.Status)...)
	return append(b, "\r\n"...)
}

func appendHeader(b []byte, name, value string) []byte {
	b = append(b, name...)
	b = append(b, ": "...)
	b = append(b, value...)
	return append(b, "\r\n"...)
}
