package http

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/http/httpguts"
)

// Default parser limits.
const (
	DefaultMaxHeaderBytes = 8 << 10
	DefaultMaxBodyBytes   = 8 << 20
)

// maxLeadingBlankLines is how many empty lines may precede a request line.
const maxLeadingBlankLines = 1

// Limits bounds how much a single request may consume.
// Zero values select the defaults.
type Limits struct {
	MaxHeaderBytes int
	MaxBodyBytes   int64
}

func (l Limits) withDefaults() Limits {
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return l
}

type parser struct {
	r      *bufio.Reader
	limits Limits
	read   int
}

// Parse reads one request from r. The returned request comes from the pool;
// callers hand it back with ReleaseRequest.
//
// A reader that is already at EOF yields ErrZeroBytesRead.
func Parse(r *bufio.Reader, limits Limits) (*Request, error) {
	p := parser{r: r, limits: limits.withDefaults()}

	req := AcquireRequest()
	if err := p.parse(req); err != nil {
		ReleaseRequest(req)
		return nil, err
	}
	return req, nil
}

func (p *parser) parse(req *Request) error {
	line, err := p.readLine()

	// A client may follow a body with a stray CRLF; skip it.
	blank := 0
	for skipped := 0; err == nil && line == "" && skipped < maxLeadingBlankLines; skipped++ {
		blank = p.read
		line, err = p.readLine()
	}

	if err != nil {
		if errors.Is(err, io.EOF) {
			if p.read == blank {
				return ErrZeroBytesRead
			}
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("reading request line: %w", err)
	}
	if err := parseRequestLine(req, line); err != nil {
		return err
	}

	length, err := p.parseHeaders(req)
	if err != nil {
		return err
	}

	if length == 0 {
		return nil
	}
	if length > p.limits.MaxBodyBytes {
		return fmt.Errorf("%w: %d bytes", ErrBodyTooLarge, length)
	}
	req.Body = make([]byte, length)
	if _, err := io.ReadFull(p.r, req.Body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("reading body: %w", err)
	}
	return nil
}

func parseRequestLine(req *Request, line string) error {
	method, rest, _ := strings.Cut(line, " ")
	if method == "" {
		return ErrMissingMethod
	}
	m, ok := ParseMethod(method)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	uri, rest, _ := strings.Cut(rest, " ")
	if uri == "" {
		return ErrMissingURI
	}

	version := strings.TrimSpace(rest)
	if version == "" {
		return ErrMissingVersion
	}
	v, ok := ParseVersion(version)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}

	req.Method = m
	req.Resource = ParseResource(uri)
	req.Version = v
	return nil
}

// parseHeaders reads header lines up to the blank line and returns the
// declared body length. Framing headers are interpreted even when the header
// block is full and the entry itself is dropped.
func (p *parser) parseHeaders(req *Request) (int64, error) {
	var (
		length    int64
		hasLength bool
	)
	for {
		line, err := p.readLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return 0, fmt.Errorf("reading headers: %w", err)
		}
		if line == "" {
			return length, nil
		}

		name, value, found := strings.Cut(line, ":")
		if !found {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHeader, line)
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		if !utf8.ValidString(name) || !utf8.ValidString(value) {
			return 0, ErrHeaderDecode
		}
		if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidHeader, name)
		}

		switch {
		case strings.EqualFold(name, HeaderContentLength):
			if !isDigits(value) {
				return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, value)
			}
			n, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("%w: %q", ErrInvalidContentLength, value)
			}
			if hasLength && n != length {
				return 0, fmt.Errorf("%w: conflicting values", ErrInvalidContentLength)
			}
			length, hasLength = n, true
		case strings.EqualFold(name, HeaderTransferEncoding):
			if !strings.EqualFold(value, "identity") {
				return 0, fmt.Errorf("%w: %q", ErrUnsupportedTransferEncoding, value)
			}
		}

		req.Headers.Add(name, value)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// readLine returns the next line without its line terminator.
// The total header size is capped by MaxHeaderBytes.
func (p *parser) readLine() (string, error) {
	var line []byte
	for {
		chunk, err := p.r.ReadSlice('\n')
		p.read += len(chunk)
		if p.read > p.limits.MaxHeaderBytes {
			return "", ErrHeaderTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", err
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return string(line), nil
}
