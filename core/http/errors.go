package http

import (
	"errors"
	"io"
)

// Parse errors. Each is wrapped with context by the parser; test with
// errors.Is.
var (
	ErrZeroBytesRead               = errors.New("zero bytes read")
	ErrMissingMethod               = errors.New("request line is missing the method")
	ErrMissingURI                  = errors.New("request line is missing the uri")
	ErrMissingVersion              = errors.New("request line is missing the version")
	ErrUnknownMethod               = errors.New("unknown request method")
	ErrUnknownVersion              = errors.New("unknown http version")
	ErrInvalidHeader               = errors.New("malformed header line")
	ErrHeaderDecode                = errors.New("header is not valid utf-8")
	ErrHeaderTooLarge              = errors.New("request header block too large")
	ErrInvalidContentLength        = errors.New("invalid content-length")
	ErrBodyTooLarge                = errors.New("request body too large")
	ErrUnsupportedTransferEncoding = errors.New("transfer-encoding not implemented")
)

// StatusForError maps a parse failure to the status sent back to the client.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, ErrMissingMethod),
		errors.Is(err, ErrMissingURI),
		errors.Is(err, ErrMissingVersion),
		errors.Is(err, ErrUnknownMethod),
		errors.Is(err, ErrUnknownVersion),
		errors.Is(err, ErrInvalidHeader),
		errors.Is(err, ErrHeaderDecode),
		errors.Is(err, ErrInvalidContentLength),
		errors.Is(err, io.ErrUnexpectedEOF):
		return StatusBadRequest
	case errors.Is(err, ErrHeaderTooLarge):
		return StatusRequestHeaderFieldsTooLarge
	case errors.Is(err, ErrBodyTooLarge):
		return StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedTransferEncoding):
		return StatusNotImplemented
	}
	return StatusServiceUnavailable
}
