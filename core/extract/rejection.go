package extract

import (
	"fmt"

	"github.com/searchktools/archive-server/core/http"
	"github.com/searchktools/archive-server/core/respond"
)

// Source names the part of the request a rejection refers to.
type Source uint8

const (
	SourceHeader Source = iota + 1
	SourceParam
	SourceQuery
)

// MissingError reports a required header, route parameter or query key
// that is absent.
type MissingError struct {
	Source Source
	Key    string
}

func (e *MissingError) Error() string {
	switch e.Source {
	case SourceHeader:
		return fmt.Sprintf("HTTP request header with key `%s` could not be found", e.Key)
	case SourceParam:
		return fmt.Sprintf("HTTP request URL parameters did not contain a value with the key `%s`", e.Key)
	default:
		return fmt.Sprintf("HTTP request URL query did not contain a value with the key `%s`", e.Key)
	}
}

// Respond renders a 400.
func (e *MissingError) Respond() *http.Response {
	return badRequest(e)
}

// ParseError reports a value that is present but does not parse as the
// requested type.
type ParseError struct {
	Source Source
	Key    string
	Err    error
}

func (e *ParseError) Error() string {
	switch e.Source {
	case SourceHeader:
		return fmt.Sprintf("HTTP request header with key `%s` could not be parsed: %v", e.Key, e.Err)
	case SourceParam:
		return fmt.Sprintf("HTTP request URL parameter with key `%s` could not be parsed: %v", e.Key, e.Err)
	default:
		return fmt.Sprintf("HTTP request URL query with key `%s` could not be parsed: %v", e.Key, e.Err)
	}
}

func (e *ParseError) Unwrap() error { return e.Err }

// Respond renders a 400.
func (e *ParseError) Respond() *http.Response {
	return badRequest(e)
}

// MissingQueryError reports a request without a query string.
type MissingQueryError struct{}

func (*MissingQueryError) Error() string {
	return "HTTP request URL did not contain a query"
}

// Respond renders a 400.
func (e *MissingQueryError) Respond() *http.Response {
	return badRequest(e)
}

// BodyError reports a missing or undecodable request body.
type BodyError struct {
	Err error
}

func (e *BodyError) Error() string {
	if e.Err == nil {
		return "HTTP request did not contain a body"
	}
	return fmt.Sprintf("HTTP request body could not be decoded: %v", e.Err)
}

func (e *BodyError) Unwrap() error { return e.Err }

// Respond renders a 400.
func (e *BodyError) Respond() *http.Response {
	return badRequest(e)
}

// MissingDataError reports shared data that was never registered.
type MissingDataError struct {
	Type string
}

func (e *MissingDataError) Error() string {
	return fmt.Sprintf("App data is not configured for %s, to configure use core.Data()", e.Type)
}

// Respond renders a 503; the server is misconfigured, not the request.
func (e *MissingDataError) Respond() *http.Response {
	return respond.Error(http.StatusServiceUnavailable, e.Error()).Respond()
}

func badRequest(err error) *http.Response {
	return respond.Error(http.StatusBadRequest, err.Error()).Respond()
}
