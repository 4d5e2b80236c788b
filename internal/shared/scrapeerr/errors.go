// Package scrapeerr classifies fetch and extraction failures. Every error
// carries the HTTP status a web surface should answer with and a detail
// string that embeds the offending URL.
package scrapeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a failure class.
type Kind int

const (
	// NotFound: redirect loop, or a page that failed its validity assertion.
	NotFound Kind = iota + 1
	// UpstreamUnavailable: the connection to the upstream (or relay) could not be made.
	UpstreamUnavailable
	// UpstreamError: any other transport failure.
	UpstreamError
	// ClientError: the upstream answered 4xx.
	ClientError
	// ServerError: the upstream answered 5xx.
	ServerError
	// IndexFault: strict positional access out of range.
	IndexFault
	// ValueConversionFault: extracted text could not be converted (page numbers).
	ValueConversionFault
	// InvalidQuery: the location-path expression did not compile.
	InvalidQuery
)

var kindNames = map[Kind]string{
	NotFound:             "not_found",
	UpstreamUnavailable:  "upstream_unavailable",
	UpstreamError:        "upstream_error",
	ClientError:          "client_error",
	ServerError:          "server_error",
	IndexFault:           "index_fault",
	ValueConversionFault: "value_conversion_fault",
	InvalidQuery:         "invalid_query",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure.
type Error struct {
	Kind   Kind
	Status int
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: NotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// New builds an error of the given kind with its default status.
func New(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Status: defaultStatus(kind), Detail: detail, Cause: cause}
}

func defaultStatus(kind Kind) int {
	switch kind {
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// RedirectLoop is returned when the redirect limit is exceeded.
func RedirectLoop(url string, cause error) *Error {
	return New(NotFound, fmt.Sprintf("Not found for url: %s", url), cause)
}

// Unavailable is returned for connection-level failures.
func Unavailable(url string, cause error) *Error {
	return New(UpstreamUnavailable, fmt.Sprintf("Connection error for url: %s", url), cause)
}

// Transport is returned for any other transport failure; the cause is part of the detail.
func Transport(url string, cause error) *Error {
	return New(UpstreamError, fmt.Sprintf("Error for url: %s. %v", url, cause), cause)
}

// Upstream classifies an HTTP status. It returns nil outside [400,600).
func Upstream(url string, status int, reason string) *Error {
	switch {
	case status >= 400 && status < 500:
		return &Error{
			Kind:   ClientError,
			Status: status,
			Detail: fmt.Sprintf("Client Error. %s for url: %s", reason, url),
		}
	case status >= 500 && status < 600:
		return &Error{
			Kind:   ServerError,
			Status: status,
			Detail: fmt.Sprintf("Server Error. %s for url: %s", reason, url),
		}
	}
	return nil
}

// InvalidPage is the page-validity assertion failure.
func InvalidPage(url string) *Error {
	return New(NotFound, fmt.Sprintf("Invalid request (url: %s)", url), nil)
}

// Index reports an out-of-range strict index.
func Index(expr string, index, length int) *Error {
	return New(IndexFault, fmt.Sprintf("index %d out of range for %d results of %q", index, length, expr), nil)
}

// Conversion reports text that is not the expected number.
func Conversion(text string, cause error) *Error {
	return New(ValueConversionFault, fmt.Sprintf("invalid page number %q", text), cause)
}

// Query reports a malformed location-path expression.
func Query(expr string, cause error) *Error {
	return New(InvalidQuery, fmt.Sprintf("invalid xpath %q: %v", expr, cause), cause)
}

// KindOf returns the kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// StatusOf maps any error to the status a web surface should return.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) && e.Status != 0 {
		return e.Status
	}
	return http.StatusInternalServerError
}
