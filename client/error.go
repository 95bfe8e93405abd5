package client

import (
	"errors"
	"fmt"

	"golang.org/x/net/http2"
)

var (
	// ErrClientNotBuilt is reported when a request is dispatched on a Context
	// whose Build has not been called.
	ErrClientNotBuilt = errors.New("the client has not been built, build it before sending requests")
	// ErrAlreadyBuilt is returned by a second call to [Context.Build].
	ErrAlreadyBuilt = errors.New("client already built")
	// ErrInvalidURI is wrapped by [URIError].
	ErrInvalidURI = errors.New("invalid uri")
	// ErrInvalidHeader is returned by [Request.SetHeader] for a malformed name or value.
	ErrInvalidHeader = errors.New("invalid header")
	// ErrInvalidMethod is returned by [Request.SetMethod] for a malformed method token.
	ErrInvalidMethod = errors.New("invalid method")
	// ErrAborted is the error recorded on a request that ended with [Aborted].
	ErrAborted = errors.New("request aborted")
	// ErrExecutorClosed is returned when the executor no longer accepts dispatch tasks.
	ErrExecutorClosed = errors.New("executor closed")
)

// URIError is returned when a request URI cannot be parsed or is not absolute.
type URIError struct {
	URI string
	Err error
}

func (e *URIError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrInvalidURI, e.URI, e.Err)
}

func (e *URIError) Unwrap() []error {
	return []error{ErrInvalidURI, e.Err}
}

// DispatchError records why a dispatched request ended with [Error].
// Code carries the protocol error code (for example an HTTP/2 RST_STREAM
// reason) when the transport reported one, and 0 otherwise.
type DispatchError struct {
	Code uint32
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%v (protocol error code %d)", e.Err, e.Code)
	}
	return e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// protocolErrorCode extracts the numeric reset reason from a transport error.
func protocolErrorCode(err error) uint32 {
	var se http2.StreamError
	if errors.As(err, &se) {
		return uint32(se.Code)
	}

	var ge http2.GoAwayError
	if errors.As(err, &ge) {
		return uint32(ge.ErrCode)
	}

	var ce http2.ConnectionError
	if errors.As(err, &ce) {
		return uint32(ce)
	}

	return 0
}
