package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"code.hybscloud.com/atomix"
	"golang.org/x/net/http/httpguts"
)

// Request is one request/response exchange. It is shared between the caller
// and the dispatch task; each side holds a reference and the Request is torn
// down when both have let go. Every mutable field is guarded by mu.
type Request struct {
	ctx  *Context
	seq  int32
	refs atomix.Uint32

	abortCtx context.Context
	abort    context.CancelFunc
	done     chan struct{}

	mu               sync.Mutex
	pending          *pendingRequest
	hasBody          bool
	body             *outboundBody
	version          Version
	status           int
	headers          []HeaderField
	trailers         []HeaderField
	trailersReceived bool
	completed        bool
	err              error
	destroyed        bool
}

// pendingRequest is the builder state consumed by Begin.
type pendingRequest struct {
	method  string
	url     *url.URL
	version Version
	header  http.Header
}

// NewRequest creates a Request identified by seq in this Context's callbacks.
// The request may be created before Build; dispatching it then ends in
// [Error] with [ErrClientNotBuilt].
func (c *Context) NewRequest(seq int32) *Request {
	if c.disposed.Load() {
		panic("client: NewRequest called on a disposed context")
	}

	abortCtx, abort := context.WithCancel(context.Background())
	r := &Request{
		ctx:      c,
		seq:      seq,
		abortCtx: abortCtx,
		abort:    abort,
		done:     make(chan struct{}),
		pending: &pendingRequest{
			method:  http.MethodGet,
			version: HTTP11,
			header:  make(http.Header),
		},
	}
	r.refs.Add(1)

	return r
}

// Seq returns the caller-assigned sequence number.
func (r *Request) Seq() int32 {
	return r.seq
}

// =============================================================================
// Builder

// SetMethod sets the request method. Methods are case sensitive.
func (r *Request) SetMethod(method string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.mustBuild("SetMethod")

	if !httpguts.ValidHeaderFieldName(method) {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
	p.method = method

	return nil
}

// SetURI parses raw as an absolute http or https URL. On failure the
// previously configured state is left untouched.
func (r *Request) SetURI(raw string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.mustBuild("SetURI")

	u, err := url.Parse(raw)
	if err != nil {
		return &URIError{URI: raw, Err: err}
	}
	switch {
	case u.Scheme == "":
		return &URIError{URI: raw, Err: errors.New("missing scheme")}
	case u.Scheme != "http" && u.Scheme != "https":
		return &URIError{URI: raw, Err: fmt.Errorf("unsupported scheme %q", u.Scheme)}
	case u.Host == "":
		return &URIError{URI: raw, Err: errors.New("missing host")}
	}
	p.url = u

	return nil
}

// SetVersion records the preferred protocol version. The transport still
// negotiates the version actually used; read it back with [Request.Version].
func (r *Request) SetVersion(v Version) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.mustBuild("SetVersion")

	p.version = v
}

// SetHeader appends a header field. Repeated names produce repeated fields.
func (r *Request) SetHeader(name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.mustBuild("SetHeader")

	if !httpguts.ValidHeaderFieldName(name) {
		return fmt.Errorf("%w: name %q", ErrInvalidHeader, name)
	}
	if !httpguts.ValidHeaderFieldValue(value) {
		return fmt.Errorf("%w: value for %q", ErrInvalidHeader, name)
	}
	p.header.Add(name, value)

	return nil
}

// SetHasBody decides whether Begin opens an outbound body channel.
func (r *Request) SetHasBody(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBuild("SetHasBody")

	r.hasBody = v
}

// mustBuild returns the pending builder. r.mu must be held.
func (r *Request) mustBuild(op string) *pendingRequest {
	r.mustBeLive(op)
	if r.pending == nil {
		panic(fmt.Sprintf("client: %s called after Begin", op))
	}
	return r.pending
}

// mustBeLive panics on use after Destroy. r.mu must be held.
func (r *Request) mustBeLive(op string) {
	if r.destroyed {
		panic(fmt.Sprintf("client: %s called on a destroyed request", op))
	}
}

// =============================================================================
// Response accessors

// StatusCode returns the response status, or 0 before headers arrive.
func (r *Request) StatusCode() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("StatusCode")

	return r.status
}

// Version returns the protocol version the response was received with.
func (r *Request) Version() Version {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Version")

	return r.version
}

// HeadersCount returns the number of captured response header fields. Each
// value of a repeated name is its own field. Fields are ordered by canonical
// name, not wire order, which net/http does not keep; values of one name keep
// their arrival order.
func (r *Request) HeadersCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("HeadersCount")

	return len(r.headers)
}

// HeaderKey returns the name of the i'th response header field, in the
// order described on [Request.HeadersCount]. It panics when i is out of range.
func (r *Request) HeaderKey(i int) string {
	return r.headerAt("HeaderKey", i).Name
}

// HeaderValue returns the value of the i'th response header field. It panics
// when i is out of range.
func (r *Request) HeaderValue(i int) string {
	return r.headerAt("HeaderValue", i).Value
}

func (r *Request) headerAt(op string, i int) HeaderField {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive(op)

	if i < 0 || i >= len(r.headers) {
		panic(fmt.Sprintf("client: %s index %d out of range [0, %d)", op, i, len(r.headers)))
	}
	return r.headers[i]
}

// Headers returns a copy of the captured response header fields.
func (r *Request) Headers() []HeaderField {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Headers")

	return slices.Clone(r.headers)
}

// TrailersCount returns the number of captured trailer fields.
func (r *Request) TrailersCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("TrailersCount")

	return len(r.trailers)
}

func (r *Request) TrailerKey(i int) string {
	return r.trailerAt("TrailerKey", i).Name
}

func (r *Request) TrailerValue(i int) string {
	return r.trailerAt("TrailerValue", i).Value
}

func (r *Request) trailerAt(op string, i int) HeaderField {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive(op)

	if i < 0 || i >= len(r.trailers) {
		panic(fmt.Sprintf("client: %s index %d out of range [0, %d)", op, i, len(r.trailers)))
	}
	return r.trailers[i]
}

// Trailers returns a copy of the captured trailer fields.
func (r *Request) Trailers() []HeaderField {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Trailers")

	return slices.Clone(r.trailers)
}

// TrailersReceived reports whether the response carried trailers.
func (r *Request) TrailersReceived() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("TrailersReceived")

	return r.trailersReceived
}

// Completed reports whether the terminal callback has returned.
func (r *Request) Completed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Completed")

	return r.completed
}

// Err returns the reason a dispatched request ended with [Error] or
// [Aborted], or nil.
func (r *Request) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("Err")

	return r.err
}

// Done is closed after the terminal callback has returned. It is never
// closed for a request whose Begin failed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// =============================================================================
// Lifetime

// Destroy releases the caller's reference. It is safe while the dispatch
// task is still running; the Request must not be used afterwards.
func (r *Request) Destroy() {
	r.mu.Lock()
	r.mustBeLive("Destroy")
	r.destroyed = true
	r.mu.Unlock()

	r.release()
}

func (r *Request) retain() {
	r.refs.Add(1)
}

// release drops one reference. The last one closes the outbound body and
// releases the abort signal.
func (r *Request) release() {
	if r.refs.Add(^uint32(0)) != 0 {
		return
	}

	r.mu.Lock()
	r.halfCloseLocked()
	r.mu.Unlock()

	r.abort()
}
