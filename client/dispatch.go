package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const readBufferSize = 32 * 1024

// Begin dispatches the request on the Context's executor. state is handed
// back unchanged to every callback. Begin must be called at most once; the
// builder setters panic afterwards.
//
// It returns [ErrExecutorClosed] when the executor no longer accepts work.
// No callback fires in that case.
func (r *Request) Begin(state any) error {
	p, body := r.take()

	r.retain()
	_, err := r.ctx.rt.Spawn(func(ctx context.Context) {
		defer r.release()
		r.dispatch(ctx, p, body, state)
	})
	if err != nil {
		r.mu.Lock()
		r.halfCloseLocked()
		r.mu.Unlock()
		r.release()

		return fmt.Errorf("%w: %w", ErrExecutorClosed, err)
	}

	return nil
}

// take consumes the builder and opens the outbound body if one was requested.
func (r *Request) take() (*pendingRequest, io.ReadCloser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.mustBuild("Begin")
	r.pending = nil

	if !r.hasBody {
		return p, http.NoBody
	}
	r.body = newOutboundBody()

	return p, r.body
}

// Abort signals cancellation. The dispatch task observes it at its next
// suspension point and reports [Aborted]; no headers or data callbacks fire
// after that. Abort never blocks and may be called repeatedly.
func (r *Request) Abort() {
	r.abort()
}

// dispatch drives one exchange to its terminal callback.
func (r *Request) dispatch(execCtx context.Context, p *pendingRequest, body io.ReadCloser, state any) {
	c := r.ctx

	ctx, cancel := context.WithCancel(execCtx)
	defer cancel()
	stop := context.AfterFunc(r.abortCtx, cancel)
	defer stop()
	aborted := func() bool {
		return ctx.Err() != nil || r.abortCtx.Err() != nil
	}

	header := p.header.Clone()
	ctx, span, v := c.startSpan(ctx, r.seq, p.method, header)
	defer span.End()

	c.metrics.dispatched()
	logger := c.logger.With("seq", r.seq, "trace_id", v.TraceID)

	t := task{r: r, state: state, span: span, start: v.Start}
	finish := func(reason CompletionReason, code uint32, err error) {
		logger.Debug("dispatch complete", "reason", reason, "code", code, "elapsed", time.Since(v.Start))
		t.complete(reason, code, err)
	}

	sc := c.sealed.Load()
	if sc == nil {
		body.Close()
		finish(Error, 0, ErrClientNotBuilt)
		return
	}

	req, err := newHTTPRequest(ctx, p, header, body)
	if err != nil {
		finish(Error, 0, err)
		return
	}
	span.SetAttributes(attribute.String("url.full", req.URL.Redacted()))
	logger.Debug("dispatch", "method", req.Method, "url", req.URL.Redacted(), "body", body != http.NoBody)

	if aborted() {
		body.Close()
		finish(Aborted, 0, nil)
		return
	}

	resp, err := sc.hc.Do(req)
	if err != nil {
		if aborted() {
			finish(Aborted, 0, nil)
			return
		}
		code := protocolErrorCode(err)
		logger.Info("dispatch failed", "error", err, "code", code)
		finish(Error, code, err)
		return
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Error("failed to close response body", "error", err)
		}
	}()

	r.mu.Lock()
	r.status = resp.StatusCode
	r.version = versionOf(resp)
	r.headers = flatten(resp.Header)
	r.mu.Unlock()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if aborted() {
		finish(Aborted, 0, nil)
		return
	}
	c.onHeaders(r.seq, state, resp.StatusCode, versionOf(resp))

	buf := make([]byte, readBufferSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if aborted() {
				finish(Aborted, 0, nil)
				return
			}
			c.onData(r.seq, state, buf[:n])
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if aborted() {
				finish(Aborted, 0, nil)
				return
			}
			code := protocolErrorCode(rerr)
			logger.Info("reading response body", "error", rerr, "code", code)
			finish(Error, code, rerr)
			return
		}
	}

	// Trailers are captured before the outbound body is half-closed.
	r.mu.Lock()
	if trailers := flatten(resp.Trailer); len(trailers) > 0 {
		r.trailers = trailers
		r.trailersReceived = true
	}
	r.halfCloseLocked()
	r.mu.Unlock()

	finish(Success, 0, nil)
}

// task carries the per-dispatch values the terminal path needs.
type task struct {
	r     *Request
	state any
	span  trace.Span
	start time.Time
}

// complete delivers the terminal callback exactly once, then marks the
// request completed.
func (t task) complete(reason CompletionReason, code uint32, err error) {
	r := t.r

	r.mu.Lock()
	switch reason {
	case Error:
		r.err = &DispatchError{Code: code, Err: err}
	case Aborted:
		r.err = ErrAborted
	}
	r.halfCloseLocked()
	r.mu.Unlock()

	switch reason {
	case Error:
		t.span.SetStatus(codes.Error, err.Error())
		t.span.SetAttributes(attribute.Int64("httpengine.protocol_error_code", int64(code)))
	case Aborted:
		t.span.SetStatus(codes.Error, ErrAborted.Error())
	default:
		t.span.SetStatus(codes.Ok, "")
	}
	r.ctx.metrics.completed(reason, code, time.Since(t.start))

	r.ctx.onComplete(r.seq, t.state, reason, code)

	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()

	close(r.done)
}

// newHTTPRequest materializes the pending builder.
func newHTTPRequest(ctx context.Context, p *pendingRequest, header http.Header, body io.ReadCloser) (*http.Request, error) {
	if p.url == nil {
		body.Close()
		return nil, &URIError{URI: "", Err: errors.New("uri not set")}
	}

	req, err := http.NewRequestWithContext(ctx, p.method, p.url.String(), body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	req.Header = header
	if host := header.Get("Host"); host != "" {
		req.Host = host
		header.Del("Host")
	}
	req.Proto, req.ProtoMajor, req.ProtoMinor = p.version.proto()

	return req, nil
}

// flatten turns a header map into one field per value. net/http does not
// keep the order across names, so names are sorted; values of one name keep
// their arrival order.
func flatten(h http.Header) []HeaderField {
	names := make([]string, 0, len(h))
	for name, values := range h {
		if len(values) > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	var fields []HeaderField
	for _, name := range names {
		for _, value := range h[name] {
			fields = append(fields, HeaderField{Name: name, Value: value})
		}
	}
	return fields
}
