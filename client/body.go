package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// bodyCapacity is the number of chunks the outbound queue holds before
// WriteBody reports WriteFull.
const bodyCapacity = 8

// outboundBody is the request body handed to the transport. The caller side
// enqueues chunks without blocking; the transport drains them through Read.
// Producer calls are serialized by the owning Request's lock, and net/http
// reads the body from a single goroutine, which keeps the queue SPSC.
type outboundBody struct {
	q     lfq.SPSC[[]byte]
	ready chan struct{}

	halfClosed chan struct{}
	closeOnce  sync.Once

	readerGone chan struct{}
	readerOnce sync.Once

	pending []byte
}

func newOutboundBody() *outboundBody {
	b := &outboundBody{
		ready:      make(chan struct{}, 1),
		halfClosed: make(chan struct{}),
		readerGone: make(chan struct{}),
	}
	b.q.Init(bodyCapacity)

	return b
}

// offer copies p onto the queue.
func (b *outboundBody) offer(p []byte) WriteResult {
	select {
	case <-b.readerGone:
		return WriteAlreadyCompleted
	case <-b.halfClosed:
		return WriteAlreadyCompleted
	default:
	}

	chunk := bytes.Clone(p)
	if chunk == nil {
		chunk = []byte{}
	}
	if err := b.q.Enqueue(&chunk); err != nil {
		if errors.Is(err, iox.ErrWouldBlock) {
			return WriteFull
		}
		return WriteAlreadyCompleted
	}

	select {
	case b.ready <- struct{}{}:
	default:
	}

	return WriteSuccess
}

// halfClose signals that no more chunks will be offered. Chunks already
// queued are still delivered before Read reports io.EOF.
func (b *outboundBody) halfClose() {
	b.closeOnce.Do(func() {
		close(b.halfClosed)
	})
}

func (b *outboundBody) Read(p []byte) (int, error) {
	for {
		if len(b.pending) > 0 {
			n := copy(p, b.pending)
			b.pending = b.pending[n:]
			return n, nil
		}

		chunk, err := b.q.Dequeue()
		if err == nil {
			b.pending = chunk
			continue
		}
		if !errors.Is(err, iox.ErrWouldBlock) {
			return 0, fmt.Errorf("reading request body: %w", err)
		}

		select {
		case <-b.ready:
		case <-b.halfClosed:
			chunk, err := b.q.Dequeue()
			if err != nil {
				return 0, io.EOF
			}
			b.pending = chunk
		case <-b.readerGone:
			return 0, io.ErrClosedPipe
		}
	}
}

// Close is called by the transport once it stops consuming the body.
func (b *outboundBody) Close() error {
	b.readerOnce.Do(func() {
		close(b.readerGone)
	})
	return nil
}

// =============================================================================
// Caller side

// WriteBody attempts a non-blocking write of p to the outbound request body.
// p is copied before WriteBody returns. It reports [WriteFull] when the queue
// is at capacity and [WriteAlreadyCompleted] once the body has been
// half-closed, or when the request was created without a body.
func (r *Request) WriteBody(p []byte) WriteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("WriteBody")

	if r.body == nil {
		return WriteAlreadyCompleted
	}

	res := r.body.offer(p)
	if res == WriteSuccess {
		r.ctx.metrics.bodyBytesSent(len(p))
	}

	return res
}

// CompleteBody half-closes the outbound request body. It is a no-op when the
// body is already closed.
func (r *Request) CompleteBody() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mustBeLive("CompleteBody")

	r.halfCloseLocked()
}

// halfCloseLocked drops the sender. r.mu must be held.
func (r *Request) halfCloseLocked() {
	if r.body == nil {
		return
	}
	r.body.halfClose()
	r.body = nil
}

// SendBody copies src into the outbound body, backing off while the queue is
// full, and half-closes the body once src is exhausted. It returns early when
// ctx ends or the body is closed by the other side.
func (r *Request) SendBody(ctx context.Context, src io.Reader) error {
	buf := make([]byte, 16*1024)
	var bo iox.Backoff

	for {
		n, rerr := src.Read(buf)
		for n > 0 {
			switch r.WriteBody(buf[:n]) {
			case WriteSuccess:
				n = 0
				bo.Reset()
			case WriteFull:
				if err := ctx.Err(); err != nil {
					return err
				}
				bo.Wait()
			case WriteAlreadyCompleted:
				return fmt.Errorf("sending request body: %w", io.ErrClosedPipe)
			}
		}

		switch {
		case errors.Is(rerr, io.EOF):
			r.CompleteBody()
			return nil
		case rerr != nil:
			return fmt.Errorf("reading body source: %w", rerr)
		}
	}
}
