package client

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/httpengine/client/throttle"
	"github.com/adamwoolhether/httpengine/executor"
)

// Context holds the connection configuration and callbacks shared by every
// request created from it. Configure it with the setters or options, then
// call Build to seal it. A sealed Context is safe for concurrent use.
type Context struct {
	id      uuid.UUID
	rt      *executor.Executor
	cb      Callbacks
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *Metrics
	base    http.RoundTripper

	settings    Settings
	roots       []*x509.Certificate
	clientCerts []*x509.Certificate
	clientKey   crypto.PrivateKey
	verifier    VerifyFunc

	sealed   atomic.Pointer[sealedClient]
	disposed atomic.Bool
}

// sealedClient is the immutable product of Build.
type sealedClient struct {
	hc        *http.Client
	closeIdle func()
}

// New creates an unsealed Context whose requests run on rt. Nil callbacks
// are treated as no-ops.
func New(rt *executor.Executor, cb Callbacks, optFns ...Option) (*Context, error) {
	if rt == nil {
		return nil, errors.New("executor must not be nil")
	}

	if cb.OnHeaders == nil {
		cb.OnHeaders = func(int32, any, int, Version) {}
	}
	if cb.OnData == nil {
		cb.OnData = func(int32, any, []byte) {}
	}
	if cb.OnComplete == nil {
		cb.OnComplete = func(int32, any, CompletionReason, uint32) {}
	}

	c := &Context{
		id:     uuid.New(),
		rt:     rt,
		cb:     cb,
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer(""),
	}

	for _, opt := range optFns {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	c.logger = c.logger.With("client", c.id.String())

	return c, nil
}

// ID returns the Context's identifier, attached to its log lines and spans.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Build seals the configuration and creates the client that every request
// of this Context is dispatched on. Setters panic after a successful Build.
func (c *Context) Build() error {
	if c.sealed.Load() != nil {
		return ErrAlreadyBuilt
	}

	if err := Validate(c.settings); err != nil {
		return fmt.Errorf("validating settings: %w", err)
	}

	for _, name := range c.settings.unenforced() {
		c.logger.Info("build", "setting", name, "msg", "accepted but not enforced by the transport")
	}

	transport, closeIdle, err := c.newTransport()
	if err != nil {
		return fmt.Errorf("building transport: %w", err)
	}

	if c.settings.UserAgent != "" {
		transport = userAgent{value: c.settings.UserAgent, base: transport}
	}
	if c.settings.Throttle != nil {
		rt, err := throttle.NewRoundTripper(*c.settings.Throttle, c.logger, transport)
		if err != nil {
			return fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}

	sc := &sealedClient{
		hc: &http.Client{
			Transport: transport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		closeIdle: closeIdle,
	}
	if !c.sealed.CompareAndSwap(nil, sc) {
		return ErrAlreadyBuilt
	}

	c.logger.Debug("build", "unix_socket", c.settings.UnixDomainSocketPath != "", "http2_only", c.settings.HTTP2Only)

	return nil
}

// Built reports whether Build has sealed the Context.
func (c *Context) Built() bool {
	return c.sealed.Load() != nil
}

// Dispose marks the Context as disposed and closes idle connections.
// Any callback a still-running request would deliver afterwards panics, so
// callers must let their requests finish or abort them first.
func (c *Context) Dispose() {
	if !c.disposed.CompareAndSwap(false, true) {
		return
	}

	if sc := c.sealed.Load(); sc != nil && sc.closeIdle != nil {
		sc.closeIdle()
	}
	c.logger.Debug("client disposed")
}

func (c *Context) mustConfigure(op string) {
	if c.sealed.Load() != nil {
		panic(fmt.Sprintf("client: %s called after Build", op))
	}
	if c.disposed.Load() {
		panic(fmt.Sprintf("client: %s called on a disposed context", op))
	}
}

func (c *Context) mustBeLive(cb string) {
	if c.disposed.Load() {
		panic(fmt.Sprintf("client: %s callback invoked on a disposed context", cb))
	}
}

func (c *Context) onHeaders(seq int32, state any, status int, v Version) {
	c.mustBeLive("headers")
	c.cb.OnHeaders(seq, state, status, v)
}

func (c *Context) onData(seq int32, state any, buf []byte) {
	c.mustBeLive("data")
	c.metrics.bodyBytesReceived(len(buf))
	c.cb.OnData(seq, state, buf)
}

func (c *Context) onComplete(seq int32, state any, reason CompletionReason, code uint32) {
	c.mustBeLive("complete")
	c.cb.OnComplete(seq, state, reason, code)
}
