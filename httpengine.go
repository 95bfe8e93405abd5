// Package httpengine is the handle-based surface of the engine, meant for
// hosts that drive it through a foreign-function boundary. Every object is
// referred to by an opaque integer handle; fallible calls report a boolean
// and leave a message for [GetLastError].
//
// Go programs should use the [client] and [executor] packages directly.
//
// A typical sequence is:
//
//	rt := httpengine.RuntimeInit()
//	c := httpengine.ContextInit(rt, callbacks)
//	httpengine.ConfigHTTP2KeepAliveInterval(c, 30_000)
//	if !httpengine.BuildClient(c) {
//		log.Fatal(string(httpengine.GetLastError()))
//	}
//	r := httpengine.RequestNew(c, 1)
//	httpengine.RequestSetURI(r, "https://example.com/")
//	httpengine.RequestBegin(r, state)
//	// ... callbacks fire ...
//	httpengine.RequestDestroy(r)
//	httpengine.ContextDispose(c)
//	httpengine.RuntimeDispose(rt)
package httpengine

import (
	"fmt"
	"time"

	"github.com/adamwoolhether/httpengine/client"
	"github.com/adamwoolhether/httpengine/executor"
)

var (
	runtimes = newTable[Runtime, *executor.Executor]("runtime")
	contexts = newTable[ClientContext, *client.Context]("client context")
	requests = newTable[RequestContext, *client.Request]("request")
)

// =============================================================================
// Runtime

// RuntimeInit creates an executor and returns its handle.
func RuntimeInit(opts ...executor.Option) Runtime {
	return runtimes.put(executor.New(opts...))
}

// RuntimeDispose cancels every task still running on rt, waits for them to
// report Aborted and releases the handle.
func RuntimeDispose(rt Runtime) {
	runtimes.take(rt).Dispose()
}

// =============================================================================
// Client context

// ContextInit creates an unbuilt client context whose requests run on rt and
// report through cb.
func ContextInit(rt Runtime, cb client.Callbacks, opts ...client.Option) ClientContext {
	c, err := client.New(runtimes.get(rt), cb, opts...)
	if err != nil {
		panic(fmt.Sprintf("httpengine: creating client context: %v", err))
	}
	return contexts.put(c)
}

// ContextDispose releases the client context. Callbacks that in-flight
// requests deliver afterwards panic.
func ContextDispose(c ClientContext) {
	contexts.take(c).Dispose()
}

// BuildClient seals the configuration of c. On failure it returns false and
// the reason is available from GetLastError.
func BuildClient(c ClientContext) bool {
	if err := contexts.get(c).Build(); err != nil {
		setLastError("build_client", err)
		return false
	}
	return true
}

// =============================================================================
// Configuration. Every setter panics once BuildClient has succeeded.

// ConfigAddRootCertificates adds PEM root certificates and returns how many
// parsed.
func ConfigAddRootCertificates(c ClientContext, pem []byte) int {
	return contexts.get(c).AddRootCertificates(pem)
}

func ConfigAddClientAuthCertificates(c ClientContext, pem []byte) int {
	return contexts.get(c).AddClientAuthCertificates(pem)
}

func ConfigAddClientAuthKey(c ClientContext, pem []byte) int {
	return contexts.get(c).AddClientAuthKey(pem)
}

func ConfigSkipCertificateVerification(c ClientContext, v bool) {
	contexts.get(c).SetSkipCertificateVerification(v)
}

// ConfigServerCertificateVerifier delegates trust decisions to fn. It takes
// precedence over skip-verification and root certificates.
func ConfigServerCertificateVerifier(c ClientContext, fn client.VerifyFunc) {
	contexts.get(c).SetServerCertificateVerifier(fn)
}

func ConfigServerNameOverride(c ClientContext, name string) {
	contexts.get(c).SetServerNameOverride(name)
}

// ConfigConnectTimeout bounds connection establishment, in milliseconds.
func ConfigConnectTimeout(c ClientContext, ms uint64) {
	contexts.get(c).SetConnectTimeout(millis(ms))
}

func ConfigPoolIdleTimeout(c ClientContext, ms uint64) {
	contexts.get(c).SetPoolIdleTimeout(millis(ms))
}

func ConfigPoolMaxIdlePerHost(c ClientContext, n int) {
	contexts.get(c).SetPoolMaxIdlePerHost(n)
}

func ConfigHTTP2Only(c ClientContext, v bool) {
	contexts.get(c).SetHTTP2Only(v)
}

func ConfigHTTP2InitialStreamWindowSize(c ClientContext, n uint32) {
	contexts.get(c).SetHTTP2InitialStreamWindowSize(n)
}

func ConfigHTTP2InitialConnectionWindowSize(c ClientContext, n uint32) {
	contexts.get(c).SetHTTP2InitialConnectionWindowSize(n)
}

func ConfigHTTP2AdaptiveWindow(c ClientContext, v bool) {
	contexts.get(c).SetHTTP2AdaptiveWindow(v)
}

func ConfigHTTP2MaxFrameSize(c ClientContext, n uint32) {
	contexts.get(c).SetHTTP2MaxFrameSize(n)
}

// ConfigHTTP2KeepAliveInterval sets the HTTP/2 ping interval, in milliseconds.
func ConfigHTTP2KeepAliveInterval(c ClientContext, ms uint64) {
	contexts.get(c).SetHTTP2KeepAliveInterval(millis(ms))
}

// ConfigHTTP2KeepAliveTimeout sets the HTTP/2 ping timeout, in milliseconds.
func ConfigHTTP2KeepAliveTimeout(c ClientContext, ms uint64) {
	contexts.get(c).SetHTTP2KeepAliveTimeout(millis(ms))
}

func ConfigHTTP2KeepAliveWhileIdle(c ClientContext, v bool) {
	contexts.get(c).SetHTTP2KeepAliveWhileIdle(v)
}

func ConfigHTTP2MaxConcurrentResetStreams(c ClientContext, n int) {
	contexts.get(c).SetHTTP2MaxConcurrentResetStreams(n)
}

func ConfigHTTP2MaxSendBufSize(c ClientContext, n int) {
	contexts.get(c).SetHTTP2MaxSendBufferSize(n)
}

func ConfigHTTP2InitialMaxSendStreams(c ClientContext, n int) {
	contexts.get(c).SetHTTP2InitialMaxSendStreams(n)
}

// ConfigUnixDomainSocketPath routes every request of c over the socket at
// path instead of TCP.
func ConfigUnixDomainSocketPath(c ClientContext, path string) {
	contexts.get(c).SetUnixDomainSocketPath(path)
}

func millis(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
