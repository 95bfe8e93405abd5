// Package client implements the per-request asynchronous HTTP engine on top
// of [net/http] and [golang.org/x/net/http2].
//
// # Contexts
//
// A [Context] holds connection configuration and the three callbacks every
// request reports through. Configure it, then seal it with [Context.Build]:
//
//	rt := executor.New()
//	c, err := client.New(rt, client.Callbacks{
//		OnHeaders:  onHeaders,
//		OnData:     onData,
//		OnComplete: onComplete,
//	}, client.WithUserAgent("myapp/1.0"))
//	c.AddRootCertificates(caPEM)
//	c.SetHTTP2KeepAliveInterval(30 * time.Second)
//	err = c.Build()
//
// Trust decisions follow a fixed priority: a verifier installed with
// [Context.SetServerCertificateVerifier], then skip-verification, then the
// standard trust store seeded from the added roots (or the system roots).
// [Context.SetUnixDomainSocketPath] routes every request over a local socket
// instead of TCP.
//
// # Requests
//
// A [Request] is built, dispatched once with [Request.Begin], and released
// with [Request.Destroy]:
//
//	r := c.NewRequest(seq)
//	r.SetMethod(http.MethodPost)
//	if err := r.SetURI("https://api.example.com/v1/upload"); err != nil { ... }
//	r.SetHeader("Content-Type", "application/octet-stream")
//	r.SetHasBody(true)
//	err = r.Begin(state)
//	err = r.SendBody(ctx, file) // or WriteBody/CompleteBody by hand
//	<-r.Done()
//	r.Destroy()
//
// Callbacks run on executor goroutines. For each request OnHeaders fires
// before any OnData, and OnComplete fires exactly once with [Success],
// [Error] or [Aborted]. An Error completion carries the HTTP/2 reset code
// when the peer sent one. [Request.Abort] cancels cooperatively.
package client
