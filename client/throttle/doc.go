// Package throttle provides an [http.RoundTripper] that rate-limits
// dispatched requests using a token-bucket algorithm from
// [golang.org/x/time/rate].
//
// # Usage
//
// Wrap an existing transport with [NewRoundTripper]:
//
//	rt, err := throttle.NewRoundTripper(
//		throttle.Config{RPS: 10, Burst: 5, PerHost: true},
//		slog.Default(),
//		http.DefaultTransport,
//	)
//
// When the bucket is empty, requests block until a token becomes available
// or the request context is cancelled. Aborting a request through its
// client.Request cancels that context.
package throttle
