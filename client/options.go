package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpengine/client/throttle"
)

// Option is a functional option for configuring a [Context] via [New].
type Option func(*Context) error

// WithLogger injects a custom [slog.Logger] into the [Context].
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to open one span per dispatched request.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Context) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithMetrics records dispatch metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Context) error {
		c.metrics = m
		return nil
	}
}

// WithTransport replaces the transport Build would assemble. TLS, socket and
// HTTP/2 settings are then the caller's responsibility.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Context) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.base = rt
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *Context) error {
		c.settings.UserAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per
// second and burst capacity.
func WithThrottle(rps, burst int, perHost bool) Option {
	return func(c *Context) error {
		if rps <= 0 || burst <= 0 {
			return fmt.Errorf("rps[%d] and burst[%d] %w", rps, burst, throttle.ErrMustNotBeZero)
		}
		c.settings.Throttle = &throttle.Config{RPS: rps, Burst: burst, PerHost: perHost}
		return nil
	}
}

// WithSettings replaces the plain-value settings wholesale. It is meant for
// settings loaded from a file; validation happens at Build.
func WithSettings(s Settings) Option {
	return func(c *Context) error {
		c.settings = s
		return nil
	}
}

// WithRootCertificates appends the PEM certificates in pemData to the trust
// store. It fails when none of them parse.
func WithRootCertificates(pemData []byte) Option {
	return func(c *Context) error {
		if c.AddRootCertificates(pemData) == 0 {
			return errors.New("no root certificates parsed")
		}
		return nil
	}
}

// WithClientAuth configures mutual TLS from a PEM certificate chain and key.
func WithClientAuth(certPEM, keyPEM []byte) Option {
	return func(c *Context) error {
		if c.AddClientAuthCertificates(certPEM) == 0 {
			return errors.New("no client certificates parsed")
		}
		if c.AddClientAuthKey(keyPEM) == 0 {
			return errors.New("no client key parsed")
		}
		return nil
	}
}

// WithServerCertificateVerifier delegates server trust decisions to fn.
func WithServerCertificateVerifier(fn VerifyFunc) Option {
	return func(c *Context) error {
		if fn == nil {
			return errors.New("verifier must not be nil")
		}
		c.SetServerCertificateVerifier(fn)
		return nil
	}
}

// WithSkipCertificateVerification disables server certificate checks.
func WithSkipCertificateVerification() Option {
	return func(c *Context) error {
		c.SetSkipCertificateVerification(true)
		return nil
	}
}

// WithConnectTimeout bounds connection establishment.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Context) error {
		if d < 0 {
			return errors.New("connect timeout must not be negative")
		}
		c.SetConnectTimeout(d)
		return nil
	}
}

// WithHTTP2Only forces HTTP/2 for every request.
func WithHTTP2Only() Option {
	return func(c *Context) error {
		c.SetHTTP2Only(true)
		return nil
	}
}

// WithUnixDomainSocket routes all requests over the unix socket at path.
func WithUnixDomainSocket(path string) Option {
	return func(c *Context) error {
		if path == "" {
			return errors.New("socket path must not be empty")
		}
		c.SetUnixDomainSocketPath(path)
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
