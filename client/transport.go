package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

const defaultTLSHandshakeTimeout = 10 * time.Second

// newTransport assembles the round tripper Build seals into the client, and
// a func that drops its idle connections.
func (c *Context) newTransport() (http.RoundTripper, func(), error) {
	if c.base != nil {
		closeIdle := func() {}
		if ci, ok := c.base.(interface{ CloseIdleConnections() }); ok {
			closeIdle = ci.CloseIdleConnections
		}
		return c.base, closeIdle, nil
	}

	dialer := &net.Dialer{
		Timeout:   c.settings.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	if path := c.settings.UnixDomainSocketPath; path != "" {
		dial := func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", path)
		}

		if c.settings.HTTP2Only {
			t2 := c.newHTTP2Transport(nil)
			t2.AllowHTTP = true
			t2.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dial(ctx, network, addr)
			}
			return unixSocket{next: t2}, t2.CloseIdleConnections, nil
		}

		t1 := c.newHTTP1Transport()
		t1.Proxy = nil
		t1.DialContext = dial
		return unixSocket{next: t1}, t1.CloseIdleConnections, nil
	}

	tlsConf, err := c.tlsConfig()
	if err != nil {
		return nil, nil, err
	}

	if c.settings.HTTP2Only {
		secure := c.newHTTP2Transport(tlsConf)
		secure.DialTLSContext = func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			td := &tls.Dialer{NetDialer: dialer, Config: cfg}
			return td.DialContext(ctx, network, addr)
		}

		cleartext := c.newHTTP2Transport(nil)
		cleartext.AllowHTTP = true
		cleartext.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		}

		r := priorKnowledge{secure: secure, cleartext: cleartext}
		return r, r.CloseIdleConnections, nil
	}

	t1 := c.newHTTP1Transport()
	t1.DialContext = dialer.DialContext
	t1.TLSClientConfig = tlsConf
	t1.ForceAttemptHTTP2 = true

	t2, err := http2.ConfigureTransports(t1)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring http2: %w", err)
	}
	c.tuneHTTP2(t2)

	return t1, t1.CloseIdleConnections, nil
}

func (c *Context) newHTTP1Transport() *http.Transport {
	t1 := http.DefaultTransport.(*http.Transport).Clone()
	t1.TLSHandshakeTimeout = defaultTLSHandshakeTimeout
	t1.DisableCompression = true

	if c.settings.PoolIdleTimeout > 0 {
		t1.IdleConnTimeout = c.settings.PoolIdleTimeout
	}
	if c.settings.PoolMaxIdlePerHost > 0 {
		t1.MaxIdleConnsPerHost = c.settings.PoolMaxIdlePerHost
	}
	if c.settings.HTTP2MaxSendBufferSize > 0 {
		t1.WriteBufferSize = c.settings.HTTP2MaxSendBufferSize
	}

	t1.HTTP2 = &http.HTTP2Config{
		MaxReceiveBufferPerStream:     int(c.settings.HTTP2InitialStreamWindowSize),
		MaxReceiveBufferPerConnection: int(c.settings.HTTP2InitialConnectionWindowSize),
		MaxReadFrameSize:              int(c.settings.HTTP2MaxFrameSize),
		SendPingTimeout:               c.settings.HTTP2KeepAliveInterval,
		PingTimeout:                   c.settings.HTTP2KeepAliveTimeout,
	}

	return t1
}

func (c *Context) newHTTP2Transport(tlsConf *tls.Config) *http2.Transport {
	t2 := &http2.Transport{
		TLSClientConfig:    tlsConf,
		DisableCompression: true,
		IdleConnTimeout:    c.settings.PoolIdleTimeout,
	}
	c.tuneHTTP2(t2)

	return t2
}

func (c *Context) tuneHTTP2(t2 *http2.Transport) {
	if c.settings.HTTP2MaxFrameSize > 0 {
		t2.MaxReadFrameSize = c.settings.HTTP2MaxFrameSize
	}
	if c.settings.HTTP2KeepAliveInterval > 0 {
		t2.ReadIdleTimeout = c.settings.HTTP2KeepAliveInterval
	}
	if c.settings.HTTP2KeepAliveTimeout > 0 {
		t2.PingTimeout = c.settings.HTTP2KeepAliveTimeout
	}
}

// priorKnowledge routes HTTP/2-only traffic by scheme: https negotiates h2
// over TLS, http speaks h2c without an upgrade.
type priorKnowledge struct {
	secure    *http2.Transport
	cleartext *http2.Transport
}

func (p priorKnowledge) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Scheme == "http" {
		return p.cleartext.RoundTrip(r)
	}
	return p.secure.RoundTrip(r)
}

func (p priorKnowledge) CloseIdleConnections() {
	p.secure.CloseIdleConnections()
	p.cleartext.CloseIdleConnections()
}

// unixSocket sends every request over the configured socket. The URL host
// is kept for the Host header; the scheme is forced to http because the
// channel carries no TLS.
type unixSocket struct {
	next http.RoundTripper
}

func (u unixSocket) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.URL.Scheme == "http" {
		return u.next.RoundTrip(r)
	}

	cpy := r.Clone(r.Context())
	cpy.URL.Scheme = "http"
	return u.next.RoundTrip(cpy)
}
