package echoserver

import (
	"log/slog"
	"time"
)

// Option configures a Server.
type Option func(*options)

type options struct {
	host            string
	unixSocket      string
	h2c             bool
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	tlsCertFile     string
	tlsKeyFile      string
}

// WithHost sets the TCP address the server listens on.
func WithHost(host string) Option {
	return func(opts *options) {
		opts.host = host
	}
}

// WithUnixSocket listens on the unix socket at path instead of TCP.
func WithUnixSocket(path string) Option {
	return func(opts *options) {
		opts.unixSocket = path
	}
}

// WithH2C accepts HTTP/2 with prior knowledge on cleartext connections.
func WithH2C() Option {
	return func(opts *options) {
		opts.h2c = true
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.readTimeout = d
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.writeTimeout = d
	}
}

func WithIdleTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.idleTimeout = d
	}
}

// WithShutdownTimeout bounds how long Serve waits for in-flight requests
// once its context ends. Default is 20s.
func WithShutdownTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.shutdownTimeout = d
	}
}

// WithLogger sets the logger used for lifecycle and access logs.
func WithLogger(log *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = log
	}
}

// WithTLS serves TLS with the given certificate and key files. HTTP/2 is
// negotiated through ALPN.
func WithTLS(certFile, keyFile string) Option {
	return func(opts *options) {
		opts.tlsCertFile = certFile
		opts.tlsKeyFile = keyFile
	}
}
