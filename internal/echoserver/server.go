// Package echoserver is a diagnostic HTTP peer for exercising the engine by
// hand. It speaks HTTP/1.1, HTTP/2 over TLS, cleartext HTTP/2 and can listen
// on a unix socket.
package echoserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"
)

// Server wraps an [http.Server] with context-driven graceful shutdown.
type Server struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	logger          *slog.Logger
	network         string
	addr            string
	tlsCertFile     string
	tlsKeyFile      string

	ln net.Listener
}

// New creates a Server for the given handler. It listens on
// "127.0.0.1:8080" with the default slog logger unless overridden.
func New(handler http.Handler, opts ...Option) *Server {
	o := options{
		host:         "127.0.0.1:8080",
		readTimeout:  5 * time.Second,
		writeTimeout: 30 * time.Second,
		idleTimeout:  120 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  o.readTimeout,
		WriteTimeout: o.writeTimeout,
		IdleTimeout:  o.idleTimeout,
		Protocols:    new(http.Protocols),
	}
	srv.Protocols.SetHTTP1(true)
	srv.Protocols.SetHTTP2(true)
	srv.Protocols.SetUnencryptedHTTP2(o.h2c)

	s := Server{
		srv:             srv,
		shutdownTimeout: 20 * time.Second,
		logger:          slog.Default(),
		network:         "tcp",
		addr:            o.host,
		tlsCertFile:     o.tlsCertFile,
		tlsKeyFile:      o.tlsKeyFile,
	}

	if o.unixSocket != "" {
		s.network, s.addr = "unix", o.unixSocket
	}
	if o.shutdownTimeout != 0 {
		s.shutdownTimeout = o.shutdownTimeout
	}
	if o.logger != nil {
		s.logger = o.logger
	}

	return &s
}

// Listen binds the listening socket and returns its address. Serve calls it
// when it has not been called yet.
func (s *Server) Listen() (net.Addr, error) {
	if s.ln != nil {
		return s.ln.Addr(), nil
	}

	if s.network == "unix" {
		if err := os.Remove(s.addr); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("removing stale socket: %w", err)
		}
	}

	ln, err := net.Listen(s.network, s.addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s %s: %w", s.network, s.addr, err)
	}
	s.ln = ln

	return ln.Addr(), nil
}

// Serve accepts connections until ctx ends, then shuts down gracefully.
// It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := s.Listen(); err != nil {
		return err
	}

	serverErrs := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "network", s.network, "addr", s.ln.Addr().String(), "tls", s.tlsCertFile != "")

		if s.tlsCertFile != "" {
			serverErrs <- s.srv.ServeTLS(s.ln, s.tlsCertFile, s.tlsKeyFile)
		} else {
			serverErrs <- s.srv.Serve(s.ln)
		}
	}()

	select {
	case err := <-serverErrs:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()

		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}

		s.logger.Info("shutdown complete")

		return nil
	}
}

// Shutdown drains in-flight requests. Callers should set a deadline on ctx
// to bound how long shutdown may take.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.srv.Close()
		return fmt.Errorf("server didn't stop gracefully: %w", err)
	}

	return nil
}
