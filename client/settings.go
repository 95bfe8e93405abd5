package client

import (
	"time"

	"github.com/adamwoolhether/httpengine/client/throttle"
)

// Settings is the plain-value part of a Context's connection configuration.
// Certificate material and the custom verifier are held separately because
// they are not serialisable.
type Settings struct {
	SkipCertificateVerification bool   `yaml:"skip_certificate_verification" mapstructure:"skip_certificate_verification"`
	ServerNameOverride          string `yaml:"server_name_override" mapstructure:"server_name_override" validate:"omitempty,hostname|ip"`

	ConnectTimeout     time.Duration `yaml:"connect_timeout" mapstructure:"connect_timeout" validate:"gte=0"`
	PoolIdleTimeout    time.Duration `yaml:"pool_idle_timeout" mapstructure:"pool_idle_timeout" validate:"gte=0"`
	PoolMaxIdlePerHost int           `yaml:"pool_max_idle_per_host" mapstructure:"pool_max_idle_per_host" validate:"gte=0"`

	HTTP2Only                        bool          `yaml:"http2_only" mapstructure:"http2_only"`
	HTTP2InitialStreamWindowSize     uint32        `yaml:"http2_initial_stream_window_size" mapstructure:"http2_initial_stream_window_size" validate:"omitempty,gte=65535,lte=2147483647"`
	HTTP2InitialConnectionWindowSize uint32        `yaml:"http2_initial_connection_window_size" mapstructure:"http2_initial_connection_window_size" validate:"omitempty,gte=65535,lte=2147483647"`
	HTTP2AdaptiveWindow              bool          `yaml:"http2_adaptive_window" mapstructure:"http2_adaptive_window"`
	HTTP2MaxFrameSize                uint32        `yaml:"http2_max_frame_size" mapstructure:"http2_max_frame_size" validate:"omitempty,gte=16384,lte=16777215"`
	HTTP2KeepAliveInterval           time.Duration `yaml:"http2_keep_alive_interval" mapstructure:"http2_keep_alive_interval" validate:"gte=0"`
	HTTP2KeepAliveTimeout            time.Duration `yaml:"http2_keep_alive_timeout" mapstructure:"http2_keep_alive_timeout" validate:"gte=0"`
	HTTP2KeepAliveWhileIdle          bool          `yaml:"http2_keep_alive_while_idle" mapstructure:"http2_keep_alive_while_idle"`
	HTTP2MaxConcurrentResetStreams   int           `yaml:"http2_max_concurrent_reset_streams" mapstructure:"http2_max_concurrent_reset_streams" validate:"gte=0"`
	HTTP2MaxSendBufferSize           int           `yaml:"http2_max_send_buffer_size" mapstructure:"http2_max_send_buffer_size" validate:"gte=0"`
	HTTP2InitialMaxSendStreams       int           `yaml:"http2_initial_max_send_streams" mapstructure:"http2_initial_max_send_streams" validate:"gte=0"`

	UnixDomainSocketPath string `yaml:"unix_domain_socket_path" mapstructure:"unix_domain_socket_path" validate:"omitempty,max=107"`

	UserAgent string           `yaml:"user_agent" mapstructure:"user_agent"`
	Throttle  *throttle.Config `yaml:"throttle" mapstructure:"throttle" validate:"omitempty"`
}

// =============================================================================
// Setters. Each one panics once Build has sealed the Context.

// AddRootCertificates appends every parseable certificate in pemData to the
// trust store used by the standard verifier, and returns how many were added.
func (c *Context) AddRootCertificates(pemData []byte) int {
	c.mustConfigure("AddRootCertificates")

	certs := parseCertificates(pemData)
	c.roots = append(c.roots, certs...)
	c.logger.Debug("option", "name", "root_certificates", "added", len(certs))

	return len(certs)
}

// AddClientAuthCertificates sets the client certificate chain for mutual
// TLS and returns the number of certificates parsed. The first call that
// parses at least one certificate wins.
func (c *Context) AddClientAuthCertificates(pemData []byte) int {
	c.mustConfigure("AddClientAuthCertificates")

	certs := parseCertificates(pemData)
	if len(certs) > 0 && len(c.clientCerts) == 0 {
		c.clientCerts = certs
	}
	c.logger.Debug("option", "name", "client_auth_certificates", "parsed", len(certs))

	return len(certs)
}

// AddClientAuthKey sets the client private key for mutual TLS and returns
// the number of keys parsed. Only the first key is used.
func (c *Context) AddClientAuthKey(pemData []byte) int {
	c.mustConfigure("AddClientAuthKey")

	keys := parsePrivateKeys(pemData)
	if len(keys) > 0 && c.clientKey == nil {
		c.clientKey = keys[0]
	}
	c.logger.Debug("option", "name", "client_auth_key", "parsed", len(keys))

	return len(keys)
}

func (c *Context) SetSkipCertificateVerification(v bool) {
	c.mustConfigure("SetSkipCertificateVerification")
	c.settings.SkipCertificateVerification = v
	c.logger.Debug("option", "name", "skip_certificate_verification", "value", v)
}

// SetServerCertificateVerifier installs fn as the sole trust decision for
// server certificates. It takes priority over every other TLS setting.
func (c *Context) SetServerCertificateVerifier(fn VerifyFunc) {
	c.mustConfigure("SetServerCertificateVerifier")
	c.verifier = fn
	c.logger.Debug("option", "name", "server_certificate_verifier", "value", fn != nil)
}

func (c *Context) SetServerNameOverride(name string) {
	c.mustConfigure("SetServerNameOverride")
	c.settings.ServerNameOverride = name
	c.logger.Debug("option", "name", "server_name_override", "value", name)
}

func (c *Context) SetConnectTimeout(d time.Duration) {
	c.mustConfigure("SetConnectTimeout")
	c.settings.ConnectTimeout = d
	c.logger.Debug("option", "name", "connect_timeout", "value", d)
}

func (c *Context) SetPoolIdleTimeout(d time.Duration) {
	c.mustConfigure("SetPoolIdleTimeout")
	c.settings.PoolIdleTimeout = d
	c.logger.Debug("option", "name", "pool_idle_timeout", "value", d)
}

func (c *Context) SetPoolMaxIdlePerHost(n int) {
	c.mustConfigure("SetPoolMaxIdlePerHost")
	c.settings.PoolMaxIdlePerHost = n
	c.logger.Debug("option", "name", "pool_max_idle_per_host", "value", n)
}

// SetHTTP2Only makes every request use HTTP/2. Plain http URLs are sent as
// HTTP/2 with prior knowledge (h2c).
func (c *Context) SetHTTP2Only(v bool) {
	c.mustConfigure("SetHTTP2Only")
	c.settings.HTTP2Only = v
	c.logger.Debug("option", "name", "http2_only", "value", v)
}

func (c *Context) SetHTTP2InitialStreamWindowSize(n uint32) {
	c.mustConfigure("SetHTTP2InitialStreamWindowSize")
	c.settings.HTTP2InitialStreamWindowSize = n
	c.logger.Debug("option", "name", "http2_initial_stream_window_size", "value", n)
}

func (c *Context) SetHTTP2InitialConnectionWindowSize(n uint32) {
	c.mustConfigure("SetHTTP2InitialConnectionWindowSize")
	c.settings.HTTP2InitialConnectionWindowSize = n
	c.logger.Debug("option", "name", "http2_initial_connection_window_size", "value", n)
}

func (c *Context) SetHTTP2AdaptiveWindow(v bool) {
	c.mustConfigure("SetHTTP2AdaptiveWindow")
	c.settings.HTTP2AdaptiveWindow = v
	c.logger.Debug("option", "name", "http2_adaptive_window", "value", v)
}

func (c *Context) SetHTTP2MaxFrameSize(n uint32) {
	c.mustConfigure("SetHTTP2MaxFrameSize")
	c.settings.HTTP2MaxFrameSize = n
	c.logger.Debug("option", "name", "http2_max_frame_size", "value", n)
}

// SetHTTP2KeepAliveInterval sets how long a connection may stay silent
// before a PING is sent.
func (c *Context) SetHTTP2KeepAliveInterval(d time.Duration) {
	c.mustConfigure("SetHTTP2KeepAliveInterval")
	c.settings.HTTP2KeepAliveInterval = d
	c.logger.Debug("option", "name", "http2_keep_alive_interval", "value", d)
}

func (c *Context) SetHTTP2KeepAliveTimeout(d time.Duration) {
	c.mustConfigure("SetHTTP2KeepAliveTimeout")
	c.settings.HTTP2KeepAliveTimeout = d
	c.logger.Debug("option", "name", "http2_keep_alive_timeout", "value", d)
}

func (c *Context) SetHTTP2KeepAliveWhileIdle(v bool) {
	c.mustConfigure("SetHTTP2KeepAliveWhileIdle")
	c.settings.HTTP2KeepAliveWhileIdle = v
	c.logger.Debug("option", "name", "http2_keep_alive_while_idle", "value", v)
}

func (c *Context) SetHTTP2MaxConcurrentResetStreams(n int) {
	c.mustConfigure("SetHTTP2MaxConcurrentResetStreams")
	c.settings.HTTP2MaxConcurrentResetStreams = n
	c.logger.Debug("option", "name", "http2_max_concurrent_reset_streams", "value", n)
}

func (c *Context) SetHTTP2MaxSendBufferSize(n int) {
	c.mustConfigure("SetHTTP2MaxSendBufferSize")
	c.settings.HTTP2MaxSendBufferSize = n
	c.logger.Debug("option", "name", "http2_max_send_buffer_size", "value", n)
}

func (c *Context) SetHTTP2InitialMaxSendStreams(n int) {
	c.mustConfigure("SetHTTP2InitialMaxSendStreams")
	c.settings.HTTP2InitialMaxSendStreams = n
	c.logger.Debug("option", "name", "http2_initial_max_send_streams", "value", n)
}

// SetUnixDomainSocketPath routes every request of this Context over the unix
// socket at path instead of TCP. TLS is not used on that channel.
func (c *Context) SetUnixDomainSocketPath(path string) {
	c.mustConfigure("SetUnixDomainSocketPath")
	c.settings.UnixDomainSocketPath = path
	c.logger.Debug("option", "name", "unix_domain_socket_path", "value", path)
}

// Settings returns a copy of the accumulated plain-value settings.
func (c *Context) Settings() Settings {
	s := c.settings
	if s.Throttle != nil {
		t := *s.Throttle
		s.Throttle = &t
	}
	return s
}

// unenforced lists the settings that are accepted but have no counterpart in
// the transport stack.
func (s Settings) unenforced() []string {
	var names []string
	if s.HTTP2AdaptiveWindow {
		names = append(names, "http2_adaptive_window")
	}
	if s.HTTP2MaxConcurrentResetStreams > 0 {
		names = append(names, "http2_max_concurrent_reset_streams")
	}
	if s.HTTP2InitialMaxSendStreams > 0 {
		names = append(names, "http2_initial_max_send_streams")
	}
	if s.HTTP2KeepAliveInterval > 0 && !s.HTTP2KeepAliveWhileIdle {
		names = append(names, "http2_keep_alive_while_idle")
	}
	if s.HTTP2Only && (s.HTTP2InitialStreamWindowSize > 0 || s.HTTP2InitialConnectionWindowSize > 0) {
		names = append(names, "http2_initial_window_size (http2_only)")
	}
	return names
}
