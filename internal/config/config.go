// Package config loads client context configuration from a YAML file and
// HTTPENGINE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/adamwoolhether/httpengine/client"
)

// Config is the file layout understood by [Load].
//
//	log_level: debug
//	client:
//	  connect_timeout: 5s
//	  http2_only: true
//	  throttle: {rps: 10, burst: 5}
//	tls:
//	  root_certificates: [/etc/ssl/internal-ca.pem]
//	  client_certificate: client.pem
//	  client_key: client.key
type Config struct {
	LogLevel string          `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	Client   client.Settings `yaml:"client" mapstructure:"client"`
	TLS      TLS             `yaml:"tls" mapstructure:"tls"`
}

// TLS names the PEM files holding certificate material. The contents are
// read by [Config.Options], not by Load.
type TLS struct {
	RootCertificates  []string `yaml:"root_certificates" mapstructure:"root_certificates" validate:"dive,required"`
	ClientCertificate string   `yaml:"client_certificate" mapstructure:"client_certificate" validate:"required_with=ClientKey"`
	ClientKey         string   `yaml:"client_key" mapstructure:"client_key" validate:"required_with=ClientCertificate"`
}

// Level maps LogLevel onto a slog level. Empty means info.
func (c *Config) Level() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options converts the configuration into client options. Certificate files
// are read here; a file that yields no certificate is an error.
func (c *Config) Options() ([]client.Option, error) {
	opts := []client.Option{client.WithSettings(c.Client)}

	for _, path := range c.TLS.RootCertificates {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading root certificates: %w", err)
		}
		opts = append(opts, named(path, client.WithRootCertificates(data)))
	}

	if c.TLS.ClientCertificate != "" {
		cert, err := os.ReadFile(c.TLS.ClientCertificate)
		if err != nil {
			return nil, fmt.Errorf("reading client certificate: %w", err)
		}
		key, err := os.ReadFile(c.TLS.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("reading client key: %w", err)
		}
		opts = append(opts, named(c.TLS.ClientCertificate, client.WithClientAuth(cert, key)))
	}

	return opts, nil
}

// named prefixes the option's error with the file it came from.
func named(path string, opt client.Option) client.Option {
	return func(c *client.Context) error {
		if err := opt(c); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}
}
