package client

import (
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

var errKeyMismatch = errors.New("client certificate does not match the private key")

// parseCertificates decodes every CERTIFICATE block in data and returns the
// ones that parse. Other block types and malformed certificates are skipped.
func parseCertificates(data []byte) []*x509.Certificate {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return certs
		}
		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			continue
		}
		certs = append(certs, cert)
	}
}

// parsePrivateKeys decodes PKCS#8, PKCS#1 and SEC 1 private keys from data.
func parsePrivateKeys(data []byte) []crypto.PrivateKey {
	var keys []crypto.PrivateKey
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return keys
		}

		var (
			key crypto.PrivateKey
			err error
		)
		switch block.Type {
		case "PRIVATE KEY":
			key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		case "RSA PRIVATE KEY":
			key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			key, err = x509.ParseECPrivateKey(block.Bytes)
		default:
			continue
		}
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
}

// tlsConfig turns the accumulated trust settings into a client TLS config.
// A custom verifier wins over skip-verification, which wins over the
// standard trust store.
func (c *Context) tlsConfig() (*tls.Config, error) {
	conf := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.settings.ServerNameOverride,
	}

	switch {
	case c.verifier != nil:
		verify := c.verifier
		conf.InsecureSkipVerify = true
		conf.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("tls: server presented no certificate")
			}
			if !verify(cs.ServerName, cs.PeerCertificates[0].Raw, time.Now()) {
				return fmt.Errorf("tls: certificate for %q rejected by verifier", cs.ServerName)
			}
			return nil
		}
		c.logger.Debug("tls", "verifier", "custom")

	case c.settings.SkipCertificateVerification:
		conf.InsecureSkipVerify = true
		c.logger.Warn("tls", "verifier", "none", "msg", "server certificates are not verified")

	default:
		if len(c.roots) > 0 {
			pool := x509.NewCertPool()
			for _, cert := range c.roots {
				pool.AddCert(cert)
			}
			conf.RootCAs = pool
		}
		c.logger.Debug("tls", "verifier", "webpki", "roots", len(c.roots))
	}

	switch {
	case len(c.clientCerts) > 0 && c.clientKey != nil:
		cert, err := clientCertificate(c.clientCerts, c.clientKey)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
		c.logger.Debug("tls", "client_auth", true, "chain", len(c.clientCerts))

	case len(c.clientCerts) > 0 || c.clientKey != nil:
		c.logger.Warn("tls", "client_auth", false, "msg", "client auth needs both certificates and a key")
	}

	return conf, nil
}

func clientCertificate(chain []*x509.Certificate, key crypto.PrivateKey) (tls.Certificate, error) {
	signer, ok := key.(crypto.Signer)
	if !ok {
		return tls.Certificate{}, fmt.Errorf("client auth: unsupported key type %T", key)
	}

	pub, ok := chain[0].PublicKey.(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(signer.Public()) {
		return tls.Certificate{}, fmt.Errorf("client auth: %w", errKeyMismatch)
	}

	cert := tls.Certificate{
		PrivateKey: key,
		Leaf:       chain[0],
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}

	return cert, nil
}
