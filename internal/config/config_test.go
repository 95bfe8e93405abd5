package config_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/adamwoolhether/httpengine/client"
	"github.com/adamwoolhether/httpengine/client/throttle"
	"github.com/adamwoolhether/httpengine/executor"
	"github.com/adamwoolhether/httpengine/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// certPair returns a self-signed certificate and its PKCS8 key, PEM encoded.
func certPair(t *testing.T) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "config-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}
	pk, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pk})
	return string(certPEM), string(keyPEM)
}

const sample = `
log_level: debug
client:
  connect_timeout: 5s
  pool_max_idle_per_host: 4
  http2_only: true
  http2_max_frame_size: 32768
  user_agent: httpengine-test/1.0
  throttle:
    rps: 10
    burst: 5
    per_host: true
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "engine.yaml", sample)

	t.Setenv("HTTPENGINE_CLIENT_POOL_IDLE_TIMEOUT", "90s")
	t.Setenv("HTTPENGINE_CLIENT_CONNECT_TIMEOUT", "2s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	want := client.Settings{
		ConnectTimeout:     2 * time.Second,
		PoolIdleTimeout:    90 * time.Second,
		PoolMaxIdlePerHost: 4,
		HTTP2Only:          true,
		HTTP2MaxFrameSize:  32768,
		UserAgent:          "httpengine-test/1.0",
		Throttle:           &throttle.Config{RPS: 10, Burst: 5, PerHost: true},
	}
	if diff := cmp.Diff(want, cfg.Client); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("expected debug level, got %v", cfg.Level())
	}
}

func TestLoad_Discovery(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "httpengine.yml", "client:\n  http2_only: true\n")
	t.Chdir(dir)

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Client.HTTP2Only {
		t.Error("expected the discovered file to be read")
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("HTTPENGINE_CLIENT_UNIX_DOMAIN_SOCKET_PATH", "/tmp/engine.sock")
	t.Setenv("HTTPENGINE_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Client.UnixDomainSocketPath != "/tmp/engine.sock" {
		t.Errorf("expected socket path from env, got %q", cfg.Client.UnixDomainSocketPath)
	}
	if cfg.Level() != slog.LevelWarn {
		t.Errorf("expected warn level, got %v", cfg.Level())
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file", func(t *testing.T) {
		if _, err := config.Load(filepath.Join(dir, "absent.yaml")); err == nil {
			t.Fatal("expected an error for a missing explicit file")
		}
	})

	tests := []struct {
		name   string
		body   string
		fields []string
		path   string
	}{
		{"log level", "log_level: loud\n", []string{"log_level"}, "log_level"},
		{"frame size", "client:\n  http2_max_frame_size: 100\n", []string{"http2_max_frame_size"}, "client.http2_max_frame_size"},
		{"throttle", "client:\n  throttle:\n    rps: 0\n    burst: 1\n", []string{"rps"}, "client.throttle.rps"},
		{"key without cert", "tls:\n  client_key: k.pem\n", []string{"client_certificate"}, "tls.client_certificate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.yaml", tt.body)

			_, err := config.Load(path)
			var fe client.FieldErrors
			if !errors.As(err, &fe) {
				t.Fatalf("expected field errors, got %v", err)
			}
			if diff := cmp.Diff(tt.fields, fe.Fields()); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
			if fe[0].Path != tt.path {
				t.Errorf("expected path %q, got %q", tt.path, fe[0].Path)
			}
		})
	}
}

func TestConfig_Options(t *testing.T) {
	dir := t.TempDir()
	certPEM, keyPEM := certPair(t)

	cfg := config.Config{
		Client: client.Settings{HTTP2Only: true},
		TLS: config.TLS{
			RootCertificates:  []string{writeFile(t, dir, "ca.pem", certPEM)},
			ClientCertificate: writeFile(t, dir, "client.pem", certPEM),
			ClientKey:         writeFile(t, dir, "client.key", keyPEM),
		},
	}

	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}

	rt := executor.New()
	defer rt.Dispose()

	c, err := client.New(rt, client.Callbacks{}, opts...)
	if err != nil {
		t.Fatalf("applying options: %v", err)
	}
	if err := c.Build(); err != nil {
		t.Fatalf("build: %v", err)
	}
	if !c.Settings().HTTP2Only {
		t.Error("expected settings to be applied")
	}
}

func TestConfig_OptionsBadMaterial(t *testing.T) {
	dir := t.TempDir()
	junk := writeFile(t, dir, "junk.pem", "not a certificate")

	cfg := config.Config{TLS: config.TLS{RootCertificates: []string{junk}}}
	opts, err := cfg.Options()
	if err != nil {
		t.Fatalf("options: %v", err)
	}

	rt := executor.New()
	defer rt.Dispose()

	if _, err := client.New(rt, client.Callbacks{}, opts...); err == nil {
		t.Fatal("expected an error for a file without certificates")
	}

	cfg = config.Config{TLS: config.TLS{RootCertificates: []string{filepath.Join(dir, "absent.pem")}}}
	if _, err := cfg.Options(); err == nil {
		t.Fatal("expected an error for an unreadable file")
	}
}
