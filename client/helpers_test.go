package client_test

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/lfq"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/adamwoolhether/httpengine/client"
	"github.com/adamwoolhether/httpengine/executor"
)

// event is one callback invocation as seen by the recorder.
type event struct {
	Kind    string
	Seq     int32
	State   any
	Status  int
	Version client.Version
	Len     int
	Reason  client.CompletionReason
	Code    uint32
}

type recorder struct {
	mu     sync.Mutex
	events []event
	body   bytes.Buffer

	// onData, when set, runs inside the data callback.
	onData func(seq int32)
}

func (rec *recorder) callbacks() client.Callbacks {
	return client.Callbacks{
		OnHeaders: func(seq int32, state any, status int, v client.Version) {
			rec.add(event{Kind: "headers", Seq: seq, State: state, Status: status, Version: v})
		},
		OnData: func(seq int32, state any, buf []byte) {
			rec.mu.Lock()
			rec.events = append(rec.events, event{Kind: "data", Seq: seq, State: state, Len: len(buf)})
			rec.body.Write(buf)
			fn := rec.onData
			rec.mu.Unlock()

			if fn != nil {
				fn(seq)
			}
		},
		OnComplete: func(seq int32, state any, reason client.CompletionReason, code uint32) {
			rec.add(event{Kind: "complete", Seq: seq, State: state, Reason: reason, Code: code})
		},
	}
}

func (rec *recorder) add(e event) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = append(rec.events, e)
}

func (rec *recorder) Events() []event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]event(nil), rec.events...)
}

func (rec *recorder) Body() []byte {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return bytes.Clone(rec.body.Bytes())
}

// reset drops everything recorded so far.
func (rec *recorder) reset() {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = nil
	rec.body.Reset()
}

// count returns how many events of kind were recorded.
func (rec *recorder) count(kind string) int {
	n := 0
	for _, e := range rec.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// terminal returns the single completion event, failing if there is not
// exactly one.
func (rec *recorder) terminal(t *testing.T) event {
	t.Helper()

	var got []event
	for _, e := range rec.Events() {
		if e.Kind == "complete" {
			got = append(got, e)
		}
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one completion, got %d: %+v", len(got), rec.Events())
	}
	return got[0]
}

// newContext returns an unsealed Context on a fresh executor.
func newContext(t *testing.T, rec *recorder, opts ...client.Option) *client.Context {
	t.Helper()

	return newContextWithCallbacks(t, rec.callbacks(), opts...)
}

func newContextWithCallbacks(t *testing.T, cb client.Callbacks, opts ...client.Option) *client.Context {
	t.Helper()

	return newContextOn(t, newExecutor(t), cb, opts...)
}

// newExecutor returns an executor disposed at cleanup.
func newExecutor(t *testing.T) *executor.Executor {
	t.Helper()

	rt := executor.New()
	t.Cleanup(rt.Dispose)

	return rt
}

// newContextOn binds a Context to an executor the test controls.
func newContextOn(t *testing.T, rt *executor.Executor, cb client.Callbacks, opts ...client.Option) *client.Context {
	t.Helper()

	c, err := client.New(rt, cb, opts...)
	if err != nil {
		t.Fatalf("creating context: %v", err)
	}

	return c
}

// newBuiltContext returns a sealed Context on a fresh executor.
func newBuiltContext(t *testing.T, rec *recorder, opts ...client.Option) *client.Context {
	t.Helper()

	c := newContext(t, rec, opts...)
	if err := c.Build(); err != nil {
		t.Fatalf("building context: %v", err)
	}

	return c
}

// newRequest creates a GET request for uri.
func newRequest(t *testing.T, c *client.Context, seq int32, uri string) *client.Request {
	t.Helper()

	r := c.NewRequest(seq)
	if err := r.SetURI(uri); err != nil {
		t.Fatalf("setting uri: %v", err)
	}
	t.Cleanup(func() {
		select {
		case <-r.Done():
		default:
			r.Abort()
		}
	})

	return r
}

func waitDone(t *testing.T, r *client.Request) {
	t.Helper()

	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("request did not complete in time")
	}
}

// skipRace skips tests that stream a request body. The race detector
// cannot see the cross-variable ordering of the lfq SPSC queue behind it.
func skipRace(tb testing.TB) {
	tb.Helper()
	if lfq.RaceEnabled {
		tb.Skip("skip: SPSC uses cross-variable memory ordering")
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()

	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// selfSigned returns a PEM certificate and PKCS#8 key for a fresh ECDSA key.
func selfSigned(t *testing.T, cn string) (certPEM, keyPEM []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshalling key: %v", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})

	return certPEM, keyPEM
}

func encodeCert(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// newResetServer starts a cleartext HTTP/2 server that answers the first
// stream with a 200, one DATA frame, and then RST_STREAM with code.
func newResetServer(t *testing.T, code http2.ErrCode) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	var (
		mu       sync.Mutex
		accepted net.Conn
	)
	done := make(chan struct{})
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		if accepted != nil {
			accepted.Close()
		}
		mu.Unlock()
		<-done
	})

	go func() {
		defer close(done)

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		mu.Lock()
		accepted = conn
		mu.Unlock()
		defer conn.Close()

		if err := serveReset(conn, code); err != nil {
			t.Logf("reset server: %v", err)
		}
	}()

	return "http://" + ln.Addr().String()
}

func serveReset(conn net.Conn, code http2.ErrCode) error {
	preface := make([]byte, len(http2.ClientPreface))
	if _, err := io.ReadFull(conn, preface); err != nil {
		return err
	}

	fr := http2.NewFramer(conn, conn)
	if err := fr.WriteSettings(); err != nil {
		return err
	}

	var streamID uint32
	for streamID == 0 {
		f, err := fr.ReadFrame()
		if err != nil {
			return err
		}
		switch f := f.(type) {
		case *http2.SettingsFrame:
			if !f.IsAck() {
				if err := fr.WriteSettingsAck(); err != nil {
					return err
				}
			}
		case *http2.HeadersFrame:
			streamID = f.StreamID
		}
	}

	var hbuf bytes.Buffer
	enc := hpack.NewEncoder(&hbuf)
	if err := enc.WriteField(hpack.HeaderField{Name: ":status", Value: "200"}); err != nil {
		return err
	}
	if err := enc.WriteField(hpack.HeaderField{Name: "content-type", Value: "text/plain"}); err != nil {
		return err
	}

	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      streamID,
		BlockFragment: hbuf.Bytes(),
		EndHeaders:    true,
	}); err != nil {
		return err
	}
	if err := fr.WriteData(streamID, false, []byte("partial")); err != nil {
		return err
	}

	time.Sleep(50 * time.Millisecond)

	if err := fr.WriteRSTStream(streamID, code); err != nil {
		return err
	}

	for {
		if _, err := fr.ReadFrame(); err != nil {
			return nil
		}
	}
}
