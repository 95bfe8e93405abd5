package echoserver

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const maxBytes = 64 << 20

// NewHandler returns the diagnostic routes, wrapped with access logging and
// panic recovery:
//
//	/echo             mirrors the request headers as X-Echo-* and the body
//	GET /bytes/{n}    streams n bytes
//	GET /trailers     sends a body followed by an X-Checksum trailer
//	GET /status/{code} answers with code
//	GET /drip         ?chunks=N&delay=D streams N chunks D apart
//	GET /reset        sends a little data, then aborts the stream
func NewHandler(log *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/echo", echo)
	mux.HandleFunc("GET /bytes/{n}", streamBytes)
	mux.HandleFunc("GET /trailers", trailers)
	mux.HandleFunc("GET /status/{code}", status)
	mux.HandleFunc("GET /drip", drip)
	mux.HandleFunc("GET /reset", reset)

	return wrapMiddleware([]Middleware{Logger(log), Panics(log)}, mux)
}

func echo(w http.ResponseWriter, r *http.Request) {
	for name, values := range r.Header {
		for _, v := range values {
			w.Header().Add("X-Echo-"+name, v)
		}
	}
	w.Header().Set("X-Request-Method", r.Method)
	w.Header().Set("X-Request-Proto", r.Proto)
	if ct := r.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}

	// HTTP/2 is always full duplex; HTTP/1 needs it switched on.
	_ = http.NewResponseController(w).EnableFullDuplex()

	w.WriteHeader(http.StatusOK)
	io.Copy(w, http.MaxBytesReader(w, r.Body, maxBytes))
}

func streamBytes(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseInt(r.PathValue("n"), 10, 64)
	if err != nil || n < 0 || n > maxBytes {
		http.Error(w, fmt.Sprintf("n must be between 0 and %d", maxBytes), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(n, 10))
	w.WriteHeader(http.StatusOK)

	chunk := make([]byte, 16*1024)
	for i := range chunk {
		chunk[i] = byte('a' + i%26)
	}
	for n > 0 {
		m := min(n, int64(len(chunk)))
		if _, err := w.Write(chunk[:m]); err != nil {
			return
		}
		n -= m
	}
}

func trailers(w http.ResponseWriter, r *http.Request) {
	body := []byte("the body precedes its checksum\n")
	sum := sha256.Sum256(body)

	w.Header().Set("Trailer", "X-Checksum")
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
	w.Header().Set("X-Checksum", hex.EncodeToString(sum[:]))
}

func status(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(r.PathValue("code"))
	if err != nil || code < 200 || code > 599 {
		http.Error(w, "code must be between 200 and 599", http.StatusBadRequest)
		return
	}

	w.WriteHeader(code)
	fmt.Fprintln(w, http.StatusText(code))
}

func drip(w http.ResponseWriter, r *http.Request) {
	chunks, delay := 5, 100*time.Millisecond
	if v := r.URL.Query().Get("chunks"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > 1000 {
			http.Error(w, "chunks must be between 0 and 1000", http.StatusBadRequest)
			return
		}
		chunks = n
	}
	if v := r.URL.Query().Get("delay"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 || d > 10*time.Second {
			http.Error(w, "delay must be a duration up to 10s", http.StatusBadRequest)
			return
		}
		delay = d
	}

	rc := http.NewResponseController(w)
	w.WriteHeader(http.StatusOK)

	for i := range chunks {
		if i > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}
		fmt.Fprintf(w, "chunk %d\n", i)
		rc.Flush()
	}
}

// reset aborts the response mid-body. HTTP/2 peers see RST_STREAM with
// INTERNAL_ERROR; HTTP/1 peers see the connection close.
func reset(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "partial")
	http.NewResponseController(w).Flush()

	panic(http.ErrAbortHandler)
}
