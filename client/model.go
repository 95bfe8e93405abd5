package client

import (
	"net/http"
	"time"
)

// Version identifies an HTTP protocol version. The numeric values are part of
// the host boundary and must not be reordered.
type Version int32

const (
	HTTP09 Version = iota
	HTTP10
	HTTP11
	HTTP2
	HTTP3
)

func (v Version) String() string {
	switch v {
	case HTTP09:
		return "HTTP/0.9"
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	case HTTP2:
		return "HTTP/2.0"
	case HTTP3:
		return "HTTP/3.0"
	default:
		return "HTTP/unknown"
	}
}

// proto returns the Proto fields net/http uses for v.
func (v Version) proto() (string, int, int) {
	switch v {
	case HTTP09:
		return "HTTP/0.9", 0, 9
	case HTTP10:
		return "HTTP/1.0", 1, 0
	case HTTP2:
		return "HTTP/2.0", 2, 0
	case HTTP3:
		return "HTTP/3.0", 3, 0
	default:
		return "HTTP/1.1", 1, 1
	}
}

// versionOf maps a response's protocol numbers onto a Version.
func versionOf(resp *http.Response) Version {
	switch {
	case resp.ProtoMajor == 3:
		return HTTP3
	case resp.ProtoMajor == 2:
		return HTTP2
	case resp.ProtoMajor == 1 && resp.ProtoMinor == 0:
		return HTTP10
	case resp.ProtoMajor == 0:
		return HTTP09
	default:
		return HTTP11
	}
}

// CompletionReason is the terminal outcome of a request.
type CompletionReason int32

const (
	Success CompletionReason = iota
	Error
	Aborted
)

func (r CompletionReason) String() string {
	switch r {
	case Success:
		return "success"
	case Error:
		return "error"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// WriteResult is the outcome of a non-blocking request body write.
type WriteResult int32

const (
	// WriteSuccess means the chunk was enqueued.
	WriteSuccess WriteResult = iota
	// WriteFull means the outbound queue is at capacity; back off and retry.
	WriteFull
	// WriteAlreadyCompleted means the body was already half-closed, or never opened.
	WriteAlreadyCompleted
)

func (r WriteResult) String() string {
	switch r {
	case WriteSuccess:
		return "success"
	case WriteFull:
		return "full"
	case WriteAlreadyCompleted:
		return "already completed"
	default:
		return "unknown"
	}
}

// Callbacks are invoked from executor goroutines for every request spawned
// by a Context. They must not block indefinitely.
//
// OnData's buf is only valid for the duration of the call; copy it to retain it.
type Callbacks struct {
	OnHeaders  func(seq int32, state any, statusCode int, version Version)
	OnData     func(seq int32, state any, buf []byte)
	OnComplete func(seq int32, state any, reason CompletionReason, protocolErrorCode uint32)
}

// VerifyFunc makes a per-connection trust decision for a server certificate.
// leaf is the DER encoding of the end-entity certificate.
type VerifyFunc func(serverName string, leaf []byte, now time.Time) bool

// HeaderField is a single name/value pair. Duplicated names are kept as
// separate fields, in arrival order.
type HeaderField struct {
	Name  string
	Value string
}
