package sink

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
	"time"
)

var (
	ErrContentLengthMismatch = errors.New("content length mismatch")
	ErrChecksumMismatch      = errors.New("checksum mismatch")
)

// Error is returned by Commit when the received body fails a check.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Option configures a File.
type Option func(*options) error

type options struct {
	checksum      *checksumVerifier
	progressEvery time.Duration
	expected      int64
}

// WithChecksum verifies the body against the hex-encoded digest expected
// computed with h.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}
		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: strings.ToLower(expected)}
		return nil
	}
}

// WithProgress logs transfer progress at most once per interval. A zero
// interval means once per second.
func WithProgress(interval time.Duration) Option {
	return func(opts *options) error {
		if interval < 0 {
			return errors.New("progress interval must not be negative")
		}
		if interval == 0 {
			interval = time.Second
		}
		opts.progressEvery = interval
		return nil
	}
}

// WithExpectedLength fails Commit when the body length differs from n.
func WithExpectedLength(n int64) Option {
	return func(opts *options) error {
		opts.expected = n
		return nil
	}
}

type checksumVerifier struct {
	hash     hash.Hash
	expected string
}

func (v *checksumVerifier) Write(p []byte) (int, error) {
	return v.hash.Write(p)
}

func (v *checksumVerifier) Verify() error {
	if v == nil {
		return nil
	}

	actual := hex.EncodeToString(v.hash.Sum(nil))
	if actual != v.expected {
		return &Error{
			Err:    ErrChecksumMismatch,
			Detail: fmt.Sprintf("expected %s, got %s", v.expected, actual),
		}
	}

	return nil
}
