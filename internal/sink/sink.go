// Package sink writes a streamed response body to disk. Chunks land in a
// temp file next to the destination, which is renamed into place on Commit
// and removed on Discard.
package sink

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// File receives response body chunks for one request. Write is meant to be
// called from the request's data callback, which never runs concurrently
// with itself for one request.
type File struct {
	dest   string
	logger *slog.Logger
	file   *os.File
	w      io.Writer
	n      int64

	checksum *checksumVerifier
	progress *progressWriter
	expected int64
}

// Create opens a temp file beside dest. A nil logger falls back to
// slog.Default.
func Create(dest string, logger *slog.Logger, optFns ...Option) (*File, error) {
	opts := options{expected: -1}
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.CreateTemp(filepath.Dir(dest), ".httpengine-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	f := &File{
		dest:     dest,
		logger:   logger,
		file:     file,
		w:        file,
		checksum: opts.checksum,
		expected: opts.expected,
	}

	if f.checksum != nil {
		f.w = io.MultiWriter(f.w, f.checksum)
	}
	if opts.progressEvery > 0 {
		f.progress = newProgressWriter(f.w, logger.With("dest", dest), opts.progressEvery, opts.expected)
		f.w = f.progress
	}

	return f, nil
}

// SetExpectedLength records the length announced by the response headers.
// A negative n disables the length check.
func (f *File) SetExpectedLength(n int64) {
	f.expected = n
	if f.progress != nil {
		f.progress.total = n
	}
}

func (f *File) Write(p []byte) (int, error) {
	n, err := f.w.Write(p)
	f.n += int64(n)
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", f.file.Name(), err)
	}
	return n, nil
}

// Written returns the number of bytes accepted so far.
func (f *File) Written() int64 {
	return f.n
}

// Commit verifies length and checksum, then moves the temp file to its
// destination. The temp file is removed when any step fails.
func (f *File) Commit() error {
	var successful bool
	defer func() {
		if !successful {
			f.Discard()
		}
	}()

	if f.expected >= 0 && f.n != f.expected {
		return &Error{
			Err:    ErrContentLengthMismatch,
			Detail: fmt.Sprintf("expected %d bytes, got %d", f.expected, f.n),
		}
	}

	if err := f.checksum.Verify(); err != nil {
		return err
	}

	if err := f.file.Sync(); err != nil {
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(f.file.Name(), f.dest); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	successful = true
	f.logger.Debug("sink committed", "path", f.dest, "bytes", f.n)

	return nil
}

// Discard closes and removes the temp file.
func (f *File) Discard() {
	if err := f.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		f.logger.Error("closing temp file", "error", err)
	}
	if err := os.Remove(f.file.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
		f.logger.Error("failed to remove temp file", "error", err)
	}
}
