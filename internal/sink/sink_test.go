package sink_test

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adamwoolhether/httpengine/internal/sink"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func writeChunks(t *testing.T, f *sink.File, data []byte, size int) {
	t.Helper()

	for len(data) > 0 {
		n := min(size, len(data))
		if _, err := f.Write(data[:n]); err != nil {
			t.Fatalf("writing: %v", err)
		}
		data = data[n:]
	}
}

func tempEntries(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, ".httpengine-*"))
	if err != nil {
		t.Fatalf("globbing: %v", err)
	}
	return matches
}

func TestFile_Commit(t *testing.T) {
	data := bytes.Repeat([]byte("engine"), 1000)

	tests := []struct {
		name    string
		opts    []sink.Option
		expLen  int64
		wantErr error
	}{
		{
			name: "plain",
		},
		{
			name: "checksum and length",
			opts: []sink.Option{
				sink.WithChecksum(sha256.New(), digest(data)),
				sink.WithExpectedLength(int64(len(data))),
				sink.WithProgress(0),
			},
		},
		{
			name:    "checksum mismatch",
			opts:    []sink.Option{sink.WithChecksum(sha256.New(), digest([]byte("other")))},
			wantErr: sink.ErrChecksumMismatch,
		},
		{
			name:    "length mismatch",
			expLen:  int64(len(data)) + 1,
			wantErr: sink.ErrContentLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			dest := filepath.Join(dir, "body.bin")

			f, err := sink.Create(dest, discardLogger(), tt.opts...)
			if err != nil {
				t.Fatalf("creating sink: %v", err)
			}
			if tt.expLen != 0 {
				f.SetExpectedLength(tt.expLen)
			}

			writeChunks(t, f, data, 4096)
			if f.Written() != int64(len(data)) {
				t.Errorf("expected %d bytes written, got %d", len(data), f.Written())
			}

			err = f.Commit()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				var se *sink.Error
				if !errors.As(err, &se) || se.Detail == "" {
					t.Errorf("expected a detailed *sink.Error, got %T", err)
				}
				if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
					t.Errorf("expected no destination file after a failed commit, got %v", err)
				}
			} else {
				if err != nil {
					t.Fatalf("commit: %v", err)
				}
				got, err := os.ReadFile(dest)
				if err != nil {
					t.Fatalf("reading destination: %v", err)
				}
				if !bytes.Equal(got, data) {
					t.Errorf("destination content mismatch: %d bytes", len(got))
				}
			}

			if left := tempEntries(t, dir); len(left) != 0 {
				t.Errorf("expected temp file to be gone, found %v", left)
			}
		})
	}
}

func TestFile_Discard(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "body.bin")

	f, err := sink.Create(dest, nil)
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	f.Write([]byte("partial"))
	f.Discard()

	if _, err := os.Stat(dest); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected no destination file, got %v", err)
	}
	if left := tempEntries(t, dir); len(left) != 0 {
		t.Errorf("expected temp file to be gone, found %v", left)
	}
}

func TestOptions(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "x")

	if _, err := sink.Create(dest, nil, sink.WithChecksum(nil, "abc")); err == nil {
		t.Error("expected an error for a nil hash")
	}
	if _, err := sink.Create(dest, nil, sink.WithChecksum(sha256.New(), "")); err == nil {
		t.Error("expected an error for an empty checksum")
	}
	if _, err := sink.Create(filepath.Join(t.TempDir(), "missing", "x"), nil); err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestFile_Progress(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	dest := filepath.Join(t.TempDir(), "body.bin")
	f, err := sink.Create(dest, log, sink.WithProgress(time.Hour))
	if err != nil {
		t.Fatalf("creating sink: %v", err)
	}
	f.SetExpectedLength(300)

	writeChunks(t, f, bytes.Repeat([]byte("x"), 300), 100)
	if err := f.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	output := buf.String()
	if strings.Count(output, "msg=") != 1 {
		t.Errorf("expected a single report with a long interval, got:\n%s", output)
	}
	for _, want := range []string{`msg="body received"`, "chunks=3", "bytes=300", "total=300", "percent=100.0"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in log output: %s", want, output)
		}
	}

	if _, err := sink.Create(dest, nil, sink.WithProgress(-time.Second)); err == nil {
		t.Error("expected an error for a negative interval")
	}
}
