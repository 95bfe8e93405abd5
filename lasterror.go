package httpengine

import (
	"log/slog"
	"sync"
)

// lastError is the single pending error message reported by GetLastError.
// A new error overwrites one that has not been read yet.
var lastError struct {
	mu  sync.Mutex
	msg []byte
}

func setLastError(op string, err error) {
	lastError.mu.Lock()
	lastError.msg = []byte(err.Error())
	lastError.mu.Unlock()

	slog.Debug("last error", "op", op, "error", err)
}

// GetLastError returns the message of the most recent failed boundary call
// and clears it. It returns nil when no error is pending. The slot is shared
// by the whole process, so host threads calling concurrently can read or
// clear each other's message.
func GetLastError() []byte {
	lastError.mu.Lock()
	defer lastError.mu.Unlock()

	msg := lastError.msg
	lastError.msg = nil

	return msg
}
