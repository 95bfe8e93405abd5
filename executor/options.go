package executor

import (
	"log/slog"
)

// Option defines optional settings for an Executor.
type Option func(*options)

type options struct {
	maxConcurrent int
	logger        *slog.Logger
}

// WithMaxConcurrent bounds the number of tasks executing at once. Tasks beyond
// the limit wait for a free slot. If n <= 0, concurrency is unlimited.
func WithMaxConcurrent(n int) Option {
	return func(opts *options) {
		opts.maxConcurrent = n
	}
}

// WithLogger injects a custom [slog.Logger] into the Executor.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}
