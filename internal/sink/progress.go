package sink

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// progressWriter counts the data callbacks that reach the sink and logs a
// summary every interval, plus once when the announced length is reached.
type progressWriter struct {
	w        io.Writer
	logger   *slog.Logger
	interval time.Duration

	chunks int
	bytes  int64
	total  int64

	start    time.Time
	lastLog  time.Time
	lastSeen int64
}

func newProgressWriter(w io.Writer, logger *slog.Logger, interval time.Duration, total int64) *progressWriter {
	now := time.Now()
	return &progressWriter{
		w:        w,
		logger:   logger,
		interval: interval,
		total:    total,
		start:    now,
		lastLog:  now,
	}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.chunks++
	pw.bytes += int64(n)

	switch {
	case pw.total >= 0 && pw.bytes == pw.total:
		pw.report("body received")
	case time.Since(pw.lastLog) >= pw.interval:
		pw.report("receiving body")
	}

	return n, err
}

// report logs totals and the rate since the previous report.
func (pw *progressWriter) report(msg string) {
	now := time.Now()
	window := now.Sub(pw.lastLog)
	rate := float64(pw.bytes-pw.lastSeen) / max(window.Seconds(), 1e-3)

	attrs := []any{
		"chunks", pw.chunks,
		"bytes", pw.bytes,
		"elapsed", now.Sub(pw.start).Round(time.Millisecond),
		"rate", fmt.Sprintf("%.2f MiB/s", rate/(1<<20)),
	}
	if pw.total > 0 {
		attrs = append(attrs, "total", pw.total, "percent", fmt.Sprintf("%.1f", float64(pw.bytes)/float64(pw.total)*100))
		if left := pw.total - pw.bytes; left > 0 && rate > 0 {
			attrs = append(attrs, "eta", time.Duration(float64(left)/rate*float64(time.Second)).Round(time.Second))
		}
	}
	pw.logger.Info(msg, attrs...)

	pw.lastLog = now
	pw.lastSeen = pw.bytes
}
