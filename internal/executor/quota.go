package executor

import (
	"io"
	"sync"
)

// DefaultOutputLimit caps captured step output at 4 MiB. Steps that
// write more keep running; the excess is dropped and the result is
// marked truncated. The cap bounds store row size rather than the
// step's own behavior.
const DefaultOutputLimit = 4 << 20

// quotaWriter captures writes up to a byte limit and counts the rest.
// Write never returns an error so the child process is not killed by a
// broken pipe when the quota is reached.
type quotaWriter struct {
	mu        sync.Mutex
	buf       []byte
	limit     int64
	written   int64
	truncated bool
}

func newQuotaWriter(limit int64) *quotaWriter {
	if limit == 0 {
		limit = DefaultOutputLimit
	}
	return &quotaWriter{limit: limit}
}

func (w *quotaWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written += int64(len(p))
	if w.limit < 0 {
		w.buf = append(w.buf, p...)
		return len(p), nil
	}

	remaining := w.limit - int64(len(w.buf))
	switch {
	case remaining >= int64(len(p)):
		w.buf = append(w.buf, p...)
	case remaining > 0:
		w.buf = append(w.buf, p[:remaining]...)
		w.truncated = true
	default:
		w.truncated = true
	}
	return len(p), nil
}

// Bytes returns the captured output. The returned slice is owned by
// the writer; callers must not retain it past the writer's lifetime.
func (w *quotaWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf
}

// Truncated reports whether any output was dropped.
func (w *quotaWriter) Truncated() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.truncated
}

// TotalWritten reports the total bytes the command produced, including
// dropped bytes. Used for diagnostics.
func (w *quotaWriter) TotalWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// teeWriter feeds the capture sink and mirrors to a live log writer.
// Mirror errors are dropped for the same reason quotaWriter never
// errors: the child's writes must always succeed.
type teeWriter struct {
	sink   *quotaWriter
	mirror io.Writer
}

func (t *teeWriter) Write(p []byte) (int, error) {
	n, _ := t.sink.Write(p)
	_, _ = t.mirror.Write(p)
	return n, nil
}
