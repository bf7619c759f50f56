package engine

import (
	"bytes"
	"io"
	"sync"
)

// prefixWriter tags each line of step output with its cell key so
// interleaved logs from parallel cells stay attributable. Lines are
// written whole under a lock shared by all of a run's cells; partial
// lines are held back until their newline arrives or Flush is called.
type prefixWriter struct {
	mu     *sync.Mutex
	dst    io.Writer
	prefix string
	buf    []byte
}

func newPrefixWriter(dst io.Writer, mu *sync.Mutex, prefix string) *prefixWriter {
	return &prefixWriter{mu: mu, dst: dst, prefix: prefix}
}

// Write buffers p and emits every completed line. It never reports an
// error; a broken log sink must not fail the step producing the output.
func (w *prefixWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			return len(p), nil
		}
		w.writeLine(w.buf[:i+1])
		w.buf = w.buf[i+1:]
	}
}

// Flush emits any buffered partial line, newline-terminated. Called
// when the cell finishes so trailing output without a newline still
// lands.
func (w *prefixWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return
	}
	w.writeLine(append(w.buf, '\n'))
	w.buf = nil
}

func (w *prefixWriter) writeLine(line []byte) {
	_, _ = io.WriteString(w.dst, w.prefix)
	_, _ = w.dst.Write(line)
}
