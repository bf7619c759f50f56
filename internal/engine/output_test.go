package engine

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrefixWriterEmitsWholeLines(t *testing.T) {
	var dst bytes.Buffer
	var mu sync.Mutex
	pw := newPrefixWriter(&dst, &mu, "linux/stable | ")

	pw.Write([]byte("compil"))
	assert.Empty(t, dst.String(), "partial line must be held back")

	pw.Write([]byte("ing v1.2\ntesting"))
	assert.Equal(t, "linux/stable | compiling v1.2\n", dst.String())

	pw.Write([]byte(" all\n"))
	assert.Equal(t, "linux/stable | compiling v1.2\nlinux/stable | testing all\n", dst.String())
}

func TestPrefixWriterSplitsBatchedLines(t *testing.T) {
	var dst bytes.Buffer
	var mu sync.Mutex
	pw := newPrefixWriter(&dst, &mu, "k | ")

	n, err := pw.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)
	assert.Equal(t, "k | one\nk | two\nk | three\n", dst.String())
}

func TestPrefixWriterFlushTerminatesPartialLine(t *testing.T) {
	var dst bytes.Buffer
	var mu sync.Mutex
	pw := newPrefixWriter(&dst, &mu, "osx/beta | ")

	pw.Write([]byte("no trailing newline"))
	pw.Flush()

	assert.Equal(t, "osx/beta | no trailing newline\n", dst.String())
}

func TestPrefixWriterFlushWithoutBufferedData(t *testing.T) {
	var dst bytes.Buffer
	var mu sync.Mutex
	pw := newPrefixWriter(&dst, &mu, "p | ")

	pw.Flush()
	assert.Empty(t, dst.String())
}

func TestPrefixWriterConcurrentCellsKeepLinesIntact(t *testing.T) {
	var dst bytes.Buffer
	var mu sync.Mutex

	var wg sync.WaitGroup
	for _, prefix := range []string{"a | ", "b | "} {
		pw := newPrefixWriter(&dst, &mu, prefix)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				pw.Write([]byte("tick tock tick tock\n"))
			}
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(dst.String(), "\n"), "\n")
	require.Len(t, lines, 100)
	for _, line := range lines {
		assert.Regexp(t, `^[ab] \| tick tock tick tock$`, line)
	}
}
