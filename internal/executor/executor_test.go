package executor

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRunSuccess(t *testing.T) {
	sh := NewShell()

	result, err := sh.Run(context.Background(), "echo hello", Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", string(result.Output))
	assert.False(t, result.Truncated)
}

func TestShellRunNonZeroExit(t *testing.T) {
	sh := NewShell()

	result, err := sh.Run(context.Background(), "exit 3", Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
}

func TestShellRunCapturesStderr(t *testing.T) {
	sh := NewShell()

	result, err := sh.Run(context.Background(), "echo oops 1>&2; exit 1", Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, string(result.Output), "oops")
}

func TestShellRunEnv(t *testing.T) {
	sh := NewShell()

	result, err := sh.Run(context.Background(), "echo $TESSERA_OS/$TESSERA_TOOLCHAIN", Options{
		Env: []string{"TESSERA_OS=linux", "TESSERA_TOOLCHAIN=nightly"},
	})
	require.NoError(t, err)
	assert.Equal(t, "linux/nightly\n", string(result.Output))
}

func TestShellRunDir(t *testing.T) {
	dir := t.TempDir()
	sh := NewShell()

	result, err := sh.Run(context.Background(), "pwd", Options{Dir: dir})
	require.NoError(t, err)
	assert.Contains(t, string(result.Output), dir)
}

func TestShellRunCanceledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sh := NewShell()
	result, err := sh.Run(ctx, "echo never", Options{})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, -1, result.ExitCode)
}

func TestShellRunTimeout(t *testing.T) {
	sh := &Shell{Grace: 100 * time.Millisecond}

	start := time.Now()
	result, err := sh.Run(context.Background(), "sleep 30", Options{
		Timeout: 100 * time.Millisecond,
	})

	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, -1, result.ExitCode)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestShellRunMirror(t *testing.T) {
	sh := NewShell()

	var mirror bytes.Buffer
	result, err := sh.Run(context.Background(), "echo live", Options{Mirror: &mirror})
	require.NoError(t, err)

	assert.Equal(t, "live\n", string(result.Output))
	assert.Equal(t, "live\n", mirror.String())
}

func TestShellRunMirrorOutlivesQuota(t *testing.T) {
	sh := NewShell()

	var mirror bytes.Buffer
	result, err := sh.Run(context.Background(), "printf 'aaaaaaaaaa'", Options{
		OutputLimit: 4,
		Mirror:      &mirror,
	})
	require.NoError(t, err)

	// Capture is clamped at the quota; the live mirror keeps flowing.
	assert.Equal(t, "aaaa", string(result.Output))
	assert.True(t, result.Truncated)
	assert.Equal(t, "aaaaaaaaaa", mirror.String())
}

func TestShellRunOutputLimit(t *testing.T) {
	sh := NewShell()

	result, err := sh.Run(context.Background(), "printf 'aaaaaaaaaa'", Options{
		OutputLimit: 4,
	})
	require.NoError(t, err)

	assert.Equal(t, "aaaa", string(result.Output))
	assert.True(t, result.Truncated)
}

func TestQuotaWriterDefaultLimit(t *testing.T) {
	w := newQuotaWriter(0)
	assert.Equal(t, int64(DefaultOutputLimit), w.limit)
}

func TestQuotaWriterTruncation(t *testing.T) {
	w := newQuotaWriter(5)

	n, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = w.Write([]byte("defgh"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, "abcde", string(w.Bytes()))
	assert.True(t, w.Truncated())
	assert.Equal(t, int64(8), w.TotalWritten())
}

func TestQuotaWriterUnlimited(t *testing.T) {
	w := newQuotaWriter(-1)

	_, err := w.Write([]byte("anything goes here"))
	require.NoError(t, err)
	assert.False(t, w.Truncated())
	assert.Equal(t, "anything goes here", string(w.Bytes()))
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("sink gone") }

func TestTeeWriterSwallowsMirrorErrors(t *testing.T) {
	sink := newQuotaWriter(0)
	tw := &teeWriter{sink: sink, mirror: brokenWriter{}}

	n, err := tw.Write([]byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "payload", string(sink.Bytes()))
}
