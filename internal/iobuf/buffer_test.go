package iobuf

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func setNonblock(t *testing.T, f *os.File) error {
	t.Helper()
	return unix.SetNonblock(int(f.Fd()), true)
}

func TestWriteFetchPeek(t *testing.T) {
	t.Parallel()
	b := New()
	_, err := b.Write([]byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, 11, b.Len())

	assert.Equal(t, []byte("hel"), b.Peek(3))
	assert.Equal(t, 11, b.Len(), "Peek must not discard")

	assert.Equal(t, []byte("hello"), b.Fetch(5))
	assert.Equal(t, 6, b.Len())
	assert.Equal(t, []byte(" world"), b.Bytes())
}

func TestFind(t *testing.T) {
	t.Parallel()
	b := New()
	_, _ = b.Write([]byte("GET / HTTP/1.0\r\n\r\n"))
	idx := b.Find('\n', b.Len())
	assert.Equal(t, 15, idx)
	assert.Equal(t, -1, b.Find('Z', b.Len()))
}

func TestReset(t *testing.T) {
	t.Parallel()
	b := New()
	_, _ = b.Write([]byte("data"))
	b.Reset()
	assert.Equal(t, 0, b.Len())
}

func TestReadFromFDNonBlockingEmptyPipe(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	require.NoError(t, setNonblock(t, r))

	b := New()
	n, eof, err := b.ReadFromFD(int(r.Fd()), 64)
	assert.Equal(t, 0, n)
	assert.False(t, eof)
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestReadFromFDReadsWrittenBytes(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()
	require.NoError(t, setNonblock(t, r))

	_, err = w.Write([]byte("payload"))
	require.NoError(t, err)

	b := New()
	n, eof, err := b.ReadFromFD(int(r.Fd()), 64)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.False(t, eof)
	assert.Equal(t, "payload", string(b.Bytes()))
}

func TestReadFromFDReportsEOF(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, setNonblock(t, r))
	require.NoError(t, w.Close())

	b := New()
	n, eof, err := b.ReadFromFD(int(r.Fd()), 64)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, eof)
}

func TestFlushToFDWritesAndDiscards(t *testing.T) {
	t.Parallel()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	b := New()
	_, _ = b.Write([]byte("flushme"))
	n, err := b.FlushToFD(int(w.Fd()), b.Len())
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, 0, b.Len())

	got := make([]byte, 7)
	_, err = r.Read(got)
	require.NoError(t, err)
	assert.Equal(t, "flushme", string(got))
}

func TestFlushToFDZeroLengthIsNoop(t *testing.T) {
	t.Parallel()
	b := New()
	n, err := b.FlushToFD(1, 0)
	assert.NoError(t, err)
	assert.Equal(t, 0, n)
}
