// Package iobuf implements the byte-buffer abstraction spec.md lists as
// an external collaborator (C1): a FIFO octet queue with bounded-size
// non-blocking fd drains. Nothing else in this module provides one, so
// this is the concrete instance the rest of the engine consumes.
package iobuf

import (
	"errors"
	"bytes"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock mirrors spec.md §7: a non-blocking syscall returned
// EAGAIN/EWOULDBLOCK. Callers swallow it and return success/no-effect.
var ErrWouldBlock = errors.New("iobuf: would block")

// Buffer is an owned, growable FIFO octet queue. The zero value is a
// usable empty buffer.
type Buffer struct {
	buf bytes.Buffer
}

// New returns an empty buffer.
func New() *Buffer { return &Buffer{} }

// Len returns the number of unread octets currently queued.
func (b *Buffer) Len() int { return b.buf.Len() }

// Write appends n bytes to the buffer (the wire library's `write`).
func (b *Buffer) Write(p []byte) (int, error) { return b.buf.Write(p) }

// Fetch returns a copy of up to n bytes from the front of the buffer
// and discards them from the queue (the wire library's `fetch`).
func (b *Buffer) Fetch(n int) []byte {
	if n > b.buf.Len() {
		n = b.buf.Len()
	}
	out := make([]byte, n)
	_, _ = b.buf.Read(out)
	return out
}

// Peek returns up to n bytes from the front of the buffer without
// discarding them.
func (b *Buffer) Peek(n int) []byte {
	all := b.buf.Bytes()
	if n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Find scans the buffered bytes for the first occurrence of token
// within the first n bytes, returning its offset or -1 (the wire
// library's `scan_for_token`).
func (b *Buffer) Find(token byte, n int) int {
	data := b.Peek(n)
	for i, c := range data {
		if c == token {
			return i
		}
	}
	return -1
}

// ReadFromFD performs one non-blocking read of at most atMost bytes
// from fd, appending whatever arrived to the buffer. eof reports
// whether the peer closed its write side. ErrWouldBlock is returned
// (and swallowed by eof=false, n=0) when the socket has nothing ready.
func (b *Buffer) ReadFromFD(fd int, atMost int) (n int, eof bool, err error) {
	if atMost <= 0 {
		return 0, false, nil
	}
	tmp := make([]byte, atMost)
	nr, err := unix.Read(fd, tmp)
	switch {
	case err == unix.EAGAIN || err == unix.EWOULDBLOCK:
		return 0, false, ErrWouldBlock
	case err != nil:
		return 0, false, err
	case nr == 0:
		return 0, true, nil
	}
	b.buf.Write(tmp[:nr])
	return nr, false, nil
}

// FlushToFD writes up to flushLen bytes from the front of the buffer
// to fd, non-blocking, returning the count actually written. The
// caller advances its own flush-length bookkeeping (outbuf_flushlen)
// by the returned count.
func (b *Buffer) FlushToFD(fd int, flushLen int) (n int, err error) {
	if flushLen <= 0 || b.buf.Len() == 0 {
		return 0, nil
	}
	if flushLen > b.buf.Len() {
		flushLen = b.buf.Len()
	}
	data := b.buf.Bytes()[:flushLen]
	nw, werr := unix.Write(fd, data)
	switch {
	case werr == unix.EAGAIN || werr == unix.EWOULDBLOCK:
		return 0, ErrWouldBlock
	case werr != nil:
		return 0, werr
	}
	if nw > 0 {
		b.discard(nw)
	}
	return nw, nil
}

// discard drops the first n bytes from the queue after a successful
// flush, without touching the bytes that remain.
func (b *Buffer) discard(n int) {
	remaining := b.buf.Bytes()
	if n >= len(remaining) {
		b.buf.Reset()
		return
	}
	rest := make([]byte, len(remaining)-n)
	copy(rest, remaining[n:])
	b.buf.Reset()
	b.buf.Write(rest)
}

// Bytes returns the buffer's current contents without discarding them.
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

// Reset discards all buffered bytes.
func (b *Buffer) Reset() { b.buf.Reset() }
