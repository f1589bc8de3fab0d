// Package tlslink implements the non-blocking TLS session spec.md lists
// as an external collaborator (C2). crypto/tls offers no readiness-
// polling API of its own — Handshake and Read/Write block until the
// record layer has what it needs — so Session bridges that blocking
// API to the want-read/want-write polling contract §4.4 and §4.6
// describe, by running the handshake on a dedicated goroutine and
// letting the loop thread poll its completion non-blockingly. See
// SPEC_FULL.md §5 for why this is the idiomatic Go translation rather
// than a coroutine or manual record-layer pump.
package tlslink

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"net"
	"sync"
)

// Result mirrors the five-way result set the TLS library exposes to
// the dispatcher (§4.4, §4.6, §6).
type Result int

const (
	ResultDone Result = iota
	ResultWantRead
	ResultWantWrite
	ResultError
	ResultClose
)

func (r Result) String() string {
	switch r {
	case ResultDone:
		return "done"
	case ResultWantRead:
		return "want_read"
	case ResultWantWrite:
		return "want_write"
	case ResultError:
		return "error"
	case ResultClose:
		return "close"
	default:
		return "unknown"
	}
}

// Session wraps one TLS connection. Receiving distinguishes server
// role (true, we accepted) from client role (false, we dialed).
type Session struct {
	conn      *tls.Conn
	receiving bool

	mu      sync.Mutex
	started bool
	done    chan struct{}
	hsErr   error
}

// New binds a TLS session to raw, an already-connected plain TCP
// socket. cfg supplies certificates and verification options; the
// caller decides whether cfg requests a peer certificate.
func New(raw net.Conn, cfg *tls.Config, receiving bool) *Session {
	var conn *tls.Conn
	if receiving {
		conn = tls.Server(raw, cfg)
	} else {
		conn = tls.Client(raw, cfg)
	}
	return &Session{conn: conn, receiving: receiving, done: make(chan struct{})}
}

// Receiving reports whether this session is the server side of the handshake.
func (s *Session) Receiving() bool { return s.receiving }

// StartHandshake launches the handshake goroutine exactly once.
func (s *Session) StartHandshake() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go func() {
		err := s.conn.Handshake()
		s.mu.Lock()
		s.hsErr = err
		s.mu.Unlock()
		close(s.done)
	}()
}

// ContinueHandshake polls the handshake goroutine non-blockingly and
// maps its state to the §4.4 result set.
func (s *Session) ContinueHandshake() Result {
	select {
	case <-s.done:
		s.mu.Lock()
		err := s.hsErr
		s.mu.Unlock()
		if err != nil {
			return ResultError
		}
		return ResultDone
	default:
		return ResultWantRead
	}
}

// PeerHasCert reports whether the remote presented a certificate.
// Only meaningful after ResultDone.
func (s *Session) PeerHasCert() bool {
	return len(s.conn.ConnectionState().PeerCertificates) > 0
}

// PeerCert returns the peer's leaf certificate, or nil if it presented
// none.
func (s *Session) PeerCert() *x509.Certificate {
	certs := s.conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil
	}
	return certs[0]
}

// Read performs one non-blocking-style record read. Because the
// underlying net.Conn is a real OS socket, Read may legitimately
// block the calling goroutine waiting on the kernel; the dispatcher
// only ever calls this after the poller reported readability, so in
// practice it returns promptly. Errors are mapped to the §4.4 result
// set; (n, ResultDone) on a normal read.
func (s *Session) Read(buf []byte) (n int, res Result) {
	n, err := s.conn.Read(buf)
	if err == nil {
		return n, ResultDone
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, ResultWantRead
	}
	if errors.Is(err, io.EOF) {
		return n, ResultClose
	}
	return n, ResultError
}

// Write performs one record write of up to len(p) bytes.
func (s *Session) Write(p []byte) (n int, res Result) {
	n, err := s.conn.Write(p)
	if err == nil {
		return n, ResultDone
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, ResultWantWrite
	}
	return n, ResultError
}

// Close releases the session and its underlying socket.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Raw exposes the underlying net.Conn for callers that need it (for
// example, for SyscallConn access).
func (s *Session) Raw() net.Conn { return s.conn.NetConn() }
