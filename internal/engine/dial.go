package engine

import (
	"crypto/tls"
	"fmt"
	"net"

	"relaylink/internal/connrec"
	"relaylink/internal/dialer"
)

// pendingDial tracks an in-flight Connecting connection until its
// goroutine-backed dial resolves (§4.5, SPEC_FULL.md §5).
type pendingDial struct {
	conn *connrec.Conn
	d    *dialer.Dial
}

// DialOr implements §4.5's connect() for an OR link: create the
// connection record in state Connecting, start the non-blocking dial,
// and register it with the table. expectedLinkKey may be nil when
// dialing a peer whose identity isn't pinned yet.
func (e *Engine) DialOr(address string, addr uint32, port uint16, expectedLinkKey []byte) (*connrec.Conn, error) {
	conn, err := connrec.New(connrec.KindOr, connrec.StateConnecting)
	if err != nil {
		return nil, err
	}
	conn.DialedLinkPKey = expectedLinkKey

	if err := e.Table.Add(conn); err != nil {
		return nil, fmt.Errorf("engine: dial: %w", err)
	}

	d, _ := dialer.Start(conn, address, addr, port)
	e.pending = append(e.pending, pendingDial{conn: conn, d: d})
	return conn, nil
}

// PollDials implements the writable-readiness half of §4.5: non-
// blockingly check every in-flight dial, and for each that resolved,
// either mark it failed (hard error) or start the TLS handshake in
// client role (Connected).
func (e *Engine) PollDials() {
	if len(e.pending) == 0 {
		return
	}
	remaining := e.pending[:0]
	for _, p := range e.pending {
		res, raw, err := p.d.Poll()
		switch res {
		case dialer.ResultPending:
			remaining = append(remaining, p)
		case dialer.ResultFailed:
			e.log.Warn("dial failed", zapErr(err))
		case dialer.ResultConnected:
			e.onDialConnected(p.conn, raw)
		}
	}
	e.pending = remaining
}

func (e *Engine) onDialConnected(c *connrec.Conn, raw net.Conn) {
	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		c.MarkForClose()
		return
	}
	file, err := tcpConn.File()
	if err != nil {
		c.MarkForClose()
		return
	}
	fd := int(file.Fd())
	c.Socket = fd

	tok, err := e.Poller.Register(fd, true, false)
	if err != nil {
		c.MarkForClose()
		return
	}
	c.PollToken = tok
	c.HasPoll = true
	e.byToken[tok] = c

	if err := e.Handshake.StartHandshake(c, raw, clientTLSConfig(), true); err != nil {
		e.log.Debug("client handshake did not complete immediately", zapErr(err))
	}
}

func clientTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true, MinVersion: tls.VersionTLS12}
}
