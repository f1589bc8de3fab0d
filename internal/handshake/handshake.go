// Package handshake implements the TLS handshake driver (C7, §4.4):
// starting and continuing the handshake across readiness events, and
// verifying the peer once it completes.
package handshake

import (
	"crypto/tls"
	"fmt"
	"net"

	"relaylink/internal/connrec"
	"relaylink/internal/netio"
	"relaylink/internal/router"
	"relaylink/internal/tlslink"
)

// ErrTLSFailed is the sentinel spec.md's error table names for every
// handshake failure path: TLS error, close, invalid cert, key
// mismatch, or unknown router.
var ErrTLSFailed = fmt.Errorf("handshake: tls failed")

// Driver owns the poller used to adjust read/write interest as the
// handshake progresses, the directory used for peer verification, and
// the local role and defaults the §4.4 table keys off of.
type Driver struct {
	Poller    *netio.Poller
	Directory router.Directory

	// IsRelay reflects the OnionRouter config option: whether *we* are
	// a relay (vs. a pure client). This selects the "Local role" row of
	// §4.4's table and is independent of whether this particular
	// connection was dialed or accepted.
	IsRelay bool

	DefaultClientBW uint32

	// IsDuplicateOrLink reports whether an OR-Open link to (addr, port)
	// already exists, for the accepted-relay-peer duplicate check.
	IsDuplicateOrLink func(addr uint32, port uint16) bool

	// NotifyCircuitReady implements circuit_n_conn_open: the circuit
	// layer is told a client-dialed relay link is ready for use.
	NotifyCircuitReady func(c *connrec.Conn)
}

// StartHandshake creates a TLS session bound to raw, sets state
// Handshaking, registers read interest, and kicks off Continue once
// (§4.4 "Start"). weDialed distinguishes the dial-vs-accept role used
// by finish's duplicate/mismatch checks below.
func (d *Driver) StartHandshake(c *connrec.Conn, raw net.Conn, cfg *tls.Config, weDialed bool) error {
	if err := c.SetState(connrec.StateHandshaking); err != nil {
		return err
	}
	c.TLS = tlslink.New(raw, cfg, !weDialed)
	if c.HasPoll {
		if err := d.Poller.SetInterest(c.PollToken, true, false); err != nil {
			return fmt.Errorf("handshake: conn %d: %w", c.ID, err)
		}
	}
	c.TLS.StartHandshake()
	_, err := d.Continue(c)
	return err
}

// Continue drives the handshake forward one step (§4.4 "Continue"),
// mapping the TLS result to the documented actions and returning
// whether the connection is now Open.
func (d *Driver) Continue(c *connrec.Conn) (opened bool, err error) {
	switch c.TLS.ContinueHandshake() {
	case tlslink.ResultError, tlslink.ResultClose:
		c.MarkForClose()
		return false, ErrTLSFailed
	case tlslink.ResultWantRead:
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, true, false)
		}
		return false, nil
	case tlslink.ResultWantWrite:
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, true, true)
		}
		return false, nil
	case tlslink.ResultDone:
		return d.finish(c)
	}
	return false, nil
}

// finish implements §4.4 "Finish": transition to Open, reset poll
// interest to read-only, and verify the peer by local role per the
// table in §4.4.
func (d *Driver) finish(c *connrec.Conn) (bool, error) {
	if err := c.SetState(connrec.StateOpen); err != nil {
		return false, err
	}
	if c.HasPoll {
		if err := d.Poller.SetInterest(c.PollToken, true, false); err != nil {
			return false, err
		}
	}

	hasCert := c.TLS.PeerHasCert()

	switch {
	case d.IsRelay && hasCert:
		return d.finishRelayWithCert(c)
	case d.IsRelay && !hasCert:
		// Peer is a client (OP): no identity verification.
		c.Bandwidth = d.DefaultClientBW
		c.ReceiverBucket = int64(d.DefaultClientBW)
		return true, nil
	case !d.IsRelay && hasCert:
		return d.finishClientWithCert(c)
	default: // !d.IsRelay && !hasCert
		// A client connecting outbound requires a server cert.
		c.MarkForClose()
		return false, ErrTLSFailed
	}
}

func (d *Driver) finishRelayWithCert(c *connrec.Conn) (bool, error) {
	linkKey := c.TLS.PeerCert().RawSubjectPublicKeyInfo
	info, known := d.Directory.GetByLinkPK(linkKey)

	if !c.TLS.Receiving() {
		// We dialed this peer ourselves.
		if c.DialedLinkPKey != nil && !bytesEqual(c.DialedLinkPKey, linkKey) {
			c.MarkForClose()
			d.Directory.SetDirty()
			return false, ErrTLSFailed
		}
	} else if d.IsDuplicateOrLink != nil && d.IsDuplicateOrLink(c.Addr, c.Port) {
		c.MarkForClose()
		d.Directory.SetDirty()
		return false, ErrTLSFailed
	}

	if known {
		c.RouterKeys = connrec.RouterKeys{
			Nickname:     info.Nickname,
			IdentityPKey: info.IdentityPKey,
			LinkPKey:     info.LinkPKey,
			OnionPKey:    info.OnionPKey,
		}
		c.Bandwidth = info.Bandwidth
		c.ReceiverBucket = int64(info.Bandwidth)
	}
	return true, nil
}

func (d *Driver) finishClientWithCert(c *connrec.Conn) (bool, error) {
	linkKey := c.TLS.PeerCert().RawSubjectPublicKeyInfo
	info, known := d.Directory.GetByLinkPK(linkKey)

	if c.DialedLinkPKey != nil && !bytesEqual(c.DialedLinkPKey, linkKey) {
		c.MarkForClose()
		d.Directory.SetDirty()
		return false, ErrTLSFailed
	}
	if known {
		c.RouterKeys = connrec.RouterKeys{
			Nickname:     info.Nickname,
			IdentityPKey: info.IdentityPKey,
			LinkPKey:     info.LinkPKey,
			OnionPKey:    info.OnionPKey,
		}
	}
	c.Bandwidth = d.DefaultClientBW
	c.ReceiverBucket = int64(d.DefaultClientBW)
	if d.NotifyCircuitReady != nil {
		d.NotifyCircuitReady(c)
	}
	return true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
