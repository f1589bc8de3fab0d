// Package listener implements the listener engine (C5, §4.3): binding,
// accepting, and instantiating child connections of the correct kind.
package listener

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"relaylink/internal/connrec"
	"relaylink/internal/conntable"
	"relaylink/internal/netio"

	"golang.org/x/sys/unix"
)

// ErrBindFailed, ErrListenFailed, and ErrTableFull mirror §4.3 step 3's
// named failure modes.
var (
	ErrBindFailed   = errors.New("listener: bind failed")
	ErrListenFailed = errors.New("listener: listen failed")
	ErrTableFull    = conntable.ErrNoSpace
)

// ErrListenerFatal is returned by HandleListenerRead on a real accept
// error (not would-block); the caller must close the listener (§4.3
// step 4).
var ErrListenerFatal = errors.New("listener: fatal accept error")

const defaultBacklog = 1024

// Engine bundles the state the listener engine needs: the poller to
// register new fds with, and the table every new connection is added
// to.
type Engine struct {
	Poller *netio.Poller
	Table  *conntable.Table

	// InitAccepted performs §4.3 step 3's per-kind post-accept setup
	// (start TLS, enter SocksWait, enter AwaitingCommand). Kept as an
	// injected callback so this package has no dependency on the
	// handshake/protocol packages.
	InitAccepted func(child *connrec.Conn, raw net.Conn) error

	// ListenFunc obtains the net.Listener to bind bindAddr with. It
	// defaults to a plain net.ListenConfig bind (SO_REUSEADDR set via
	// listenControl); cmd/relaylinkd overrides it with a
	// tableflip.Upgrader's Listen so OR/AP/Dir sockets survive a
	// SIGHUP-triggered binary upgrade (graceful restart, SPEC_FULL.md
	// F.2) instead of being torn down and rebound.
	ListenFunc func(ctx context.Context, network, address string) (net.Listener, error)
}

func defaultListenFunc(ctx context.Context, network, address string) (net.Listener, error) {
	lc := net.ListenConfig{Control: listenControl}
	return lc.Listen(ctx, network, address)
}

// listenControl sets SO_REUSEADDR on the underlying fd before bind, the
// idiomatic Go equivalent of spec.md §4.3 step 1's setsockopt call —
// grounded on the teacher's raw-syscall style in sendfl/iowait, using
// net.ListenConfig.Control instead of a hand-rolled socket() sequence.
func listenControl(_, _ string, c syscall.RawConn) error {
	var ctlErr error
	err := c.Control(func(fd uintptr) {
		ctlErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return ctlErr
}

// CreateListener implements §4.3 step 1-2: bind, listen, register, and
// add a new listener connection of kind to the table. On any failure
// the socket is closed and no record is added (§4.3 step 3).
func (e *Engine) CreateListener(bindAddr string, kind connrec.Kind) (*connrec.Conn, net.Listener, error) {
	if !kind.IsListener() {
		return nil, nil, fmt.Errorf("listener: kind %s is not a listener kind", kind)
	}

	listenFn := e.ListenFunc
	if listenFn == nil {
		listenFn = defaultListenFunc
	}
	ln, err := listenFn(context.Background(), "tcp", bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBindFailed, err)
	}

	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		ln.Close()
		return nil, nil, fmt.Errorf("%w: not a TCP listener", ErrListenFailed)
	}
	file, err := tcpLn.File()
	if err != nil {
		ln.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		file.Close()
		ln.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}

	conn, err := connrec.New(kind, connrec.StateReady)
	if err != nil {
		file.Close()
		ln.Close()
		return nil, nil, err
	}
	conn.Socket = fd

	tok, err := e.Poller.Register(fd, true, false)
	if err != nil {
		file.Close()
		ln.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrListenFailed, err)
	}
	conn.PollToken = tok
	conn.HasPoll = true

	if err := e.Table.Add(conn); err != nil {
		_ = e.Poller.Deregister(tok)
		file.Close()
		ln.Close()
		return nil, nil, ErrTableFull
	}

	return conn, ln, nil
}

// childKindFor maps a listener kind to the kind of connection it spawns.
func childKindFor(listenerKind connrec.Kind) (connrec.Kind, connrec.State, error) {
	switch listenerKind {
	case connrec.KindOrListener:
		return connrec.KindOr, connrec.StateConnecting, nil // transitional; StartHandshake moves it to Handshaking
	case connrec.KindApListener:
		return connrec.KindAp, connrec.StateSocksWait, nil
	case connrec.KindDirListener:
		return connrec.KindDir, connrec.StateAwaitingCommand, nil
	default:
		return connrec.KindUnknown, connrec.StateInvalid, fmt.Errorf("listener: unhandled listener kind %s", listenerKind)
	}
}

// HandleListenerRead implements §4.3's handle_listener_read: accept
// one pending connection (if any), wire it up, and hand it to
// InitAccepted. A would-block accept is swallowed and reported as
// success with no effect; a real accept error is ErrListenerFatal.
func (e *Engine) HandleListenerRead(listenerConn *connrec.Conn, ln net.Listener) error {
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		return fmt.Errorf("listener: not a TCP listener")
	}
	if err := tcpLn.SetDeadline(deadlineNow()); err != nil {
		return fmt.Errorf("listener: set deadline: %w", err)
	}
	raw, err := ln.Accept()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil // would-block equivalent: nothing pending
		}
		return fmt.Errorf("%w: %v", ErrListenerFatal, err)
	}

	childKind, initialState, err := childKindFor(listenerConn.Kind)
	if err != nil {
		raw.Close()
		return err
	}

	tcpConn, ok := raw.(*net.TCPConn)
	if !ok {
		raw.Close()
		return fmt.Errorf("listener: accepted non-TCP connection")
	}
	file, err := tcpConn.File()
	if err != nil {
		raw.Close()
		return fmt.Errorf("listener: dup fd: %w", err)
	}
	fd := int(file.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		file.Close()
		raw.Close()
		return fmt.Errorf("listener: set nonblock: %w", err)
	}

	child, err := connrec.New(childKind, initialState)
	if err != nil {
		file.Close()
		raw.Close()
		return err
	}
	child.Socket = fd
	child.Address = raw.RemoteAddr().String()
	if tcpAddr, ok := raw.RemoteAddr().(*net.TCPAddr); ok {
		child.Addr = ipv4ToUint32(tcpAddr.IP)
		child.Port = uint16(tcpAddr.Port)
	}

	if err := e.Table.Add(child); err != nil {
		file.Close()
		raw.Close()
		// §4.3 step 2: on NoSpace, close and discard — do not tear
		// down the listener.
		return nil
	}

	tok, err := e.Poller.Register(fd, true, false)
	if err != nil {
		e.Table.Remove(child)
		file.Close()
		raw.Close()
		return fmt.Errorf("listener: register poller: %w", err)
	}
	child.PollToken = tok
	child.HasPoll = true

	if e.InitAccepted != nil {
		if err := e.InitAccepted(child, raw); err != nil {
			child.MarkForClose()
			return err
		}
	}
	return nil
}
