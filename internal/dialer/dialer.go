// Package dialer implements the dial engine (C6, §4.5): non-blocking
// connect with in-progress semantics.
package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"relaylink/internal/connrec"
)

// Result mirrors §4.5's three-way connect() outcome.
type Result int

const (
	ResultConnected Result = iota
	ResultPending
	ResultFailed
)

// ErrConnectFailed is the sentinel for a hard connect() failure (§7).
var ErrConnectFailed = errors.New("dialer: connect failed")

// Dial is the non-blocking connect driver. Because net.Dialer's
// DialContext is itself blocking from the calling goroutine's point of
// view (Go's netpoller hides the EINPROGRESS/writable-event dance), the
// dial runs on its own goroutine and reports back by closing done; the
// engine polls it non-blockingly from the loop thread, preserving
// §4.5's Connecting→writable→Open contract (see SPEC_FULL.md §5).
type Dial struct {
	conn    *connrec.Conn
	raw     net.Conn
	err     error
	done    chan struct{}
}

// Start begins a non-blocking connect to address:port on behalf of c,
// which must already be in a dial-eligible state (Connecting for Or,
// WaitingForDestInfo→Connecting for Exit). It always returns
// ResultPending immediately; the outcome, including a resolver error,
// is reported only through Poll.
func Start(c *connrec.Conn, address string, addr uint32, port uint16) (*Dial, Result) {
	c.Address = address
	c.Addr = addr
	c.Port = port

	d := &Dial{conn: c, done: make(chan struct{})}
	go func() {
		dialer := net.Dialer{Timeout: 30 * time.Second}
		conn, err := dialer.DialContext(context.Background(), "tcp", fmt.Sprintf("%s:%d", address, port))
		d.raw = conn
		d.err = err
		close(d.done)
	}()
	return d, ResultPending
}

// Poll non-blockingly checks whether the dial has resolved. Callers on
// the loop thread call this from their writable-readiness handler.
func (d *Dial) Poll() (Result, net.Conn, error) {
	select {
	case <-d.done:
		if d.err != nil {
			d.conn.MarkForClose()
			return ResultFailed, nil, fmt.Errorf("%w: %v", ErrConnectFailed, d.err)
		}
		return ResultConnected, d.raw, nil
	default:
		return ResultPending, nil, nil
	}
}

// Done returns a channel that is closed once the dial resolves, for
// callers that want to select on it directly instead of polling.
func (d *Dial) Done() <-chan struct{} { return d.done }
