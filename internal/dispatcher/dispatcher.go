// Package dispatcher implements the read/write dispatcher (C8, §4.6):
// readiness callbacks, routing bytes through TLS or the plain path,
// and backpressure via the rate-limit accountant.
package dispatcher

import (
	"errors"
	"fmt"
	"time"

	"relaylink/internal/cell"
	"relaylink/internal/connrec"
	"relaylink/internal/handshake"
	"relaylink/internal/iobuf"
	"relaylink/internal/netio"
	"relaylink/internal/protocol"
	"relaylink/internal/ratelimit"
	"relaylink/internal/router"
	"relaylink/internal/tlslink"
)

// Sentinel errors mirroring spec.md §7's table.
var (
	ErrProtocolBroke   = errors.New("dispatcher: protocol broke")
	ErrBudgetExhausted = errors.New("dispatcher: budget exhausted")
)

// defaultFairShare is the "small constant chosen to avoid one link
// starving others on a thick pipe" §4.6 calls for. The reference value
// is deliberately odd to surface off-by-one bugs (§9 Open Question b).
const defaultFairShare = 487

// Dispatcher bundles everything HandleRead/HandleWrite need.
type Dispatcher struct {
	Poller      *netio.Poller
	Accountant  *ratelimit.Accountant
	Protocols   *protocol.Registry
	Handshake   *handshake.Driver
	Directory   router.Directory

	LinkPaddingEnabled bool
	FairShare          int // 0 = defaultFairShare
	ReadQuantumOverride int // §9 Open Question b; 0 = disabled

	// ListenerRead is invoked for listener-kind connections instead of
	// the normal read path (§4.6 step 2); kept as a callback so this
	// package doesn't need to depend on internal/listener's net.Listener
	// bookkeeping.
	ListenerRead func(c *connrec.Conn) error
}

func (d *Dispatcher) fairShare() int {
	if d.FairShare > 0 {
		return d.FairShare
	}
	return defaultFairShare
}

// HandleRead implements §4.6's handle_read.
func (d *Dispatcher) HandleRead(c *connrec.Conn) error {
	now := time.Now()
	c.TouchRead(now)

	if c.Kind.IsListener() {
		if d.ListenerRead == nil {
			return fmt.Errorf("dispatcher: no listener-read callback registered")
		}
		return d.ListenerRead(c)
	}

	r, err := d.readToBuf(c)
	if err != nil {
		if c.Kind == connrec.KindDir && isConnectingDirState(c.State) {
			d.Directory.Forget(c.Addr, c.Port)
		}
		return err
	}
	if r == 0 {
		return nil
	}

	h := d.Protocols.For(c.Kind)
	if h == nil {
		return nil
	}
	if err := h.ProcessInbuf(c); err != nil {
		if errors.Is(err, protocol.ErrBreak) {
			c.MarkForClose()
			return ErrProtocolBroke
		}
		return err
	}
	return nil
}

func isConnectingDirState(s connrec.State) bool {
	switch s {
	case connrec.StateConnectingFetch, connrec.StateConnectingUpload,
		connrec.StateClientSendingFetch, connrec.StateClientSendingUpload,
		connrec.StateClientReadingFetch, connrec.StateClientReadingUpload:
		return true
	default:
		return false
	}
}

// readToBuf implements §4.6's read_to_buf, including the at_most
// computation and the post-read bucket bookkeeping.
func (d *Dispatcher) readToBuf(c *connrec.Conn) (int, error) {
	atMost := d.atMostFor(c)
	if atMost <= 0 {
		c.WantsToRead = true
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, false, isWriting(c))
		}
		return 0, nil
	}

	var n int
	var eof bool
	var err error

	switch {
	case c.Kind == connrec.KindOr && c.State == connrec.StateHandshaking:
		_, hsErr := d.Handshake.Continue(c)
		return 0, hsErr

	case c.Kind == connrec.KindOr && c.State == connrec.StateOpen:
		buf := make([]byte, atMost)
		var res tlslink.Result
		n, res = c.TLS.Read(buf)
		switch res {
		case tlslink.ResultError, tlslink.ResultClose:
			c.MarkForClose()
			return 0, handshake.ErrTLSFailed
		case tlslink.ResultWantWrite:
			if c.HasPoll {
				_ = d.Poller.SetInterest(c.PollToken, true, true)
			}
		}
		if n > 0 {
			_, _ = c.Inbuf.Write(buf[:n])
		}

	default:
		n, eof, err = c.Inbuf.ReadFromFD(c.Socket, atMost)
		if errors.Is(err, iobuf.ErrWouldBlock) {
			return 0, nil
		}
		if err != nil {
			c.MarkForClose()
			return 0, err
		}
		if eof {
			c.InbufReachedEOF = true
		}
	}

	if n > 0 {
		c.TotalRead += uint64(n)
		d.Accountant.ConsumeGlobal(int64(n))
		if d.Accountant.GlobalBucket() == 0 {
			c.WantsToRead = true
			if c.HasPoll {
				_ = d.Poller.SetInterest(c.PollToken, false, isWriting(c))
			}
			return n, nil
		}
		if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
			ratelimit.ConsumeReceiverBucket(c, int64(n))
			if c.ReceiverBucket == 0 {
				c.WantsToRead = true
				if c.HasPoll {
					_ = d.Poller.SetInterest(c.PollToken, false, isWriting(c))
				}
			}
		}
	}
	return n, nil
}

// atMostFor implements §4.6's at_most computation.
func (d *Dispatcher) atMostFor(c *connrec.Conn) int {
	if d.ReadQuantumOverride > 0 {
		return clampToInt64(int64(d.ReadQuantumOverride), d.Accountant.GlobalBucket())
	}

	var atMost int64
	if d.LinkPaddingEnabled {
		atMost = d.Accountant.GlobalBucket()
	} else {
		atMost = min64(int64(d.fairShare()), d.Accountant.GlobalBucket())
	}
	if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
		atMost = min64(atMost, c.ReceiverBucket)
	}
	if atMost < 0 {
		atMost = 0
	}
	if atMost > 1<<30 {
		atMost = 1 << 30
	}
	return int(atMost)
}

func clampToInt64(v, cap int64) int {
	if v > cap {
		v = cap
	}
	if v < 0 {
		v = 0
	}
	return int(v)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

// isWriting reports whether c currently has write interest pending,
// used when a paused read must not clobber an in-flight flush.
func isWriting(c *connrec.Conn) bool {
	return c.OutbufFlushLen > 0
}

// HandleWrite implements §4.6's handle_write.
func (d *Dispatcher) HandleWrite(c *connrec.Conn) error {
	if c.Kind.IsListener() {
		return fmt.Errorf("dispatcher: handle_write called on listener kind %s", c.Kind)
	}
	c.TouchWrite(time.Now())

	if c.Kind == connrec.KindOr && c.State == connrec.StateHandshaking {
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, true, false)
		}
		_, err := d.Handshake.Continue(c)
		return err
	}

	if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
		if err := d.flushTLS(c); err != nil {
			return err
		}
	} else {
		n, err := c.Outbuf.FlushToFD(c.Socket, c.OutbufFlushLen)
		if errors.Is(err, iobuf.ErrWouldBlock) {
			return nil
		}
		if err != nil {
			c.MarkForClose()
			return err
		}
		c.OutbufFlushLen -= n
		if c.OutbufFlushLen < 0 {
			c.OutbufFlushLen = 0
		}
	}

	if c.OutbufFlushLen == 0 {
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, true, false)
		}
		h := d.Protocols.For(c.Kind)
		if h == nil {
			return nil
		}
		if err := h.FinishedFlushing(c); err != nil {
			if errors.Is(err, protocol.ErrBreak) {
				c.MarkForClose()
				return ErrProtocolBroke
			}
			return err
		}
	}
	return nil
}

// flushTLS implements §4.6 step 4's TLS result mapping, including the
// want-read-during-write deadlock-avoidance rule.
func (d *Dispatcher) flushTLS(c *connrec.Conn) error {
	if c.OutbufFlushLen == 0 {
		return nil
	}
	data := c.Outbuf.Peek(c.OutbufFlushLen)
	n, res := c.TLS.Write(data)
	switch res {
	case tlslink.ResultError, tlslink.ResultClose:
		c.MarkForClose()
		return handshake.ErrTLSFailed
	case tlslink.ResultWantRead:
		d.pauseWriteForWantRead(c)
	}
	if n > 0 {
		c.TotalWritten += uint64(n)
		_ = c.Outbuf.Fetch(n)
		c.OutbufFlushLen -= n
		if c.OutbufFlushLen < 0 {
			c.OutbufFlushLen = 0
		}
	}
	return nil
}

// pauseWriteForWantRead implements the §4.6/§8 deadlock-avoidance rule:
// a TLS WantRead seen while flushing only deadlocks when the conn isn't
// currently reading (reads paused by the bucket, WantsToRead true) —
// nothing else will ever make the socket readable again on its own. In
// that case, disable write interest and park the flush until
// TickSecond's bucket refill resumes reads. If the conn is actively
// reading, the pending read interest will satisfy WantRead on its own.
func (d *Dispatcher) pauseWriteForWantRead(c *connrec.Conn) {
	if !c.WantsToRead {
		return
	}
	if c.HasPoll {
		_ = d.Poller.SetInterest(c.PollToken, false, false)
	}
	c.WantsToWrite = true
}

// WriteToBuf implements §4.6's write_to_buf.
func (d *Dispatcher) WriteToBuf(data []byte, c *connrec.Conn) error {
	if c.MarkedForClose || len(data) == 0 {
		return nil
	}
	if _, err := c.Outbuf.Write(data); err != nil {
		return err
	}

	padding := d.LinkPaddingEnabled && c.Kind == connrec.KindOr && c.State == connrec.StateOpen
	if !padding {
		c.OutbufFlushLen += len(data)
		if c.HasPoll {
			_ = d.Poller.SetInterest(c.PollToken, true, true)
		}
	}
	// When padding is enabled, an external cell scheduler advances
	// OutbufFlushLen instead (§4.6), so as not to defeat padding.
	return nil
}

// SendDestroy implements §4.6's send_destroy (§8 scenario 6).
func (d *Dispatcher) SendDestroy(circuitID uint32, c *connrec.Conn) error {
	if !isCellSpeaker(c.Kind) {
		c.MarkForClose()
		return nil
	}
	return d.WriteToBuf(cell.Destroy(circuitID).Marshal(), c)
}

func isCellSpeaker(k connrec.Kind) bool {
	return k == connrec.KindOr
}
