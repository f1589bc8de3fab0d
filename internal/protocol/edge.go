package protocol

import "relaylink/internal/connrec"

// ApHandler and ExitHandler are reference edge-stream processors: the
// real implementation lives in the circuit layer's edge-connection
// code, out of scope per spec.md §1. ApHandler moves SocksWait to
// AwaitingDestInfo; otherwise both consume and discard inbound bytes,
// enough to exercise package/deliver window bookkeeping and the
// dispatcher's finished_flushing wiring.

type ApHandler struct{}

func (ApHandler) ProcessInbuf(c *connrec.Conn) error {
	switch c.State {
	case connrec.StateSocksWait:
		if c.Inbuf.Len() > 0 {
			c.Inbuf.Fetch(c.Inbuf.Len())
			return c.SetState(connrec.StateAwaitingDestInfo)
		}
	case connrec.StateOpen:
		n := c.Inbuf.Len()
		if n > 0 {
			c.Inbuf.Fetch(n)
			c.PackageWindow -= n
		}
	}
	return nil
}

func (ApHandler) FinishedFlushing(c *connrec.Conn) error {
	if c.DoneSending && c.DoneReceiving {
		c.MarkForClose()
	}
	return nil
}

type ExitHandler struct{}

func (ExitHandler) ProcessInbuf(c *connrec.Conn) error {
	if c.State != connrec.StateOpen {
		return nil
	}
	n := c.Inbuf.Len()
	if n > 0 {
		c.Inbuf.Fetch(n)
		c.DeliverWindow -= n
	}
	return nil
}

func (ExitHandler) FinishedFlushing(c *connrec.Conn) error {
	if c.DoneSending && c.DoneReceiving {
		c.MarkForClose()
	}
	return nil
}
