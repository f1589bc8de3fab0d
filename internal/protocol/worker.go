package protocol

import "relaylink/internal/connrec"

// WorkerHandler drives the DNS/CPU worker IPC state machine (§4.1:
// Idle ↔ Busy(...)). The actual RPC payload format is out of scope
// per spec.md §1 — from the loop's point of view a worker is an
// ordinary connection (§5) whose inbuf carries a response to the most
// recent dispatched job.
type WorkerHandler struct{}

func (WorkerHandler) ProcessInbuf(c *connrec.Conn) error {
	if c.State != connrec.StateBusy {
		return nil
	}
	if c.Inbuf.Len() == 0 {
		return nil
	}
	c.Inbuf.Fetch(c.Inbuf.Len())
	return c.SetState(connrec.StateIdle)
}

func (WorkerHandler) FinishedFlushing(c *connrec.Conn) error {
	return nil
}
