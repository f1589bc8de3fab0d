package protocol

import (
	"relaylink/internal/cell"
	"relaylink/internal/connrec"
)

// OrHandler is the reference OR-cell processor: the real
// implementation lives in the circuit layer, out of scope per
// spec.md §1; this minimal version decodes whole cells out of inbuf
// and silently discards anything but DESTROY, which it uses to mark
// the connection for close — enough to exercise the dispatcher's
// process_inbuf wiring and §8's end-to-end scenarios.
type OrHandler struct{}

func (OrHandler) ProcessInbuf(c *connrec.Conn) error {
	for c.Inbuf.Len() >= cell.Size {
		raw := c.Inbuf.Fetch(cell.Size)
		cl, ok := cell.Unmarshal(raw)
		if !ok {
			return ErrBreak
		}
		if cl.Command == cell.CommandDestroy {
			c.MarkForClose()
		}
	}
	return nil
}

func (OrHandler) FinishedFlushing(c *connrec.Conn) error {
	return nil
}
