package protocol

import (
	"bytes"

	"relaylink/internal/connrec"
)

// DirHandler is the reference directory request handler: a minimal
// HTTP-ish line protocol that drives the server side of the Dir
// connection state machine (§4.1): AwaitingCommand → Writing → close.
// In the client reading states it only consumes the input; it makes no
// client-side state transitions. The real HTTP directory protocol is
// out of scope per spec.md §1.
type DirHandler struct{}

var crlfcrlf = []byte("\r\n\r\n")

func (DirHandler) ProcessInbuf(c *connrec.Conn) error {
	switch c.State {
	case connrec.StateAwaitingCommand:
		if idx := bytes.Index(c.Inbuf.Bytes(), crlfcrlf); idx >= 0 {
			c.Inbuf.Fetch(idx + len(crlfcrlf))
			if err := c.SetState(connrec.StateWriting); err != nil {
				return err
			}
			_, _ = c.Outbuf.Write([]byte("HTTP/1.0 200 OK\r\n\r\n"))
			c.OutbufFlushLen = c.Outbuf.Len()
		}
		return nil
	case connrec.StateClientReadingFetch, connrec.StateClientReadingUpload:
		// Consume whatever arrives; a real handler would parse a
		// consensus document or upload ack here.
		c.Inbuf.Fetch(c.Inbuf.Len())
		return nil
	default:
		return nil
	}
}

func (DirHandler) FinishedFlushing(c *connrec.Conn) error {
	if c.State == connrec.StateWriting {
		c.MarkForClose()
	}
	return nil
}
