package connrec

import (
	"fmt"
	"sync/atomic"
	"time"

	"relaylink/internal/iobuf"
	"relaylink/internal/netio"
	"relaylink/internal/tlslink"
)

var idCounter atomic.Uint64

// NextID returns the next process-wide monotonic connection id, used
// only for logging and diagnostics (SPEC_FULL.md F.3).
func NextID() uint64 { return idCounter.Add(1) }

// RouterKeys holds the peer-router descriptor fields populated from
// the directory once a relay peer is authenticated (§3.1).
type RouterKeys struct {
	Nickname     string
	IdentityPKey []byte
	LinkPKey     []byte
	OnionPKey    []byte
}

// EdgeFields holds fields meaningful only for Ap/Exit connections
// (§3.2 invariant 4). Left zero for every other kind.
type EdgeFields struct {
	StreamID        uint16
	NextStreamID    uint16
	CpathLayer      int
	PackageWindow   int
	DeliverWindow   int
	DoneSending     bool
	DoneReceiving   bool
}

// Conn is the polymorphic connection record (§3.1). Fields not
// meaningful for a given Kind are left at their zero value; invariants
// are enforced by AssertOK under config.DebugAssertions rather than by
// a deep type hierarchy per DESIGN NOTES §9.
type Conn struct {
	ID   uint64
	Kind Kind
	State State

	Socket    int // OS fd, or -1
	PollToken netio.Token
	HasPoll   bool

	Inbuf           *iobuf.Buffer
	Outbuf          *iobuf.Buffer
	OutbufFlushLen  int
	InbufReachedEOF bool

	WantsToRead  bool
	WantsToWrite bool

	Address string
	Addr    uint32 // host-order IPv4
	Port    uint16 // host-order

	TLS *tlslink.Session

	RouterKeys
	DialedLinkPKey []byte // what we expected when we dialed, if any

	Bandwidth      uint32
	ReceiverBucket int64

	TimestampCreated    time.Time
	TimestampLastRead   time.Time
	TimestampLastWrite  time.Time

	MarkedForClose bool

	EdgeFields

	TotalRead    uint64
	TotalWritten uint64
}

// New constructs a fresh connection record of the given kind in its
// initial state, with fresh buffers and a negative (unset) socket.
func New(kind Kind, initial State) (*Conn, error) {
	if !StateValidForKind(kind, initial) {
		return nil, fmt.Errorf("connrec: state %s invalid for kind %s", initial, kind)
	}
	now := time.Now()
	return &Conn{
		ID:                 NextID(),
		Kind:               kind,
		State:              initial,
		Socket:             -1,
		Inbuf:              iobuf.New(),
		Outbuf:             iobuf.New(),
		TimestampCreated:   now,
		TimestampLastRead:  now,
		TimestampLastWrite: now,
	}, nil
}

// SetState transitions the connection to a new state, validating it is
// legal for the connection's kind.
func (c *Conn) SetState(s State) error {
	if !StateValidForKind(c.Kind, s) {
		return fmt.Errorf("connrec: conn %d: state %s invalid for kind %s", c.ID, s, c.Kind)
	}
	c.State = s
	return nil
}

// MarkForClose sets the sticky close flag (§3.2 invariant 8, §5). Once
// set it is never cleared by anything in this package.
func (c *Conn) MarkForClose() {
	c.MarkedForClose = true
}

// TouchRead updates the last-read timestamp, preserving §3.2 invariant 1.
func (c *Conn) TouchRead(now time.Time) {
	c.TimestampLastRead = now
}

// TouchWrite updates the last-write timestamp.
func (c *Conn) TouchWrite(now time.Time) {
	c.TimestampLastWrite = now
}
