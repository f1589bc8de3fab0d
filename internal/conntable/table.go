// Package conntable implements the process-wide connection registry
// (C4, §4.2): insertion-ordered storage with secondary lookups by
// kind, by (addr, port), and by identity key. All mutation happens
// from the single loop thread (§5); Table carries no locks.
package conntable

import (
	"errors"
	"fmt"

	"relaylink/internal/connrec"
)

// ErrNoSpace is returned by Add once the table's fixed capacity is reached.
var ErrNoSpace = errors.New("conntable: no space")

type addrPort struct {
	addr uint32
	port uint16
}

// Table is the process-wide connection registry.
type Table struct {
	capacity int
	order    []*connrec.Conn
	byID     map[uint64]*connrec.Conn
	byKind   map[connrec.Kind]map[uint64]*connrec.Conn
	byAddr   map[addrPort]*connrec.Conn // OR-Open links only, §8 property 6
}

// New creates an empty table with the given fixed capacity. capacity
// <= 0 means unbounded.
func New(capacity int) *Table {
	return &Table{
		capacity: capacity,
		byID:     make(map[uint64]*connrec.Conn),
		byKind:   make(map[connrec.Kind]map[uint64]*connrec.Conn),
		byAddr:   make(map[addrPort]*connrec.Conn),
	}
}

// Len returns the number of connections currently registered.
func (t *Table) Len() int { return len(t.order) }

// Add registers c, failing with ErrNoSpace if the table is at capacity
// (§4.2, §4.3 step 3: "on NoSpace, close and discard"). Adding the
// same connection twice is rejected without disturbing the original
// (§8 "round-trip" property).
func (t *Table) Add(c *connrec.Conn) error {
	if _, exists := t.byID[c.ID]; exists {
		return fmt.Errorf("conntable: conn %d already present", c.ID)
	}
	if t.capacity > 0 && len(t.order) >= t.capacity {
		return ErrNoSpace
	}
	t.order = append(t.order, c)
	t.byID[c.ID] = c
	if t.byKind[c.Kind] == nil {
		t.byKind[c.Kind] = make(map[uint64]*connrec.Conn)
	}
	t.byKind[c.Kind][c.ID] = c
	if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
		t.byAddr[addrPort{c.Addr, c.Port}] = c
	}
	return nil
}

// Remove unregisters c. Safe to call more than once.
func (t *Table) Remove(c *connrec.Conn) {
	if _, ok := t.byID[c.ID]; !ok {
		return
	}
	delete(t.byID, c.ID)
	if m := t.byKind[c.Kind]; m != nil {
		delete(m, c.ID)
	}
	key := addrPort{c.Addr, c.Port}
	if existing, ok := t.byAddr[key]; ok && existing.ID == c.ID {
		delete(t.byAddr, key)
	}
	for i, oc := range t.order {
		if oc.ID == c.ID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// NotifyStateChanged keeps the (addr,port) index current when a
// connection transitions into or out of OR-Open; the engine calls this
// after any state change (§8 property 6: exact_get_by_addr_port is
// unique per (addr, port) among OR-Open conns).
func (t *Table) NotifyStateChanged(c *connrec.Conn) {
	key := addrPort{c.Addr, c.Port}
	if c.Kind == connrec.KindOr && c.State == connrec.StateOpen {
		t.byAddr[key] = c
		return
	}
	if existing, ok := t.byAddr[key]; ok && existing.ID == c.ID {
		delete(t.byAddr, key)
	}
}

// GetByKind returns any one connection of the given kind, or nil.
func (t *Table) GetByKind(k connrec.Kind) *connrec.Conn {
	for _, c := range t.byKind[k] {
		return c
	}
	return nil
}

// AllByKind returns every connection of the given kind.
func (t *Table) AllByKind(k connrec.Kind) []*connrec.Conn {
	m := t.byKind[k]
	out := make([]*connrec.Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// ExactGetByAddrPort returns the OR-Open connection matching (addr,
// port) exactly, or nil.
func (t *Table) ExactGetByAddrPort(addr uint32, port uint16) *connrec.Conn {
	return t.byAddr[addrPort{addr, port}]
}

// All returns every registered connection in insertion order.
func (t *Table) All() []*connrec.Conn {
	out := make([]*connrec.Conn, len(t.order))
	copy(out, t.order)
	return out
}

// ReapMarked removes and returns every connection with MarkedForClose
// set (the reaper half of §3.3/§5's cancellation contract). The
// caller is responsible for draining final writes and releasing
// per-connection resources before or after calling this.
func (t *Table) ReapMarked() []*connrec.Conn {
	var reaped []*connrec.Conn
	for _, c := range t.All() {
		if c.MarkedForClose {
			t.Remove(c)
			reaped = append(reaped, c)
		}
	}
	return reaped
}
