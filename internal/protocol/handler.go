// Package protocol defines the per-kind protocol hooks spec.md
// delegates to once bytes land in inbuf or outbuf drains to empty
// (§4.6, §6): "the circuit layer and per-protocol message handlers —
// each exposes process_inbuf(conn) and finished_flushing(conn) hooks."
// Those handlers (the OR cell processor, edge-stream processor,
// directory request handler, DNS/CPU worker RPC) are themselves out of
// scope; this package is only the registry and interface the
// dispatcher calls through, plus minimal reference implementations
// sufficient to exercise the dispatcher end to end.
package protocol

import "relaylink/internal/connrec"

// ErrBreak is returned by a Handler to signal "break connection" —
// the dispatcher maps this to marking the connection for close
// (ErrProtocolBroke in spec.md's error table).
var ErrBreak = breakError{}

type breakError struct{}

func (breakError) Error() string { return "protocol: break connection" }

// Handler is the per-kind protocol hook surface (§4.6, §6).
type Handler interface {
	// ProcessInbuf is called whenever new bytes land in conn's inbuf.
	ProcessInbuf(c *connrec.Conn) error
	// FinishedFlushing is called whenever conn's outbuf empties.
	FinishedFlushing(c *connrec.Conn) error
}

// Registry maps a connection Kind to the Handler that drives it.
type Registry struct {
	handlers map[connrec.Kind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[connrec.Kind]Handler)}
}

// Register binds a Handler to a Kind.
func (r *Registry) Register(k connrec.Kind, h Handler) {
	r.handlers[k] = h
}

// For returns the Handler registered for k, or nil.
func (r *Registry) For(k connrec.Kind) Handler {
	return r.handlers[k]
}
