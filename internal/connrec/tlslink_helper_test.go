package connrec

import (
	"crypto/tls"
	"net"
	"testing"

	"relaylink/internal/tlslink"
)

// fakeSession builds a tlslink.Session over an in-memory pipe, enough to
// satisfy AssertOK's "has a TLS session" check without a real handshake.
func fakeSession(t *testing.T) *tlslink.Session {
	t.Helper()
	raw, peer := net.Pipe()
	t.Cleanup(func() {
		_ = raw.Close()
		_ = peer.Close()
	})
	return tlslink.New(raw, &tls.Config{InsecureSkipVerify: true}, false)
}
